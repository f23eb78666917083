package events

// Topic constants for cart events.
const (
	TopicItemAdded           = "cart.item.added"
	TopicItemUpdated         = "cart.item.updated"
	TopicItemQuantityChanged = "cart.item.quantity_changed"
	TopicItemRemoved         = "cart.item.removed"
	TopicConditionAdded      = "cart.condition.added"
	TopicConditionRemoved    = "cart.condition.removed"
	TopicConditionsCleared   = "cart.conditions.cleared"
	TopicRuleAdded           = "cart.rule.added"
	TopicRuleRemoved         = "cart.rule.removed"
	TopicRulesCleared        = "cart.rules.cleared"
	TopicCartCleared         = "cart.cleared"
	TopicCartReset           = "cart.reset"
	TopicCartMerged          = "cart.merged"
)

// DefaultTopics returns every topic the cart emits.
func DefaultTopics() []string {
	return []string{
		TopicItemAdded,
		TopicItemUpdated,
		TopicItemQuantityChanged,
		TopicItemRemoved,
		TopicConditionAdded,
		TopicConditionRemoved,
		TopicConditionsCleared,
		TopicRuleAdded,
		TopicRuleRemoved,
		TopicRulesCleared,
		TopicCartCleared,
		TopicCartReset,
		TopicCartMerged,
	}
}
