// Package cart implements the cart pricing engine: line items with their own
// conditions, cart-wide conditions and promotional rules, the subtotal and
// total folds over them, cart merging, and the service that loads, locks,
// mutates and persists carts.
package cart

import (
	"fmt"
	"strings"
	"time"

	"github.com/daikazu/flexicart-sub000/internal/common"
	"github.com/daikazu/flexicart-sub000/internal/condition"
	"github.com/daikazu/flexicart-sub000/internal/events"
	"github.com/daikazu/flexicart-sub000/internal/money"
	"github.com/daikazu/flexicart-sub000/internal/rule"
)

// ErrItemNotFound is returned when an operation names an item the cart does not hold.
var ErrItemNotFound = fmt.Errorf("%w: item", common.ErrNotFound)

// Options controls pricing and event behaviour of a cart.
type Options struct {
	Currency          string
	CompoundDiscounts bool
	EventsEnabled     bool
	Now               func() time.Time
}

// Cart holds items, global conditions and rules. It is not safe for
// concurrent mutation; Service serializes mutators per cart key.
type Cart struct {
	id         string
	opts       Options
	order      []string
	items      map[string]*Item
	conditions condition.List
	rules      []rule.Rule
	pending    []events.Event
	eventErr   error
}

// New returns an empty cart. Currency defaults to USD.
func New(id string, opts Options) (*Cart, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: cart id is required", common.ErrValidation)
	}
	if opts.Currency == "" {
		opts.Currency = condition.DefaultCurrency
	}
	if !money.ValidCurrency(opts.Currency) {
		return nil, fmt.Errorf("%w: %q", money.ErrInvalidCurrency, opts.Currency)
	}
	opts.Currency = strings.ToUpper(opts.Currency)
	return &Cart{id: id, opts: opts, items: make(map[string]*Item)}, nil
}

func (c *Cart) ID() string { return c.id }

func (c *Cart) Currency() string { return c.opts.Currency }

func (c *Cart) Options() Options { return c.opts }

// Item returns a copy of the item with id.
func (c *Cart) Item(id string) (Item, bool) {
	it, ok := c.items[id]
	if !ok {
		return Item{}, false
	}
	return it.clone(), true
}

// Items returns copies of all items in insertion order.
func (c *Cart) Items() []Item {
	out := make([]Item, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id].clone())
	}
	return out
}

// Count returns the total quantity across all items.
func (c *Cart) Count() int {
	n := 0
	for _, it := range c.items {
		n += it.quantity
	}
	return n
}

func (c *Cart) IsEmpty() bool { return len(c.order) == 0 }

func (c *Cart) Condition(name string) (condition.Condition, bool) { return c.conditions.Get(name) }

// Conditions returns global conditions in insertion order.
func (c *Cart) Conditions() []condition.Condition { return c.conditions.All() }

// Rules returns rules in insertion order.
func (c *Cart) Rules() []rule.Rule {
	out := make([]rule.Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// AddItem adds a new line, or for an id already in the cart increases its
// quantity, merges attributes and adds the input's conditions.
func (c *Cart) AddItem(in ItemInput) (Item, error) {
	it, err := NewItem(in, c.opts.Currency)
	if err != nil {
		return Item{}, err
	}
	if existing, ok := c.items[it.id]; ok {
		old := existing.quantity
		existing.setQuantity(existing.quantity + it.quantity)
		existing.mergeAttributes(it.attributes)
		for _, cond := range it.conditions.All() {
			existing.conditions.Add(cond)
		}
		c.record(events.TopicItemQuantityChanged, quantityPayload(it.id, old, existing.quantity))
		return existing.clone(), nil
	}
	c.insert(it)
	c.record(events.TopicItemAdded, itemPayload(it))
	return it.clone(), nil
}

func (c *Cart) insert(it Item) {
	stored := it.clone()
	if _, ok := c.items[it.id]; !ok {
		c.order = append(c.order, it.id)
	}
	c.items[it.id] = &stored
}

// UpdateItem applies u to the item with id. The update is all or nothing.
func (c *Cart) UpdateItem(id string, u ItemUpdate) (Item, error) {
	existing, ok := c.items[id]
	if !ok {
		return Item{}, fmt.Errorf("%w: %q", ErrItemNotFound, id)
	}
	next := existing.clone()
	if err := next.apply(u, c.opts.Currency); err != nil {
		return Item{}, err
	}
	*existing = next
	c.record(events.TopicItemUpdated, itemPayload(next))
	return next.clone(), nil
}

// UpdateQuantity sets the item's quantity after normalization.
func (c *Cart) UpdateQuantity(id string, qty float64) (Item, error) {
	existing, ok := c.items[id]
	if !ok {
		return Item{}, fmt.Errorf("%w: %q", ErrItemNotFound, id)
	}
	old := existing.quantity
	existing.quantity = NormalizeQuantity(qty)
	c.record(events.TopicItemQuantityChanged, quantityPayload(id, old, existing.quantity))
	return existing.clone(), nil
}

// RemoveItem deletes the item with id.
func (c *Cart) RemoveItem(id string) error {
	if _, ok := c.items[id]; !ok {
		return fmt.Errorf("%w: %q", ErrItemNotFound, id)
	}
	delete(c.items, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
	c.record(events.TopicItemRemoved, map[string]any{"item_id": id})
	return nil
}

// Clear removes all items, keeping conditions and rules.
func (c *Cart) Clear() {
	c.order = nil
	c.items = make(map[string]*Item)
	c.record(events.TopicCartCleared, nil)
}

// Reset removes items, conditions and rules.
func (c *Cart) Reset() {
	c.order = nil
	c.items = make(map[string]*Item)
	c.conditions.Clear()
	c.rules = nil
	c.record(events.TopicCartReset, nil)
}

// AddCondition adds a global condition, replacing any with the same name.
func (c *Cart) AddCondition(cond condition.Condition) {
	cond = denominate(cond, c.opts.Currency)
	c.conditions.Add(cond)
	c.record(events.TopicConditionAdded, conditionPayload(cond))
}

// AddConditions adds several global conditions in order.
func (c *Cart) AddConditions(conds ...condition.Condition) {
	for _, cond := range conds {
		c.AddCondition(cond)
	}
}

// RemoveCondition removes the named global condition, reporting whether it existed.
func (c *Cart) RemoveCondition(name string) bool {
	if !c.conditions.Remove(name) {
		return false
	}
	c.record(events.TopicConditionRemoved, map[string]any{"name": name})
	return true
}

// ClearConditions removes every global condition.
func (c *Cart) ClearConditions() {
	c.conditions.Clear()
	c.record(events.TopicConditionsCleared, nil)
}

// AddRule adds a rule, replacing any with the same name in place.
func (c *Cart) AddRule(r rule.Rule) {
	replaced := false
	for i := range c.rules {
		if c.rules[i].Name() == r.Name() {
			c.rules[i] = r
			replaced = true
			break
		}
	}
	if !replaced {
		c.rules = append(c.rules, r)
	}
	c.record(events.TopicRuleAdded, map[string]any{"name": r.Name(), "kind": r.Kind()})
}

// RemoveRule removes the named rule, reporting whether it existed.
func (c *Cart) RemoveRule(name string) bool {
	for i := range c.rules {
		if c.rules[i].Name() == name {
			c.rules = append(c.rules[:i:i], c.rules[i+1:]...)
			c.record(events.TopicRuleRemoved, map[string]any{"name": name})
			return true
		}
	}
	return false
}

// ClearRules removes every rule.
func (c *Cart) ClearRules() {
	c.rules = nil
	c.record(events.TopicRulesCleared, nil)
}

// AddItemCondition attaches cond to the item with id.
func (c *Cart) AddItemCondition(id string, cond condition.Condition) error {
	it, ok := c.items[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrItemNotFound, id)
	}
	it.conditions.Add(denominate(cond, it.unitPrice.Currency()))
	c.record(events.TopicItemUpdated, itemPayload(*it))
	return nil
}

// RemoveItemCondition detaches the named condition from the item with id.
func (c *Cart) RemoveItemCondition(id, name string) (bool, error) {
	it, ok := c.items[id]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrItemNotFound, id)
	}
	if !it.conditions.Remove(name) {
		return false, nil
	}
	c.record(events.TopicItemUpdated, itemPayload(*it))
	return true, nil
}

// ClearItemConditions detaches every condition from the item with id.
func (c *Cart) ClearItemConditions(id string) error {
	it, ok := c.items[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrItemNotFound, id)
	}
	it.conditions.Clear()
	c.record(events.TopicItemUpdated, itemPayload(*it))
	return nil
}

// DrainEvents returns the events recorded since the last drain and empties
// the buffer. The error reports payloads that could not be encoded.
func (c *Cart) DrainEvents() ([]events.Event, error) {
	out, err := c.pending, c.eventErr
	c.pending, c.eventErr = nil, nil
	return out, err
}

// denominate rebinds cond to currency, which the cart has already validated.
func denominate(cond condition.Condition, currency string) condition.Condition {
	if bound, err := cond.WithCurrency(currency); err == nil {
		return bound
	}
	return cond
}

func (c *Cart) record(topic string, payload any) {
	if !c.opts.EventsEnabled {
		return
	}
	ev, err := events.New(c.id, topic, payload, c.now())
	if err != nil {
		if c.eventErr == nil {
			c.eventErr = err
		}
		return
	}
	c.pending = append(c.pending, ev)
}

func (c *Cart) now() time.Time {
	if c.opts.Now != nil {
		return c.opts.Now()
	}
	return time.Now()
}

func itemPayload(it Item) map[string]any {
	return map[string]any{
		"item_id":    it.id,
		"name":       it.name,
		"price":      it.unitPrice.StringFixed(),
		"currency":   it.unitPrice.Currency(),
		"quantity":   it.quantity,
		"taxable":    it.taxable,
		"conditions": it.conditions.Names(),
	}
}

func quantityPayload(id string, old, qty int) map[string]any {
	return map[string]any{"item_id": id, "old_quantity": old, "quantity": qty}
}

func conditionPayload(cond condition.Condition) map[string]any {
	return map[string]any{
		"name":   cond.Name(),
		"type":   cond.Type(),
		"target": cond.Target(),
		"value":  cond.FormattedValue(),
	}
}
