package cart

import (
	"fmt"
	"strings"

	"github.com/daikazu/flexicart-sub000/internal/common"
	"github.com/daikazu/flexicart-sub000/internal/condition"
	"github.com/daikazu/flexicart-sub000/internal/events"
)

// Strategy names accepted by StrategyFor.
const (
	StrategySum        = "sum"
	StrategyReplace    = "replace"
	StrategyMax        = "max"
	StrategyKeepTarget = "keep_target"
)

// Strategy decides how a source cart's items and conditions combine with a
// target cart's.
type Strategy interface {
	Name() string
	// HandleNewItem returns the item to add for a source id the target lacks.
	HandleNewItem(src Item) Item
	// MergeItem returns the item that replaces target for a shared id.
	MergeItem(target, src Item) Item
	// MergeConditions returns the combined global condition list.
	MergeConditions(target, src condition.List) condition.List
}

// StrategyFor resolves a strategy by name.
func StrategyFor(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case StrategySum:
		return SumStrategy{}, nil
	case StrategyReplace:
		return ReplaceStrategy{}, nil
	case StrategyMax:
		return MaxStrategy{}, nil
	case StrategyKeepTarget:
		return KeepTargetStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrMergeStrategy, name)
	}
}

// SumStrategy adds quantities; the source wins on every other field and on
// same-named conditions.
type SumStrategy struct{}

func (SumStrategy) Name() string { return StrategySum }

func (SumStrategy) HandleNewItem(src Item) Item { return src.clone() }

func (SumStrategy) MergeItem(target, src Item) Item {
	out := src.clone()
	out.setQuantity(target.quantity + src.quantity)
	out.attributes = target.attributes.Clone()
	out.mergeAttributes(src.attributes)
	out.conditions = unionConditions(target.conditions, src.conditions)
	return out
}

func (SumStrategy) MergeConditions(target, src condition.List) condition.List {
	return unionConditions(target, src)
}

// ReplaceStrategy lets the source replace the target entirely.
type ReplaceStrategy struct{}

func (ReplaceStrategy) Name() string { return StrategyReplace }

func (ReplaceStrategy) HandleNewItem(src Item) Item { return src.clone() }

func (ReplaceStrategy) MergeItem(_, src Item) Item { return src.clone() }

func (ReplaceStrategy) MergeConditions(_, src condition.List) condition.List { return src.Clone() }

// MaxStrategy keeps whichever item has the larger quantity. On equal
// quantities the target is kept. Conditions are combined with the target
// winning same-named entries.
type MaxStrategy struct{}

func (MaxStrategy) Name() string { return StrategyMax }

func (MaxStrategy) HandleNewItem(src Item) Item { return src.clone() }

func (MaxStrategy) MergeItem(target, src Item) Item {
	if src.quantity > target.quantity {
		return src.clone()
	}
	return target.clone()
}

func (MaxStrategy) MergeConditions(target, src condition.List) condition.List {
	return unionConditions(src, target)
}

// KeepTargetStrategy leaves the target untouched and only adds new items.
type KeepTargetStrategy struct{}

func (KeepTargetStrategy) Name() string { return StrategyKeepTarget }

func (KeepTargetStrategy) HandleNewItem(src Item) Item { return src.clone() }

func (KeepTargetStrategy) MergeItem(target, _ Item) Item { return target.clone() }

func (KeepTargetStrategy) MergeConditions(target, _ condition.List) condition.List {
	return target.Clone()
}

// unionConditions returns base followed by over's entries, over replacing
// same-named entries of base in place.
func unionConditions(base, over condition.List) condition.List {
	out := base.Clone()
	for _, c := range over.All() {
		out.Add(c)
	}
	return out
}

// MergeOptions controls MergeFrom.
type MergeOptions struct {
	// ClearSource empties the source cart's items after merging.
	ClearSource bool
}

// MergeFrom merges source into c using strategy. Merging a cart into itself
// is a no-op. Rules are not merged: the target keeps its own promotions.
func (c *Cart) MergeFrom(source *Cart, strategy Strategy, opts MergeOptions) error {
	if source == nil || source == c || source.id == c.id {
		return nil
	}
	if strategy == nil {
		return fmt.Errorf("%w: strategy is required", common.ErrMergeStrategy)
	}
	if source.opts.Currency != c.opts.Currency {
		return fmt.Errorf("%w: cannot merge %s cart into %s cart", common.ErrPrice, source.opts.Currency, c.opts.Currency)
	}

	merged := 0
	for _, id := range source.order {
		src := *source.items[id]
		if existing, ok := c.items[id]; ok {
			*existing = strategy.MergeItem(*existing, src)
		} else {
			c.insert(strategy.HandleNewItem(src))
		}
		merged++
	}
	c.conditions = strategy.MergeConditions(c.conditions, source.conditions)

	c.record(events.TopicCartMerged, map[string]any{
		"source_cart_id": source.id,
		"strategy":       strategy.Name(),
		"items_merged":   merged,
	})
	if opts.ClearSource {
		source.Clear()
	}
	return nil
}
