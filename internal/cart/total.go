package cart

import (
	"github.com/daikazu/flexicart-sub000/internal/condition"
	"github.com/daikazu/flexicart-sub000/internal/money"
	"github.com/daikazu/flexicart-sub000/internal/rule"
)

// Source tells whether an applied adjustment came from a condition or a rule.
type Source string

const (
	SourceCondition Source = "condition"
	SourceRule      Source = "rule"
)

// AppliedAdjustment describes one step of the total fold.
type AppliedAdjustment struct {
	Name   string
	Source Source
	Target condition.Target
	Amount money.Price
}

// Breakdown is the full pricing result of a cart.
type Breakdown struct {
	Subtotal        money.Price
	TaxableSubtotal money.Price
	Total           money.Price
	Adjustments     []AppliedAdjustment
}

// Subtotal is the sum of all condition-adjusted item subtotals.
func (c *Cart) Subtotal() (money.Price, error) {
	sub, _, err := c.subtotals()
	return sub, err
}

// TaxableSubtotal is the sum of condition-adjusted subtotals of taxable items.
func (c *Cart) TaxableSubtotal() (money.Price, error) {
	_, taxable, err := c.subtotals()
	return taxable, err
}

// Total folds global conditions and applicable rules over the subtotal.
func (c *Cart) Total() (money.Price, error) {
	b, err := c.Breakdown()
	if err != nil {
		return money.Price{}, err
	}
	return b.Total, nil
}

func (c *Cart) subtotals() (money.Price, money.Price, error) {
	sub, err := money.Zero(c.opts.Currency)
	if err != nil {
		return money.Price{}, money.Price{}, err
	}
	taxable := sub
	for _, id := range c.order {
		it := c.items[id]
		s, err := it.Subtotal(c.opts.CompoundDiscounts)
		if err != nil {
			return money.Price{}, money.Price{}, err
		}
		if sub, err = sub.Plus(s); err != nil {
			return money.Price{}, money.Price{}, err
		}
		if it.taxable {
			if taxable, err = taxable.Plus(s); err != nil {
				return money.Price{}, money.Price{}, err
			}
		}
	}
	return sub, taxable, nil
}

// totalState is threaded through the total fold. Keeping it out of the Cart
// leaves Total free of side effects.
type totalState struct {
	originalSubtotal   money.Price
	originalTaxable    money.Price
	total              money.Price
	currentTaxable     money.Price
	taxableAdjustments money.Price
	applied            []AppliedAdjustment
}

// Breakdown computes subtotal, taxable subtotal and total, and lists every
// adjustment applied on the way.
//
// Adjustments are global conditions plus the rules that apply to the current
// items and subtotal, sorted together by target (subtotal, then taxable),
// untaxed before taxed, order, and value descending. Subtotal adjustments
// also move the taxable base by the taxable share of the original subtotal,
// so taxes applied later see the discounted base.
func (c *Cart) Breakdown() (Breakdown, error) {
	sub, taxable, err := c.subtotals()
	if err != nil {
		return Breakdown{}, err
	}
	adjs, err := c.effectiveAdjustments(sub)
	if err != nil {
		return Breakdown{}, err
	}
	zero, err := money.Zero(c.opts.Currency)
	if err != nil {
		return Breakdown{}, err
	}

	st := totalState{
		originalSubtotal:   sub,
		originalTaxable:    taxable,
		total:              sub,
		currentTaxable:     taxable,
		taxableAdjustments: zero,
	}
	for _, adj := range sortAdjustments(adjs, cartPriority, true) {
		if st, err = st.apply(adj, c.opts.CompoundDiscounts); err != nil {
			return Breakdown{}, err
		}
	}

	return Breakdown{
		Subtotal:        sub,
		TaxableSubtotal: taxable,
		Total:           st.total.ClampZero(),
		Adjustments:     st.applied,
	}, nil
}

func (c *Cart) effectiveAdjustments(sub money.Price) ([]adjustment, error) {
	adjs := conditionAdjustments(c.conditions.All())
	if len(c.rules) == 0 {
		return adjs, nil
	}
	lines := make([]rule.Line, 0, len(c.order))
	for _, id := range c.order {
		l, err := c.items[id].line(c.opts.CompoundDiscounts)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	for _, r := range c.rules {
		if bound := r.WithContext(lines, sub); bound.Applies() {
			adjs = append(adjs, bound)
		}
	}
	return adjs, nil
}

func sourceOf(adj adjustment) Source {
	if _, ok := adj.(rule.Bound); ok {
		return SourceRule
	}
	return SourceCondition
}

func (st totalState) apply(adj adjustment, compound bool) (totalState, error) {
	var (
		delta money.Price
		err   error
	)
	switch adj.Target() {
	case condition.TargetSubtotal:
		base := st.originalSubtotal
		if compound {
			base = st.total
		}
		if delta, err = adj.Calculate(&base); err != nil {
			return st, err
		}
		if st.total, err = st.total.Plus(delta); err != nil {
			return st, err
		}
		share := delta
		proportional := st.originalTaxable.IsPositive() && st.originalSubtotal.IsPositive()
		if proportional {
			if share, err = delta.Proportion(st.originalTaxable, st.originalSubtotal); err != nil {
				return st, err
			}
		}
		if adj.Taxable() {
			if st.taxableAdjustments, err = st.taxableAdjustments.Plus(share); err != nil {
				return st, err
			}
		}
		if proportional {
			if st.currentTaxable, err = st.currentTaxable.Plus(share); err != nil {
				return st, err
			}
		}
	case condition.TargetTaxable:
		base, err := st.currentTaxable.Plus(st.taxableAdjustments)
		if err != nil {
			return st, err
		}
		base = base.ClampZero()
		if delta, err = adj.Calculate(&base); err != nil {
			return st, err
		}
		if st.total, err = st.total.Plus(delta); err != nil {
			return st, err
		}
	default:
		// item-targeted global conditions have no cart-level base
		return st, nil
	}
	st.applied = append(st.applied, AppliedAdjustment{
		Name:   adj.Name(),
		Source: sourceOf(adj),
		Target: adj.Target(),
		Amount: delta,
	})
	return st, nil
}
