package cart

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/daikazu/flexicart-sub000/internal/condition"
	"github.com/daikazu/flexicart-sub000/internal/money"
)

// adjustment is what the pricing folds consume. condition.Condition and
// rule.Bound both satisfy it.
type adjustment interface {
	Name() string
	Type() condition.Type
	Target() condition.Target
	Order() int
	Taxable() bool
	Value() decimal.Decimal
	Calculate(base *money.Price) (money.Price, error)
}

const lastPriority = 999

func itemPriority(t condition.Target) int {
	switch t {
	case condition.TargetItem:
		return 1
	case condition.TargetSubtotal:
		return 2
	default:
		return lastPriority
	}
}

func cartPriority(t condition.Target) int {
	switch t {
	case condition.TargetSubtotal:
		return 1
	case condition.TargetTaxable:
		return 2
	default:
		return lastPriority
	}
}

func taxableRank(a adjustment) int {
	if a.Taxable() {
		return 2
	}
	return 1
}

type ranked struct {
	index int
	adj   adjustment
}

// sortAdjustments returns adjs in calculation order without touching the
// input slice: target priority, then (optionally) untaxed before taxed, then
// order ascending, then value descending, then original position.
func sortAdjustments(adjs []adjustment, priority func(condition.Target) int, taxableLast bool) []adjustment {
	pairs := make([]ranked, len(adjs))
	for i, a := range adjs {
		pairs[i] = ranked{index: i, adj: a}
	}
	slices.SortStableFunc(pairs, func(x, y ranked) int {
		if c := cmp.Compare(priority(x.adj.Target()), priority(y.adj.Target())); c != 0 {
			return c
		}
		if taxableLast {
			if c := cmp.Compare(taxableRank(x.adj), taxableRank(y.adj)); c != 0 {
				return c
			}
		}
		if c := cmp.Compare(x.adj.Order(), y.adj.Order()); c != 0 {
			return c
		}
		if c := y.adj.Value().Cmp(x.adj.Value()); c != 0 {
			return c
		}
		return cmp.Compare(x.index, y.index)
	})
	out := make([]adjustment, len(pairs))
	for i, p := range pairs {
		out[i] = p.adj
	}
	return out
}

func conditionAdjustments(conds []condition.Condition) []adjustment {
	out := make([]adjustment, len(conds))
	for i, c := range conds {
		out[i] = c
	}
	return out
}
