package rule

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/daikazu/flexicart-sub000/internal/condition"
	"github.com/daikazu/flexicart-sub000/internal/money"
)

// Line is the read-only view of a cart item a rule evaluates.
type Line struct {
	ID        string
	UnitPrice money.Price
	Quantity  int
	// Subtotal is the item's condition-adjusted subtotal.
	Subtotal money.Price
}

// Bound is a rule bound to one snapshot of cart lines and subtotal. It is
// meant to be used for a single pricing pass and then discarded. The zero
// value is unbound: it never applies and calculates zero.
type Bound struct {
	rule     Rule
	lines    []Line
	subtotal money.Price
	bound    bool
}

// WithContext binds r to a copy of lines and the cart subtotal.
func (r Rule) WithContext(lines []Line, subtotal money.Price) Bound {
	snapshot := make([]Line, len(lines))
	copy(snapshot, lines)
	return Bound{rule: r, lines: snapshot, subtotal: subtotal, bound: true}
}

// Rule returns the rule definition.
func (b Bound) Rule() Rule { return b.rule }

func (b Bound) Name() string { return b.rule.name }

func (b Bound) Type() condition.Type { return b.rule.typ }

func (b Bound) Target() condition.Target { return b.rule.Target() }

func (b Bound) Order() int { return b.rule.order }

func (b Bound) Taxable() bool { return b.rule.taxable }

func (b Bound) Value() decimal.Decimal { return b.rule.value }

// Applies reports whether the rule's trigger is met by the bound context.
func (b Bound) Applies() bool {
	if !b.bound {
		return false
	}
	r := b.rule
	switch r.kind {
	case KindThreshold:
		return b.subtotal.Amount().GreaterThanOrEqual(r.minSubtotal)
	case KindTiered:
		_, ok := b.tier()
		return ok
	case KindItemQuantity:
		_, qty := b.matched()
		return qty >= r.minQuantity
	case KindBuyXGetY:
		return b.freeUnits() > 0
	default:
		return false
	}
}

// Discount returns the non-positive adjustment the rule grants. It is only
// meaningful once Applies is true; otherwise it is zero.
func (b Bound) Discount() (money.Price, error) {
	zero, err := b.zero()
	if err != nil || !b.Applies() {
		return zero, err
	}
	r := b.rule
	switch r.kind {
	case KindThreshold:
		if r.typ == condition.Percentage {
			return b.subtotal.Percentage(r.value.Abs().Neg()), nil
		}
		return money.New(r.value.Abs().Neg(), b.subtotal.Currency())
	case KindTiered:
		t, _ := b.tier()
		return b.subtotal.Percentage(t.Percent.Abs().Neg()), nil
	case KindItemQuantity:
		return b.itemQuantityDiscount(zero)
	case KindBuyXGetY:
		return b.buyXGetYDiscount(zero)
	default:
		return zero, nil
	}
}

// Calculate returns Discount when the rule is bound and applies, otherwise
// zero. The base is ignored: rules compute from their own context.
func (b Bound) Calculate(_ *money.Price) (money.Price, error) {
	if !b.bound || !b.Applies() {
		return b.zero()
	}
	return b.Discount()
}

func (b Bound) zero() (money.Price, error) {
	if !b.bound {
		return money.Zero(b.currency())
	}
	return money.Zero(b.subtotal.Currency())
}

func (b Bound) currency() string {
	if b.rule.currency != "" {
		return b.rule.currency
	}
	return condition.DefaultCurrency
}

// tier selects the highest threshold not exceeding the subtotal.
func (b Bound) tier() (Tier, bool) {
	for _, t := range b.rule.tiers {
		if b.subtotal.Amount().GreaterThanOrEqual(t.Threshold) {
			return t, true
		}
	}
	return Tier{}, false
}

func (b Bound) matched() ([]Line, int) {
	var (
		out []Line
		qty int
	)
	for _, l := range b.lines {
		if b.rule.matcher.match(l.ID) {
			out = append(out, l)
			qty += l.Quantity
		}
	}
	return out, qty
}

func (b Bound) freeUnits() int {
	_, qty := b.matched()
	bundle := b.rule.buy + b.rule.get
	if bundle <= 0 {
		return 0
	}
	return (qty / bundle) * b.rule.get
}

func (b Bound) itemQuantityDiscount(zero money.Price) (money.Price, error) {
	r := b.rule
	lines, qty := b.matched()
	if r.typ == condition.Percentage {
		sum := zero
		for _, l := range lines {
			next, err := sum.Plus(l.Subtotal)
			if err != nil {
				return zero, err
			}
			sum = next
		}
		return sum.Percentage(r.value.Abs().Neg()), nil
	}
	amount := r.value.Abs().Neg()
	if r.perItem {
		amount = amount.Mul(decimal.NewFromInt(int64(qty)))
	}
	return money.New(amount, zero.Currency())
}

func (b Bound) buyXGetYDiscount(zero money.Price) (money.Price, error) {
	lines, _ := b.matched()
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].UnitPrice.Amount().LessThan(lines[j].UnitPrice.Amount())
	})
	remaining := b.freeUnits()
	pct := b.rule.value.Abs().Neg()
	total := zero
	for _, l := range lines {
		if remaining == 0 {
			break
		}
		n := min(remaining, l.Quantity)
		off := l.UnitPrice.Percentage(pct).Times(n)
		next, err := total.Plus(off)
		if err != nil {
			return zero, err
		}
		total = next
		remaining -= n
	}
	return total, nil
}
