// Package rule implements promotional rules whose applicability depends on
// the whole cart. A Rule is configuration only; evaluation happens on a Bound
// value produced by WithContext for a single pricing pass.
package rule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/daikazu/flexicart-sub000/internal/common"
	"github.com/daikazu/flexicart-sub000/internal/condition"
	"github.com/daikazu/flexicart-sub000/internal/money"
)

// Kind selects the rule algorithm.
type Kind string

const (
	KindThreshold    Kind = "threshold"
	KindTiered       Kind = "tiered"
	KindItemQuantity Kind = "item_quantity"
	KindBuyXGetY     Kind = "buy_x_get_y"
)

var hundred = decimal.NewFromInt(100)

// Tier maps a subtotal threshold to the percentage granted once it is reached.
type Tier struct {
	Threshold decimal.Decimal `json:"threshold"`
	Percent   decimal.Decimal `json:"percent"`
}

// Spec describes a rule to construct. Which fields matter depends on Kind:
//
//	threshold      Type, Value, MinSubtotal
//	tiered         Tiers
//	item_quantity  Type, Value, Items, MinQuantity, PerItem
//	buy_x_get_y    Items, Buy, Get, Value (percent off each free unit, default 100)
type Spec struct {
	Name        string               `validate:"required"`
	Kind        Kind                 `validate:"required,oneof=threshold tiered item_quantity buy_x_get_y"`
	Type        condition.Type       `validate:"omitempty,oneof=fixed percentage"`
	Value       decimal.Decimal
	Currency    string               `validate:"omitempty,len=3"`
	Order       int
	Taxable     bool
	Attributes  condition.Attributes
	MinSubtotal decimal.Decimal
	Tiers       []Tier
	Items       []string
	MinQuantity int                  `validate:"gte=0"`
	PerItem     bool
	Buy         int                  `validate:"gte=0"`
	Get         int                  `validate:"gte=0"`
}

// Rule is an immutable promotion definition.
type Rule struct {
	name        string
	kind        Kind
	typ         condition.Type
	value       decimal.Decimal
	currency    string
	order       int
	taxable     bool
	attributes  condition.Attributes
	minSubtotal decimal.Decimal
	tiers       []Tier
	matcher     matcher
	minQuantity int
	perItem     bool
	buy         int
	get         int
}

// New validates spec and builds a Rule.
func New(spec Spec) (Rule, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	if err := common.Validate(spec); err != nil {
		return Rule{}, err
	}
	cur := spec.Currency
	if cur == "" {
		cur = condition.DefaultCurrency
	}
	if !money.ValidCurrency(cur) {
		return Rule{}, fmt.Errorf("%w: rule %q: %q", money.ErrInvalidCurrency, spec.Name, cur)
	}
	r := Rule{
		name:        spec.Name,
		kind:        spec.Kind,
		typ:         spec.Type,
		value:       spec.Value,
		currency:    strings.ToUpper(cur),
		order:       spec.Order,
		taxable:     spec.Taxable,
		attributes:  spec.Attributes.Clone(),
		minSubtotal: spec.MinSubtotal,
		minQuantity: spec.MinQuantity,
		perItem:     spec.PerItem,
		buy:         spec.Buy,
		get:         spec.Get,
	}

	switch spec.Kind {
	case KindThreshold:
		if r.typ == "" {
			return Rule{}, invalid(spec.Name, "type is required")
		}
		if r.minSubtotal.IsNegative() {
			return Rule{}, invalid(spec.Name, "min subtotal must not be negative")
		}
	case KindTiered:
		if len(spec.Tiers) == 0 {
			return Rule{}, invalid(spec.Name, "at least one tier is required")
		}
		r.typ = condition.Percentage
		r.tiers = make([]Tier, len(spec.Tiers))
		copy(r.tiers, spec.Tiers)
		// highest threshold first so selection is a single scan
		sort.SliceStable(r.tiers, func(i, j int) bool {
			return r.tiers[i].Threshold.GreaterThan(r.tiers[j].Threshold)
		})
	case KindItemQuantity:
		if r.typ == "" {
			return Rule{}, invalid(spec.Name, "type is required")
		}
		if r.minQuantity == 0 {
			r.minQuantity = 1
		}
	case KindBuyXGetY:
		if r.buy < 1 || r.get < 1 {
			return Rule{}, invalid(spec.Name, "buy and get must be at least 1")
		}
		r.typ = condition.Percentage
		if r.value.IsZero() {
			r.value = hundred
		}
	}

	if spec.Kind == KindItemQuantity || spec.Kind == KindBuyXGetY {
		if len(spec.Items) == 0 {
			return Rule{}, invalid(spec.Name, "items are required")
		}
		m, err := newMatcher(spec.Items)
		if err != nil {
			return Rule{}, invalid(spec.Name, err.Error())
		}
		if len(m.patterns) == 0 {
			return Rule{}, invalid(spec.Name, "items are required")
		}
		r.matcher = m
	}
	return r, nil
}

// MustNew is like New but panics on error.
func MustNew(spec Spec) Rule {
	r, err := New(spec)
	if err != nil {
		panic(err)
	}
	return r
}

func invalid(name, msg string) error {
	return fmt.Errorf("%w: rule %q: %s", common.ErrValidation, name, msg)
}

func (r Rule) Name() string { return r.name }

func (r Rule) Kind() Kind { return r.kind }

func (r Rule) Type() condition.Type { return r.typ }

// Target is always the cart subtotal.
func (r Rule) Target() condition.Target { return condition.TargetSubtotal }

func (r Rule) Value() decimal.Decimal { return r.value }

func (r Rule) Order() int { return r.order }

func (r Rule) Taxable() bool { return r.taxable }

func (r Rule) Attributes() condition.Attributes { return r.attributes.Clone() }

// Applies is always false on an unbound rule.
func (r Rule) Applies() bool { return false }

// Calculate on an unbound rule is a no-op and returns zero.
func (r Rule) Calculate(base *money.Price) (money.Price, error) {
	cur := r.currency
	if base != nil {
		cur = base.Currency()
	}
	return money.Zero(cur)
}
