// Package condition models stateless, named price adjustments. A Condition is
// a tagged value: its Type selects the calculation (fixed amount or
// percentage of a base) and its Target selects which base it modifies (an
// item's unit price, a subtotal, or the taxable portion of a subtotal).
package condition

import (
	"fmt"
	"maps"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/daikazu/flexicart-sub000/internal/common"
	"github.com/daikazu/flexicart-sub000/internal/money"
)

// DefaultCurrency is used for fixed conditions evaluated without a base price.
const DefaultCurrency = "USD"

// ErrPriceRequired is returned when a percentage condition is calculated without a base.
var ErrPriceRequired = fmt.Errorf("%w: price required for percentage calculation", common.ErrPrice)

// Type selects how a condition computes its adjustment.
type Type string

const (
	Fixed      Type = "fixed"
	Percentage Type = "percentage"
)

// Target selects the base an adjustment modifies.
type Target string

const (
	TargetItem     Target = "item"
	TargetSubtotal Target = "subtotal"
	TargetTaxable  Target = "taxable"
)

// Kind is the constructor-level variant. Tax kinds pin their target.
type Kind string

const (
	KindFixed         Kind = "fixed"
	KindPercentage    Kind = "percentage"
	KindFixedTax      Kind = "fixed_tax"
	KindPercentageTax Kind = "percentage_tax"
)

// Attributes holds free-form metadata attached to conditions, rules and items.
type Attributes map[string]any

// Clone returns a shallow copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return Attributes{}
	}
	return maps.Clone(a)
}

// Spec describes a condition to construct.
type Spec struct {
	Name       string `validate:"required"`
	Kind       Kind   `validate:"required,oneof=fixed percentage fixed_tax percentage_tax"`
	Value      decimal.Decimal
	Target     Target `validate:"omitempty,oneof=item subtotal taxable"`
	Order      int
	Taxable    bool
	Attributes Attributes
	Currency   string `validate:"omitempty,len=3"`
}

// Condition is an immutable price adjustment.
type Condition struct {
	name       string
	kind       Kind
	typ        Type
	target     Target
	value      decimal.Decimal
	order      int
	taxable    bool
	attributes Attributes
	currency   string
}

// New validates spec and builds a Condition. A kind with a pinned target
// (fixed_tax, percentage_tax) overrides whatever target the spec supplies.
func New(spec Spec) (Condition, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	if err := common.Validate(spec); err != nil {
		return Condition{}, err
	}
	target := spec.Target
	if pinned, ok := pinnedTarget(spec.Kind); ok {
		target = pinned
	}
	if target == "" {
		target = TargetSubtotal
	}
	cur := spec.Currency
	if cur == "" {
		cur = DefaultCurrency
	}
	if !money.ValidCurrency(cur) {
		return Condition{}, fmt.Errorf("%w: condition %q: %q", money.ErrInvalidCurrency, spec.Name, cur)
	}
	return Condition{
		name:       spec.Name,
		kind:       spec.Kind,
		typ:        typeOf(spec.Kind),
		target:     target,
		value:      spec.Value,
		order:      spec.Order,
		taxable:    spec.Taxable,
		attributes: spec.Attributes.Clone(),
		currency:   strings.ToUpper(cur),
	}, nil
}

// MustNew is like New but panics on error.
func MustNew(spec Spec) Condition {
	c, err := New(spec)
	if err != nil {
		panic(err)
	}
	return c
}

func pinnedTarget(k Kind) (Target, bool) {
	switch k {
	case KindFixedTax, KindPercentageTax:
		return TargetTaxable, true
	default:
		return "", false
	}
}

func typeOf(k Kind) Type {
	switch k {
	case KindPercentage, KindPercentageTax:
		return Percentage
	default:
		return Fixed
	}
}

func (c Condition) Name() string { return c.name }

func (c Condition) Kind() Kind { return c.kind }

func (c Condition) Type() Type { return c.typ }

func (c Condition) Target() Target { return c.target }

func (c Condition) Value() decimal.Decimal { return c.value }

func (c Condition) Order() int { return c.order }

// Taxable reports whether the adjustment is applied after other subtotal
// adjustments and also counts toward the taxable base.
func (c Condition) Taxable() bool { return c.taxable }

func (c Condition) Currency() string { return c.currency }

// WithCurrency returns c denominated in code. Carts call it so fixed amounts
// render in the currency they are applied in.
func (c Condition) WithCurrency(code string) (Condition, error) {
	zero, err := money.Zero(code)
	if err != nil {
		return Condition{}, fmt.Errorf("condition %q: %w", c.name, err)
	}
	c.currency = zero.Currency()
	return c, nil
}

// Attributes returns a copy of the condition's metadata.
func (c Condition) Attributes() Attributes { return c.attributes.Clone() }

func (c Condition) IsPercentage() bool { return c.typ == Percentage }

// Calculate returns the adjustment this condition contributes.
//
// Fixed conditions return their value regardless of base, in the base's
// currency when one is given. Percentage conditions need a base and return
// base × value/100 rounded half-up.
func (c Condition) Calculate(base *money.Price) (money.Price, error) {
	switch c.typ {
	case Percentage:
		if base == nil {
			return money.Price{}, fmt.Errorf("%w: condition %q", ErrPriceRequired, c.name)
		}
		return base.Percentage(c.value), nil
	default:
		cur := c.currency
		if base != nil {
			cur = base.Currency()
		}
		p, err := money.New(c.value, cur)
		if err != nil {
			return money.Price{}, err
		}
		return p.Round(money.HalfUp), nil
	}
}

// FormattedValue renders the configured value: currency for fixed conditions,
// a trimmed percentage ("10%", "15.5%") for percentage ones.
func (c Condition) FormattedValue() string {
	if c.typ == Percentage {
		return c.value.String() + "%"
	}
	p, err := money.New(c.value, c.currency)
	if err != nil {
		return c.value.String()
	}
	return p.Formatted()
}
