// Package money implements Price, an immutable exact-decimal amount bound to
// one ISO 4217 currency. Every calculation in the pricing engine goes
// through it; rounding only happens at the explicit points documented on
// each method, always at the currency's minor unit.
package money

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/daikazu/flexicart-sub000/internal/common"
)

var (
	// ErrCurrencyMismatch is returned when two prices in different currencies are combined.
	ErrCurrencyMismatch = fmt.Errorf("%w: currency mismatch", common.ErrPrice)
	// ErrInvalidCurrency is returned for codes that are not ISO 4217 currencies.
	ErrInvalidCurrency = fmt.Errorf("%w: invalid currency", common.ErrPrice)
	// ErrInvalidAmount is returned for malformed numeric input.
	ErrInvalidAmount = fmt.Errorf("%w: invalid amount", common.ErrPrice)
	// ErrDivideByZero is returned by DivideBy and Proportion for a zero divisor.
	ErrDivideByZero = common.ErrDivideByZero
)

// Price is an exact monetary value in one currency. The zero value is not a
// valid price; use New, Parse or Zero.
type Price struct {
	amount   decimal.Decimal
	currency string
}

// New builds a price from an exact decimal amount. The amount is kept as-is;
// it is not rounded to the currency's minor unit.
func New(amount decimal.Decimal, currency string) (Price, error) {
	code, err := normalizeCurrency(currency)
	if err != nil {
		return Price{}, err
	}
	return Price{amount: amount, currency: code}, nil
}

// Parse builds a price from its decimal string representation, e.g. "10.50".
func Parse(amount, currency string) (Price, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return Price{}, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Price{}, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return New(d, currency)
}

// FromMinor builds a price from an integer amount in minor units (cents).
func FromMinor(minor int64, currency string) (Price, error) {
	code, err := normalizeCurrency(currency)
	if err != nil {
		return Price{}, err
	}
	return Price{amount: decimal.New(minor, -scaleOf(code)), currency: code}, nil
}

// Zero returns a zero price in currency.
func Zero(currency string) (Price, error) {
	return New(decimal.Zero, currency)
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(amount, currency string) Price {
	p, err := Parse(amount, currency)
	if err != nil {
		panic(err)
	}
	return p
}

// Amount returns the exact decimal amount.
func (p Price) Amount() decimal.Decimal { return p.amount }

// Currency returns the ISO 4217 currency code.
func (p Price) Currency() string { return p.currency }

// Scale returns the number of minor-unit digits of the price's currency.
func (p Price) Scale() int32 { return scaleOf(p.currency) }

// Plus adds o to p. The result may be negative.
func (p Price) Plus(o Price) (Price, error) {
	if err := p.sameCurrency(o); err != nil {
		return Price{}, err
	}
	return p.with(p.amount.Add(o.amount)), nil
}

// Subtract removes o from p, clamping the result at zero.
func (p Price) Subtract(o Price) (Price, error) {
	if err := p.sameCurrency(o); err != nil {
		return Price{}, err
	}
	diff := p.amount.Sub(o.amount)
	if diff.IsNegative() {
		diff = decimal.Zero
	}
	return p.with(diff), nil
}

// MultiplyBy multiplies p by factor and rounds once at the currency's minor
// unit using mode. The result may be negative.
func (p Price) MultiplyBy(factor decimal.Decimal, mode RoundingMode) Price {
	return p.with(round(p.amount.Mul(factor), p.Scale(), mode))
}

// Times multiplies p by an integer quantity. Integer multiplication is exact
// so no rounding happens.
func (p Price) Times(qty int) Price {
	return p.with(p.amount.Mul(decimal.NewFromInt(int64(qty))))
}

// DivideBy divides p by divisor, rounding half-up at the minor unit.
func (p Price) DivideBy(divisor decimal.Decimal) (Price, error) {
	if divisor.IsZero() {
		return Price{}, ErrDivideByZero
	}
	q := new(big.Rat).Quo(p.Rat(), divisor.Rat())
	return p.with(roundRat(q, p.Scale())), nil
}

// Percentage returns pct percent of p. The product is computed exactly and
// rounded half-up once at the minor unit.
func (p Price) Percentage(pct decimal.Decimal) Price {
	exact := p.amount.Mul(pct).Shift(-2)
	return p.with(round(exact, p.Scale(), HalfUp))
}

// Proportion scales p by part/whole through an exact rational intermediate
// and rounds half-up once at the minor unit.
func (p Price) Proportion(part, whole Price) (Price, error) {
	if err := p.sameCurrency(part); err != nil {
		return Price{}, err
	}
	if err := p.sameCurrency(whole); err != nil {
		return Price{}, err
	}
	if whole.IsZero() {
		return Price{}, ErrDivideByZero
	}
	r := new(big.Rat).Mul(p.Rat(), part.Rat())
	r.Quo(r, whole.Rat())
	return p.with(roundRat(r, p.Scale())), nil
}

// Rat returns the exact rational value of p for chained calculations.
func (p Price) Rat() *big.Rat {
	return p.amount.Rat()
}

// ToNumber returns the amount as a float64. Precision may be lost; use it for
// display and comparisons in tests only.
func (p Price) ToNumber() float64 {
	f, _ := p.amount.Float64()
	return f
}

// Negate flips the sign of p.
func (p Price) Negate() Price { return p.with(p.amount.Neg()) }

// Abs returns the absolute value of p.
func (p Price) Abs() Price { return p.with(p.amount.Abs()) }

// Round rounds p to the currency's minor unit with mode.
func (p Price) Round(mode RoundingMode) Price {
	return p.with(round(p.amount, p.Scale(), mode))
}

// ClampZero returns p, or zero when p is negative.
func (p Price) ClampZero() Price {
	if p.amount.IsNegative() {
		return p.with(decimal.Zero)
	}
	return p
}

// Cmp compares p and o, returning -1, 0 or +1.
func (p Price) Cmp(o Price) (int, error) {
	if err := p.sameCurrency(o); err != nil {
		return 0, err
	}
	return p.amount.Cmp(o.amount), nil
}

// Equal reports whether p and o hold the same currency and numeric value.
func (p Price) Equal(o Price) bool {
	return p.currency == o.currency && p.amount.Equal(o.amount)
}

// IsZero reports whether the amount is zero.
func (p Price) IsZero() bool { return p.amount.IsZero() }

// IsNegative reports whether the amount is below zero.
func (p Price) IsNegative() bool { return p.amount.IsNegative() }

// IsPositive reports whether the amount is above zero.
func (p Price) IsPositive() bool { return p.amount.IsPositive() }

// String renders the amount at the currency's minor unit followed by the
// currency code, e.g. "16.20 USD".
func (p Price) String() string {
	return p.amount.StringFixed(p.Scale()) + " " + p.currency
}

// StringFixed renders the amount at the currency's minor unit without code.
func (p Price) StringFixed() string {
	return p.amount.StringFixed(p.Scale())
}

func (p Price) with(amount decimal.Decimal) Price {
	return Price{amount: amount, currency: p.currency}
}

func (p Price) sameCurrency(o Price) error {
	if p.currency != o.currency {
		return fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, p.currency, o.currency)
	}
	return nil
}
