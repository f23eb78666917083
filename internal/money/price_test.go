package money_test

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daikazu/flexicart-sub000/internal/common"
	"github.com/daikazu/flexicart-sub000/internal/money"
)

func usd(t *testing.T, amount string) money.Price {
	t.Helper()
	p, err := money.Parse(amount, "USD")
	require.NoError(t, err)
	return p
}

func TestParseRejectsMalformedInput(t *testing.T) {
	_, err := money.Parse("ten", "USD")
	require.ErrorIs(t, err, money.ErrInvalidAmount)
	require.ErrorIs(t, err, common.ErrPrice)

	_, err = money.Parse("10.00", "XXY")
	require.ErrorIs(t, err, money.ErrInvalidCurrency)

	p, err := money.Parse("10.00", "usd")
	require.NoError(t, err)
	assert.Equal(t, "USD", p.Currency())
}

func TestSubtractClampsAtZero(t *testing.T) {
	got, err := usd(t, "5.00").Subtract(usd(t, "7.50"))
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = usd(t, "7.50").Subtract(usd(t, "5.00"))
	require.NoError(t, err)
	assert.Equal(t, "2.50 USD", got.String())
}

func TestPlusMayGoNegative(t *testing.T) {
	got, err := usd(t, "5.00").Plus(usd(t, "-7.50"))
	require.NoError(t, err)
	assert.Equal(t, "-2.50 USD", got.String())
}

func TestCurrencyMismatch(t *testing.T) {
	eur, err := money.Parse("1.00", "EUR")
	require.NoError(t, err)
	_, err = usd(t, "1.00").Plus(eur)
	require.ErrorIs(t, err, money.ErrCurrencyMismatch)
	_, err = usd(t, "1.00").Subtract(eur)
	require.ErrorIs(t, err, common.ErrPrice)
}

func TestPercentageRoundsHalfUpOnce(t *testing.T) {
	// 0.25 * 10% = 0.025 -> 0.03
	got := usd(t, "0.25").Percentage(decimal.NewFromInt(10))
	assert.Equal(t, "0.03 USD", got.String())

	got = usd(t, "18.00").Percentage(decimal.NewFromInt(-10))
	assert.Equal(t, "-1.80 USD", got.String())

	// -0.025 rounds away from zero
	got = usd(t, "0.25").Percentage(decimal.NewFromInt(-10))
	assert.Equal(t, "-0.03 USD", got.String())
}

func TestMultiplyByRoundingModes(t *testing.T) {
	p := usd(t, "1.005")
	f := decimal.NewFromInt(1)
	assert.Equal(t, "1.01 USD", p.MultiplyBy(f, money.HalfUp).String())
	assert.Equal(t, "1.00 USD", p.MultiplyBy(f, money.HalfEven).String())
	assert.Equal(t, "1.00 USD", p.MultiplyBy(f, money.Down).String())
	assert.Equal(t, "1.01 USD", p.MultiplyBy(f, money.Up).String())
	assert.Equal(t, "1.01 USD", p.MultiplyBy(f, money.Ceiling).String())
	assert.Equal(t, "1.00 USD", p.MultiplyBy(f, money.Floor).String())
}

func TestDivideBy(t *testing.T) {
	got, err := usd(t, "10.00").DivideBy(decimal.NewFromInt(3))
	require.NoError(t, err)
	assert.Equal(t, "3.33 USD", got.String())

	_, err = usd(t, "10.00").DivideBy(decimal.Zero)
	require.True(t, errors.Is(err, common.ErrDivideByZero))
}

func TestProportionUsesExactRatio(t *testing.T) {
	// -10 * 100/300 = -3.333.. -> -3.33
	got, err := usd(t, "-10.00").Proportion(usd(t, "100.00"), usd(t, "300.00"))
	require.NoError(t, err)
	assert.Equal(t, "-3.33 USD", got.String())

	_, err = usd(t, "1.00").Proportion(usd(t, "1.00"), usd(t, "0"))
	require.ErrorIs(t, err, money.ErrDivideByZero)
}

func TestMinorUnitScaleFollowsCurrency(t *testing.T) {
	yen, err := money.Parse("100.4", "JPY")
	require.NoError(t, err)
	assert.Equal(t, int32(0), yen.Scale())
	assert.Equal(t, "100 JPY", yen.String())

	cents, err := money.FromMinor(1999, "USD")
	require.NoError(t, err)
	assert.Equal(t, "19.99 USD", cents.String())
}

func TestFormatted(t *testing.T) {
	assert.Equal(t, "$10.00", usd(t, "10").Formatted())
	assert.Equal(t, "$1,234.50", usd(t, "1234.5").Formatted())
	assert.Equal(t, "-$3.00", usd(t, "-3").Formatted())
}

func TestFormattedKeepsExactDigits(t *testing.T) {
	assert.Equal(t, "$12,345,678,901,234,567.89", usd(t, "12345678901234567.89").Formatted())
	assert.Equal(t, "$0.10", usd(t, "0.1").Formatted())

	eur, err := money.Parse("1234.5", "EUR")
	require.NoError(t, err)
	assert.Equal(t, "€1.234,50", eur.FormattedIn("de-DE"))
}

func TestRatIsExact(t *testing.T) {
	r := usd(t, "0.10").Rat()
	assert.Equal(t, "1/10", r.String())
	assert.InDelta(t, 0.1, usd(t, "0.10").ToNumber(), 1e-9)
}

func TestPriceArithmeticProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	toPrice := func(cents int64) money.Price {
		p, err := money.FromMinor(cents, "USD")
		if err != nil {
			panic(err)
		}
		return p
	}

	properties.Property("subtract never goes below zero", prop.ForAll(
		func(a, b int64) bool {
			diff, err := toPrice(a).Subtract(toPrice(b))
			return err == nil && diff.ToNumber() >= 0
		},
		gen.Int64Range(-1_000_000, 1_000_000),
		gen.Int64Range(-1_000_000, 1_000_000),
	))

	properties.Property("plus then subtract round-trips non-negative amounts", prop.ForAll(
		func(a, b int64) bool {
			sum, err := toPrice(a).Plus(toPrice(b))
			if err != nil {
				return false
			}
			back, err := sum.Subtract(toPrice(b))
			return err == nil && back.Equal(toPrice(a))
		},
		gen.Int64Range(0, 10_000_000),
		gen.Int64Range(0, 10_000_000),
	))

	properties.TestingRun(t)
}
