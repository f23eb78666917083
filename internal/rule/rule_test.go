package rule_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daikazu/flexicart-sub000/internal/common"
	"github.com/daikazu/flexicart-sub000/internal/condition"
	"github.com/daikazu/flexicart-sub000/internal/money"
	"github.com/daikazu/flexicart-sub000/internal/rule"
)

func usd(s string) money.Price { return money.MustParse(s, "USD") }

func line(id, unit string, qty int) rule.Line {
	p := usd(unit)
	return rule.Line{ID: id, UnitPrice: p, Quantity: qty, Subtotal: p.Times(qty)}
}

func TestUnboundRuleIsNoop(t *testing.T) {
	r := rule.MustNew(rule.Spec{
		Name: "ten-off", Kind: rule.KindThreshold, Type: condition.Fixed,
		Value: decimal.NewFromInt(10), MinSubtotal: decimal.Zero,
	})
	assert.False(t, r.Applies())
	got, err := r.Calculate(nil)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	var b rule.Bound
	assert.False(t, b.Applies())
	got, err = b.Calculate(nil)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestThreshold(t *testing.T) {
	pct := rule.MustNew(rule.Spec{
		Name: "big-spender", Kind: rule.KindThreshold, Type: condition.Percentage,
		Value: decimal.NewFromInt(10), MinSubtotal: decimal.NewFromInt(100),
	})

	below := pct.WithContext(nil, usd("99.99"))
	assert.False(t, below.Applies())
	got, err := below.Calculate(nil)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	at := pct.WithContext(nil, usd("100.00"))
	require.True(t, at.Applies())
	got, err = at.Discount()
	require.NoError(t, err)
	assert.Equal(t, "-10.00 USD", got.String())

	// discount follows the subtotal, not the trigger point
	got, err = pct.WithContext(nil, usd("250.00")).Calculate(nil)
	require.NoError(t, err)
	assert.Equal(t, "-25.00 USD", got.String())

	fixed := rule.MustNew(rule.Spec{
		Name: "flat", Kind: rule.KindThreshold, Type: condition.Fixed,
		Value: decimal.NewFromInt(-15), MinSubtotal: decimal.NewFromInt(50),
	})
	got, err = fixed.WithContext(nil, usd("80.00")).Calculate(nil)
	require.NoError(t, err)
	assert.Equal(t, "-15.00 USD", got.String())
}

func TestTieredHighestTierWins(t *testing.T) {
	r := rule.MustNew(rule.Spec{
		Name: "tiers", Kind: rule.KindTiered,
		Tiers: []rule.Tier{
			{Threshold: decimal.NewFromInt(100), Percent: decimal.NewFromInt(5)},
			{Threshold: decimal.NewFromInt(500), Percent: decimal.NewFromInt(15)},
			{Threshold: decimal.NewFromInt(200), Percent: decimal.NewFromInt(10)},
		},
	})

	got, err := r.WithContext(nil, usd("300.00")).Calculate(nil)
	require.NoError(t, err)
	assert.Equal(t, "-30.00 USD", got.String())

	none := r.WithContext(nil, usd("99.00"))
	assert.False(t, none.Applies())
	got, err = none.Discount()
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestItemQuantity(t *testing.T) {
	lines := []rule.Line{line("shirt-red", "20.00", 2), line("shirt-blue", "25.00", 1), line("hat", "10.00", 5)}

	pct := rule.MustNew(rule.Spec{
		Name: "shirts", Kind: rule.KindItemQuantity, Type: condition.Percentage,
		Value: decimal.NewFromInt(10), Items: []string{"shirt-*"}, MinQuantity: 3,
	})
	b := pct.WithContext(lines, usd("115.00"))
	require.True(t, b.Applies())
	got, err := b.Discount()
	require.NoError(t, err)
	assert.Equal(t, "-6.50 USD", got.String())

	perItem := rule.MustNew(rule.Spec{
		Name: "hats", Kind: rule.KindItemQuantity, Type: condition.Fixed,
		Value: decimal.NewFromInt(1), Items: []string{"hat"}, MinQuantity: 2, PerItem: true,
	})
	got, err = perItem.WithContext(lines, usd("115.00")).Calculate(nil)
	require.NoError(t, err)
	assert.Equal(t, "-5.00 USD", got.String())

	once := rule.MustNew(rule.Spec{
		Name: "hats-once", Kind: rule.KindItemQuantity, Type: condition.Fixed,
		Value: decimal.NewFromInt(1), Items: []string{"hat"}, MinQuantity: 2,
	})
	got, err = once.WithContext(lines, usd("115.00")).Calculate(nil)
	require.NoError(t, err)
	assert.Equal(t, "-1.00 USD", got.String())

	short := rule.MustNew(rule.Spec{
		Name: "lots", Kind: rule.KindItemQuantity, Type: condition.Fixed,
		Value: decimal.NewFromInt(1), Items: []string{"*-blue"}, MinQuantity: 2,
	})
	assert.False(t, short.WithContext(lines, usd("115.00")).Applies())
}

func TestBuyXGetYDiscountsCheapestUnits(t *testing.T) {
	r := rule.MustNew(rule.Spec{
		Name: "b2g1", Kind: rule.KindBuyXGetY, Items: []string{"*"},
		Buy: 2, Get: 1, Value: decimal.NewFromInt(100),
	})

	got, err := r.WithContext([]rule.Line{line("tee", "30.00", 6)}, usd("180.00")).Calculate(nil)
	require.NoError(t, err)
	assert.Equal(t, "-60.00 USD", got.String())

	mixed := []rule.Line{line("a", "30.00", 2), line("b", "10.00", 1), line("c", "20.00", 3)}
	got, err = r.WithContext(mixed, usd("130.00")).Calculate(nil)
	require.NoError(t, err)
	// 6 units, 2 free: the 10.00 unit and one 20.00 unit
	assert.Equal(t, "-30.00 USD", got.String())

	half := rule.MustNew(rule.Spec{Name: "b1g1", Kind: rule.KindBuyXGetY, Items: []string{"a"}, Buy: 1, Get: 1, Value: decimal.NewFromInt(50)})
	got, err = half.WithContext(mixed, usd("130.00")).Calculate(nil)
	require.NoError(t, err)
	assert.Equal(t, "-15.00 USD", got.String())

	assert.False(t, r.WithContext([]rule.Line{line("x", "5.00", 2)}, usd("10.00")).Applies())
}

func TestNewValidatesPerKind(t *testing.T) {
	cases := []rule.Spec{
		{Kind: rule.KindThreshold, Type: condition.Fixed},
		{Name: "t", Kind: rule.KindThreshold},
		{Name: "t", Kind: rule.KindTiered},
		{Name: "q", Kind: rule.KindItemQuantity, Type: condition.Fixed},
		{Name: "b", Kind: rule.KindBuyXGetY, Items: []string{"*"}, Buy: 2},
		{Name: "x", Kind: "mystery"},
	}
	for _, spec := range cases {
		_, err := rule.New(spec)
		require.ErrorIs(t, err, common.ErrValidation, "spec %+v", spec)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	rules := []rule.Rule{
		rule.MustNew(rule.Spec{Name: "t", Kind: rule.KindThreshold, Type: condition.Percentage, Value: decimal.NewFromInt(5), MinSubtotal: decimal.NewFromInt(40), Order: 2, Taxable: true}),
		rule.MustNew(rule.Spec{Name: "tiers", Kind: rule.KindTiered, Tiers: []rule.Tier{{Threshold: decimal.NewFromInt(10), Percent: decimal.NewFromInt(1)}}}),
		rule.MustNew(rule.Spec{Name: "b", Kind: rule.KindBuyXGetY, Items: []string{"sku-*"}, Buy: 3, Get: 1}),
	}
	for _, r := range rules {
		back, err := rule.FromRecord(r.Record())
		require.NoError(t, err)
		assert.Equal(t, r.Record(), back.Record())
	}
}
