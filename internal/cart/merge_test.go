package cart_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daikazu/flexicart-sub000/internal/cart"
	"github.com/daikazu/flexicart-sub000/internal/common"
	"github.com/daikazu/flexicart-sub000/internal/condition"
	"github.com/daikazu/flexicart-sub000/internal/events"
	"github.com/daikazu/flexicart-sub000/internal/rule"
)

func mergePair(t *testing.T) (target, source *cart.Cart) {
	t.Helper()
	var err error
	target, err = cart.New("target", cart.Options{EventsEnabled: true})
	require.NoError(t, err)
	source, err = cart.New("source", cart.Options{})
	require.NoError(t, err)

	_, err = target.AddItem(cart.ItemInput{ID: "mug", Name: "Old Mug", Price: "10.00", Quantity: 2, Attributes: map[string]any{"color": "red"}})
	require.NoError(t, err)
	_, err = source.AddItem(cart.ItemInput{ID: "mug", Name: "New Mug", Price: "12.00", Quantity: 3, Attributes: map[string]any{"size": "L"}})
	require.NoError(t, err)
	_, err = source.AddItem(cart.ItemInput{ID: "tea", Name: "Tea", Price: "4.00", Quantity: 1})
	require.NoError(t, err)

	target.AddCondition(cond("shared", condition.KindFixed, "-1", ""))
	source.AddCondition(cond("shared", condition.KindFixed, "-2", ""))
	source.AddCondition(cond("guest", condition.KindFixed, "-3", ""))
	_, _ = target.DrainEvents()
	return target, source
}

func mergeWith(t *testing.T, name string, target, source *cart.Cart) {
	t.Helper()
	s, err := cart.StrategyFor(name)
	require.NoError(t, err)
	require.NoError(t, target.MergeFrom(source, s, cart.MergeOptions{}))
}

func TestMergeSumAddsQuantitiesAndSourceWins(t *testing.T) {
	target, source := mergePair(t)
	mergeWith(t, cart.StrategySum, target, source)

	mug, ok := target.Item("mug")
	require.True(t, ok)
	assert.Equal(t, 5, mug.Quantity())
	assert.Equal(t, "New Mug", mug.Name())
	assert.Equal(t, "12.00 USD", mug.UnitPrice().String())
	assert.Equal(t, "red", mug.Attributes()["color"])
	assert.Equal(t, "L", mug.Attributes()["size"])

	_, ok = target.Item("tea")
	assert.True(t, ok)

	shared, ok := target.Condition("shared")
	require.True(t, ok)
	assert.True(t, shared.Value().Equal(dec("-2")))
	_, ok = target.Condition("guest")
	assert.True(t, ok)

	evs, err := target.DrainEvents()
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, events.TopicCartMerged, evs[0].Topic)
}

func TestMergeMaxTieKeepsTarget(t *testing.T) {
	target, source := mergePair(t)
	_, err := target.UpdateQuantity("mug", 3)
	require.NoError(t, err)
	mergeWith(t, cart.StrategyMax, target, source)

	mug, _ := target.Item("mug")
	assert.Equal(t, 3, mug.Quantity())
	assert.Equal(t, "Old Mug", mug.Name())

	shared, _ := target.Condition("shared")
	assert.True(t, shared.Value().Equal(dec("-1")))
}

func TestMergeMaxLargerSourceWins(t *testing.T) {
	target, source := mergePair(t)
	mergeWith(t, cart.StrategyMax, target, source)

	mug, _ := target.Item("mug")
	assert.Equal(t, 3, mug.Quantity())
	assert.Equal(t, "New Mug", mug.Name())
}

func TestMergeReplace(t *testing.T) {
	target, source := mergePair(t)
	mergeWith(t, cart.StrategyReplace, target, source)

	mug, _ := target.Item("mug")
	assert.Equal(t, 3, mug.Quantity())
	assert.Equal(t, "New Mug", mug.Name())
	assert.Nil(t, mug.Attributes()["color"])
	assert.Len(t, target.Conditions(), 2)
}

func TestMergeKeepTarget(t *testing.T) {
	target, source := mergePair(t)
	mergeWith(t, cart.StrategyKeepTarget, target, source)

	mug, _ := target.Item("mug")
	assert.Equal(t, 2, mug.Quantity())
	assert.Equal(t, "Old Mug", mug.Name())
	_, ok := target.Item("tea")
	assert.True(t, ok)
	assert.Len(t, target.Conditions(), 1)
}

func TestMergeUnknownStrategy(t *testing.T) {
	_, err := cart.StrategyFor("average")
	require.ErrorIs(t, err, common.ErrMergeStrategy)

	target, source := mergePair(t)
	require.ErrorIs(t, target.MergeFrom(source, nil, cart.MergeOptions{}), common.ErrMergeStrategy)
}

func TestMergeRejectsCurrencyMismatch(t *testing.T) {
	target, _ := mergePair(t)
	eur, err := cart.New("eur", cart.Options{Currency: "EUR"})
	require.NoError(t, err)
	require.ErrorIs(t, target.MergeFrom(eur, cart.SumStrategy{}, cart.MergeOptions{}), common.ErrPrice)
}

func TestMergeClearSourceAndRules(t *testing.T) {
	target, source := mergePair(t)
	source.AddRule(rule.MustNew(rule.Spec{Name: "guest-only", Kind: rule.KindThreshold, Type: condition.Fixed, Value: dec("5")}))

	require.NoError(t, target.MergeFrom(source, cart.SumStrategy{}, cart.MergeOptions{ClearSource: true}))
	assert.True(t, source.IsEmpty())
	assert.Empty(t, target.Rules())
}

func TestMergeIntoSelfIsNoop(t *testing.T) {
	target, _ := mergePair(t)
	require.NoError(t, target.MergeFrom(target, cart.SumStrategy{}, cart.MergeOptions{}))
	mug, _ := target.Item("mug")
	assert.Equal(t, 2, mug.Quantity())
}
