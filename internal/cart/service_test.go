package cart_test

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daikazu/flexicart-sub000/internal/cart"
	"github.com/daikazu/flexicart-sub000/internal/common"
	"github.com/daikazu/flexicart-sub000/internal/condition"
	"github.com/daikazu/flexicart-sub000/internal/events"
	"github.com/daikazu/flexicart-sub000/internal/lock"
	"github.com/daikazu/flexicart-sub000/internal/rule"
	"github.com/daikazu/flexicart-sub000/internal/store"
)

type recordingEmitter struct {
	mu  sync.Mutex
	evs []events.Event
}

func (r *recordingEmitter) Emit(_ context.Context, evs ...events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, evs...)
	return nil
}

func (r *recordingEmitter) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.evs))
	for _, ev := range r.evs {
		out = append(out, ev.Topic)
	}
	return out
}

type stubResolver struct {
	in  cart.ItemInput
	err error
	got []cart.ProductRef
}

func (s *stubResolver) Resolve(_ context.Context, ref cart.ProductRef) (cart.ItemInput, error) {
	s.got = append(s.got, ref)
	return s.in, s.err
}

func newService(t *testing.T) (*cart.Service, *store.Memory, *recordingEmitter) {
	t.Helper()
	mem := store.NewMemory()
	em := &recordingEmitter{}
	return &cart.Service{
		Store:            mem,
		Locker:           &lock.Local{},
		Events:           em,
		Logger:           zerolog.Nop(),
		Options:          cart.Options{EventsEnabled: true},
		MergeStrategy:    cart.StrategySum,
		MergeClearSource: true,
	}, mem, em
}

var (
	guest = cart.Key{SessionID: "sess-1"}
	user  = cart.Key{UserID: "user-1"}
)

func TestServiceAddItemPersistsAndEmits(t *testing.T) {
	svc, mem, em := newService(t)
	ctx := context.Background()

	c, err := svc.AddItem(ctx, guest, cart.ItemInput{ID: "a", Name: "A", Price: "3.00", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Count())

	snap, err := mem.Load(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, c.ID(), snap.ID)

	again, err := svc.Get(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, c.ID(), again.ID())
	sub, err := again.Subtotal()
	require.NoError(t, err)
	assert.Equal(t, "6.00 USD", sub.String())

	assert.Equal(t, []string{events.TopicItemAdded}, em.topics())
}

func TestServiceGetUnknownKeyIsEmptyAndUnsaved(t *testing.T) {
	svc, mem, _ := newService(t)
	ctx := context.Background()

	c, err := svc.Get(ctx, guest)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	_, err = mem.Load(ctx, guest)
	require.ErrorIs(t, err, cart.ErrCartNotFound)
}

func TestServiceRejectsMissingKey(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.AddItem(context.Background(), cart.Key{}, cart.ItemInput{ID: "a", Name: "A", Price: "1"})
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestServiceFailedMutationIsNotSaved(t *testing.T) {
	svc, _, em := newService(t)
	ctx := context.Background()
	_, err := svc.AddItem(ctx, guest, cart.ItemInput{ID: "a", Name: "A", Price: "3.00"})
	require.NoError(t, err)

	_, err = svc.UpdateQuantity(ctx, guest, "missing", 4)
	require.ErrorIs(t, err, common.ErrNotFound)
	_, err = svc.RemoveCondition(ctx, guest, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
	_, err = svc.RemoveRule(ctx, guest, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)

	c, err := svc.Get(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Count())
	assert.Equal(t, []string{events.TopicItemAdded}, em.topics())
}

func TestServiceConditionsAndRules(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.AddItem(ctx, guest, cart.ItemInput{ID: "a", Name: "A", Price: "100.00"})
	require.NoError(t, err)

	_, err = svc.AddCondition(ctx, guest, condition.Record{Name: "vat", Kind: condition.KindPercentageTax, Value: "10"})
	require.NoError(t, err)
	_, err = svc.AddCondition(ctx, guest, condition.Record{Name: "bad", Kind: condition.KindFixed, Value: "x"})
	require.ErrorIs(t, err, common.ErrValidation)

	c, err := svc.AddRule(ctx, guest, rule.Record{
		Name: "big", Kind: rule.KindThreshold, Type: condition.Percentage, Value: "10", MinSubtotal: "50",
	})
	require.NoError(t, err)
	total, err := c.Total()
	require.NoError(t, err)
	assert.Equal(t, "99.00 USD", total.String())

	c, err = svc.AddItemCondition(ctx, guest, "a", condition.Record{Name: "wrap", Kind: condition.KindFixed, Value: "5", Target: condition.TargetItem})
	require.NoError(t, err)
	sub, err := c.Subtotal()
	require.NoError(t, err)
	assert.Equal(t, "105.00 USD", sub.String())

	c, err = svc.RemoveRule(ctx, guest, "big")
	require.NoError(t, err)
	assert.Empty(t, c.Rules())

	c, err = svc.Reset(ctx, guest)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.Empty(t, c.Conditions())
}

func TestServiceConcurrentAddsAreSerialized(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddItem(ctx, guest, cart.ItemInput{ID: "a", Name: "A", Price: "1.00", Quantity: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := svc.Get(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, 20, c.Count())
}

func TestServiceAddFromCatalog(t *testing.T) {
	svc, _, _ := newService(t)
	res := &stubResolver{in: cart.ItemInput{ID: "sku-9", Name: "Lamp", Price: "25.00", Quantity: 1}}
	svc.Catalog = res
	ctx := context.Background()

	c, err := svc.AddFromCatalog(ctx, guest, cart.ProductRef{ProductID: "sku-9", Quantity: 2})
	require.NoError(t, err)
	it, ok := c.Item("sku-9")
	require.True(t, ok)
	assert.Equal(t, 2, it.Quantity())
	require.Len(t, res.got, 1)
	assert.Equal(t, "sku-9", res.got[0].ProductID)

	_, err = svc.AddFromCatalog(ctx, guest, cart.ProductRef{})
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestServiceCatalogFailureLeavesCartUntouched(t *testing.T) {
	svc, mem, em := newService(t)
	svc.Catalog = &stubResolver{err: common.NewAppError(common.CodeConnection, "catalog unavailable", http.StatusServiceUnavailable, common.ErrConnection)}
	ctx := context.Background()

	_, err := svc.AddFromCatalog(ctx, guest, cart.ProductRef{ProductID: "sku-1"})
	require.ErrorIs(t, err, common.ErrConnection)
	_, err = mem.Load(ctx, guest)
	require.ErrorIs(t, err, cart.ErrCartNotFound)
	assert.Empty(t, em.topics())

	svc.Catalog = nil
	_, err = svc.AddFromCatalog(ctx, guest, cart.ProductRef{ProductID: "sku-1"})
	require.Error(t, err)
}

func TestServiceMergeGuestIntoUser(t *testing.T) {
	svc, mem, em := newService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, user, cart.ItemInput{ID: "mug", Name: "Old Mug", Price: "10.00", Quantity: 2})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, guest, cart.ItemInput{ID: "mug", Name: "New Mug", Price: "12.00", Quantity: 3})
	require.NoError(t, err)

	c, err := svc.Merge(ctx, guest, user)
	require.NoError(t, err)
	mug, ok := c.Item("mug")
	require.True(t, ok)
	assert.Equal(t, 5, mug.Quantity())
	assert.Equal(t, "New Mug", mug.Name())

	_, err = mem.Load(ctx, guest)
	require.ErrorIs(t, err, cart.ErrCartNotFound)

	stored, err := svc.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Count())

	assert.Contains(t, em.topics(), events.TopicCartMerged)
	assert.Contains(t, em.topics(), events.TopicCartCleared)
}

func TestServiceMergeWithoutSource(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.AddItem(ctx, user, cart.ItemInput{ID: "mug", Name: "Mug", Price: "10.00", Quantity: 2})
	require.NoError(t, err)

	c, err := svc.Merge(ctx, guest, user)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Count())
}

func TestServiceMergeUnknownStrategy(t *testing.T) {
	svc, _, _ := newService(t)
	svc.MergeStrategy = "average"
	_, err := svc.Merge(context.Background(), guest, user)
	require.ErrorIs(t, err, common.ErrMergeStrategy)
}

func TestServiceDestroy(t *testing.T) {
	svc, mem, _ := newService(t)
	ctx := context.Background()
	_, err := svc.AddItem(ctx, guest, cart.ItemInput{ID: "a", Name: "A", Price: "1"})
	require.NoError(t, err)

	require.NoError(t, svc.Destroy(ctx, guest))
	_, err = mem.Load(ctx, guest)
	require.ErrorIs(t, err, cart.ErrCartNotFound)
}
