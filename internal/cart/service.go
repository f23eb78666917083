package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/daikazu/flexicart-sub000/internal/common"
	"github.com/daikazu/flexicart-sub000/internal/condition"
	"github.com/daikazu/flexicart-sub000/internal/events"
	"github.com/daikazu/flexicart-sub000/internal/obs"
	"github.com/daikazu/flexicart-sub000/internal/rule"
)

// Locker serializes work per key. lock.Locker and lock.Local implement it.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Emitter receives the events a mutation recorded. *events.Bus implements it.
type Emitter interface {
	Emit(ctx context.Context, evs ...events.Event) error
}

// ProductRef names a catalog product to add to a cart.
type ProductRef struct {
	ProductID string  `json:"product_id" validate:"required"`
	VariantID string  `json:"variant_id,omitempty"`
	Quantity  float64 `json:"quantity"`
}

// Resolver turns a product reference into a cart-ready item payload.
type Resolver interface {
	Resolve(ctx context.Context, ref ProductRef) (ItemInput, error)
}

// Service loads, locks, mutates, persists and announces carts.
type Service struct {
	Store   Store
	Locker  Locker
	Events  Emitter
	Catalog Resolver
	Logger  zerolog.Logger

	Options          Options
	MergeStrategy    string
	MergeClearSource bool
	LockTTL          time.Duration
}

func (s *Service) lockTTL() time.Duration {
	if s == nil || s.LockTTL <= 0 {
		return 10 * time.Second
	}
	return s.LockTTL
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

// Get loads the cart stored under key, or returns a new empty cart when none
// exists. The empty cart is not persisted.
func (s *Service) Get(ctx context.Context, key Key) (*Cart, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return s.load(ctx, key)
}

func (s *Service) load(ctx context.Context, key Key) (*Cart, error) {
	snap, err := s.Store.Load(ctx, key)
	if errors.Is(err, ErrCartNotFound) {
		return New(uuid.NewString(), s.Options)
	}
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", key, err)
	}
	return FromSnapshot(snap, s.Options)
}

// mutate runs fn against the cart under key while holding its lock, saves
// the result and then emits the recorded events. Emission failures are
// logged, never returned: the cart is already saved.
func (s *Service) mutate(ctx context.Context, op string, key Key, fn func(*Cart) error) (c *Cart, err error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		obs.ObserveCartOperation(op, err, obs.DurationMillis(time.Since(start)))
	}()

	err = s.withLock(ctx, key, func(ctx context.Context) error {
		loaded, err := s.load(ctx, key)
		if err != nil {
			return err
		}
		if err := fn(loaded); err != nil {
			return err
		}
		if err := s.Store.Save(ctx, key, loaded.Snapshot()); err != nil {
			return fmt.Errorf("save cart %s: %w", key, err)
		}
		c = loaded
		return nil
	})
	if err != nil {
		s.Logger.Warn().Err(err).Str("operation", op).Str("cart_key", key.String()).Msg("cart_operation_failed")
		return nil, err
	}
	s.flush(ctx, c)
	s.Logger.Debug().Str("operation", op).Str("cart_id", c.ID()).Str("cart_key", key.String()).Msg("cart_operation")
	return c, nil
}

func (s *Service) withLock(ctx context.Context, key Key, fn func(context.Context) error) error {
	if s.Locker == nil {
		return fn(ctx)
	}
	return s.Locker.WithLock(ctx, lockKey(key), s.lockTTL(), fn)
}

func lockKey(key Key) string { return "cart:lock:" + key.String() }

func (s *Service) flush(ctx context.Context, carts ...*Cart) {
	for _, c := range carts {
		if c == nil {
			continue
		}
		evs, encErr := c.DrainEvents()
		if encErr != nil {
			s.Logger.Warn().Err(encErr).Str("cart_id", c.ID()).Msg("cart_event_encode_failed")
		}
		if s.Events == nil || len(evs) == 0 {
			continue
		}
		if err := s.Events.Emit(ctx, evs...); err != nil {
			s.Logger.Warn().Err(err).Str("cart_id", c.ID()).Int("events", len(evs)).Msg("cart_event_emit_failed")
		}
	}
}

// AddItem adds in to the cart under key.
func (s *Service) AddItem(ctx context.Context, key Key, in ItemInput) (*Cart, error) {
	return s.mutate(ctx, "add_item", key, func(c *Cart) error {
		_, err := c.AddItem(in)
		return err
	})
}

// AddFromCatalog resolves ref through the catalog and adds the result. The
// lookup happens before the cart is touched, so a failed lookup leaves it
// unchanged.
func (s *Service) AddFromCatalog(ctx context.Context, key Key, ref ProductRef) (*Cart, error) {
	if s == nil || s.Catalog == nil {
		return nil, errors.New("cart service: catalog not configured")
	}
	if err := common.Validate(ref); err != nil {
		return nil, err
	}
	in, err := s.Catalog.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if ref.Quantity > 0 {
		in.Quantity = ref.Quantity
	}
	return s.AddItem(ctx, key, in)
}

// UpdateItem applies u to item id.
func (s *Service) UpdateItem(ctx context.Context, key Key, id string, u ItemUpdate) (*Cart, error) {
	return s.mutate(ctx, "update_item", key, func(c *Cart) error {
		_, err := c.UpdateItem(id, u)
		return err
	})
}

// UpdateQuantity sets item id's quantity.
func (s *Service) UpdateQuantity(ctx context.Context, key Key, id string, qty float64) (*Cart, error) {
	return s.mutate(ctx, "update_quantity", key, func(c *Cart) error {
		_, err := c.UpdateQuantity(id, qty)
		return err
	})
}

// RemoveItem removes item id.
func (s *Service) RemoveItem(ctx context.Context, key Key, id string) (*Cart, error) {
	return s.mutate(ctx, "remove_item", key, func(c *Cart) error {
		return c.RemoveItem(id)
	})
}

// AddCondition adds a global condition from its structural form.
func (s *Service) AddCondition(ctx context.Context, key Key, rec condition.Record) (*Cart, error) {
	cond, err := condition.FromRecord(rec)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "add_condition", key, func(c *Cart) error {
		c.AddCondition(cond)
		return nil
	})
}

// RemoveCondition removes a global condition by name.
func (s *Service) RemoveCondition(ctx context.Context, key Key, name string) (*Cart, error) {
	return s.mutate(ctx, "remove_condition", key, func(c *Cart) error {
		if !c.RemoveCondition(name) {
			return fmt.Errorf("%w: condition %q", common.ErrNotFound, name)
		}
		return nil
	})
}

// AddItemCondition attaches a condition to item id.
func (s *Service) AddItemCondition(ctx context.Context, key Key, id string, rec condition.Record) (*Cart, error) {
	cond, err := condition.FromRecord(rec)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "add_item_condition", key, func(c *Cart) error {
		return c.AddItemCondition(id, cond)
	})
}

// AddRule adds a rule from its structural form.
func (s *Service) AddRule(ctx context.Context, key Key, rec rule.Record) (*Cart, error) {
	r, err := rule.FromRecord(rec)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "add_rule", key, func(c *Cart) error {
		c.AddRule(r)
		return nil
	})
}

// RemoveRule removes a rule by name.
func (s *Service) RemoveRule(ctx context.Context, key Key, name string) (*Cart, error) {
	return s.mutate(ctx, "remove_rule", key, func(c *Cart) error {
		if !c.RemoveRule(name) {
			return fmt.Errorf("%w: rule %q", common.ErrNotFound, name)
		}
		return nil
	})
}

// Clear removes all items.
func (s *Service) Clear(ctx context.Context, key Key) (*Cart, error) {
	return s.mutate(ctx, "clear", key, func(c *Cart) error {
		c.Clear()
		return nil
	})
}

// Reset removes items, conditions and rules.
func (s *Service) Reset(ctx context.Context, key Key) (*Cart, error) {
	return s.mutate(ctx, "reset", key, func(c *Cart) error {
		c.Reset()
		return nil
	})
}

// Destroy deletes the cart stored under key.
func (s *Service) Destroy(ctx context.Context, key Key) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := key.Validate(); err != nil {
		return err
	}
	return s.withLock(ctx, key, func(ctx context.Context) error {
		return s.Store.Delete(ctx, key)
	})
}

// Merge folds the cart under from into the cart under into, typically a
// guest cart into a user's cart at sign-in. Both keys are locked in a fixed
// order. A missing source cart leaves the target unchanged.
func (s *Service) Merge(ctx context.Context, from, into Key) (c *Cart, err error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := from.Validate(); err != nil {
		return nil, err
	}
	if err := into.Validate(); err != nil {
		return nil, err
	}
	strategy, err := StrategyFor(s.strategyName())
	if err != nil {
		return nil, err
	}
	if from.String() == into.String() {
		return s.Get(ctx, into)
	}
	start := time.Now()
	defer func() {
		obs.ObserveCartOperation("merge", err, obs.DurationMillis(time.Since(start)))
	}()

	first, second := from, into
	if strings.Compare(first.String(), second.String()) > 0 {
		first, second = second, first
	}
	var source *Cart
	err = s.withLock(ctx, first, func(ctx context.Context) error {
		return s.withLock(ctx, second, func(ctx context.Context) error {
			target, err := s.load(ctx, into)
			if err != nil {
				return err
			}
			snap, err := s.Store.Load(ctx, from)
			if errors.Is(err, ErrCartNotFound) {
				c = target
				return nil
			}
			if err != nil {
				return fmt.Errorf("load cart %s: %w", from, err)
			}
			if source, err = FromSnapshot(snap, s.Options); err != nil {
				return err
			}
			if err := target.MergeFrom(source, strategy, MergeOptions{ClearSource: s.MergeClearSource}); err != nil {
				return err
			}
			if err := s.Store.Save(ctx, into, target.Snapshot()); err != nil {
				return fmt.Errorf("save cart %s: %w", into, err)
			}
			if s.MergeClearSource {
				if err := s.Store.Delete(ctx, from); err != nil {
					return fmt.Errorf("delete cart %s: %w", from, err)
				}
			}
			c = target
			return nil
		})
	})
	if err != nil {
		s.Logger.Warn().Err(err).Str("from", from.String()).Str("into", into.String()).Msg("cart_merge_failed")
		return nil, err
	}
	s.flush(ctx, c, source)
	return c, nil
}

func (s *Service) strategyName() string {
	if strings.TrimSpace(s.MergeStrategy) == "" {
		return StrategySum
	}
	return s.MergeStrategy
}
