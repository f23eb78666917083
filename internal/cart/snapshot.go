package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/daikazu/flexicart-sub000/internal/common"
	"github.com/daikazu/flexicart-sub000/internal/condition"
	"github.com/daikazu/flexicart-sub000/internal/rule"
)

// ErrCartNotFound is returned by stores when no cart is saved under a key.
var ErrCartNotFound = fmt.Errorf("%w: cart", common.ErrNotFound)

// Key identifies a persisted cart: a signed-in user or an anonymous session.
type Key struct {
	UserID    string
	SessionID string
}

// String renders the key as "user:<id>" or "session:<id>". The user id wins
// when both are set.
func (k Key) String() string {
	if u := strings.TrimSpace(k.UserID); u != "" {
		return "user:" + u
	}
	return "session:" + strings.TrimSpace(k.SessionID)
}

// Validate reports an error when neither identifier is present.
func (k Key) Validate() error {
	if strings.TrimSpace(k.UserID) == "" && strings.TrimSpace(k.SessionID) == "" {
		return fmt.Errorf("%w: user id or session id is required", common.ErrValidation)
	}
	return nil
}

// ItemRecord is the structural form of an Item.
type ItemRecord struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Price      string             `json:"price"`
	Quantity   int                `json:"quantity"`
	Taxable    bool               `json:"taxable"`
	Attributes map[string]any     `json:"attributes,omitempty"`
	Conditions []condition.Record `json:"conditions,omitempty"`
}

// Snapshot is the plain, storable state of a cart.
type Snapshot struct {
	ID         string             `json:"id"`
	Currency   string             `json:"currency"`
	Items      []ItemRecord       `json:"items"`
	Conditions []condition.Record `json:"conditions,omitempty"`
	Rules      []rule.Record      `json:"rules,omitempty"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Store persists cart snapshots. Load returns ErrCartNotFound for unknown keys.
type Store interface {
	Load(ctx context.Context, key Key) (Snapshot, error)
	Save(ctx context.Context, key Key, snap Snapshot) error
	Delete(ctx context.Context, key Key) error
}

// Snapshot captures the cart's current state.
func (c *Cart) Snapshot() Snapshot {
	snap := Snapshot{
		ID:         c.id,
		Currency:   c.opts.Currency,
		Items:      make([]ItemRecord, 0, len(c.order)),
		Conditions: c.conditions.Records(),
		UpdatedAt:  c.now().UTC(),
	}
	for _, id := range c.order {
		snap.Items = append(snap.Items, c.items[id].record())
	}
	for _, r := range c.rules {
		snap.Rules = append(snap.Rules, r.Record())
	}
	return snap
}

func (it Item) record() ItemRecord {
	return ItemRecord{
		ID:         it.id,
		Name:       it.name,
		Price:      it.unitPrice.Amount().String(),
		Quantity:   it.quantity,
		Taxable:    it.taxable,
		Attributes: it.attributes.Clone(),
		Conditions: it.conditions.Records(),
	}
}

// FromSnapshot rebuilds a cart. The snapshot's currency overrides
// opts.Currency when set. Restoring records no events.
func FromSnapshot(snap Snapshot, opts Options) (*Cart, error) {
	if snap.Currency != "" {
		opts.Currency = snap.Currency
	}
	c, err := New(snap.ID, opts)
	if err != nil {
		return nil, err
	}
	for _, rec := range snap.Items {
		taxable := rec.Taxable
		it, err := NewItem(ItemInput{
			ID:         rec.ID,
			Name:       rec.Name,
			Price:      rec.Price,
			Quantity:   float64(rec.Quantity),
			Taxable:    &taxable,
			Attributes: rec.Attributes,
			Conditions: rec.Conditions,
		}, c.opts.Currency)
		if err != nil {
			return nil, fmt.Errorf("restore item %q: %w", rec.ID, err)
		}
		c.insert(it)
	}
	if c.conditions, err = condition.ListFromRecords(snap.Conditions); err != nil {
		return nil, fmt.Errorf("restore conditions: %w", err)
	}
	if c.conditions, err = c.conditions.InCurrency(c.opts.Currency); err != nil {
		return nil, fmt.Errorf("restore conditions: %w", err)
	}
	for _, rec := range snap.Rules {
		r, err := rule.FromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("restore rule %q: %w", rec.Name, err)
		}
		c.rules = append(c.rules, r)
	}
	return c, nil
}
