package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/daikazu/flexicart-sub000/internal/cart"
	"github.com/daikazu/flexicart-sub000/internal/condition"
	"github.com/daikazu/flexicart-sub000/internal/rule"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is the subset of *pgxpool.Pool the Postgres store needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores one carts row per cart key with its items in cart_items.
// Deleting a cart cascades to its items.
type Postgres struct {
	db  DB
	now func() time.Time
}

// NewPostgres wraps a pool.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// Migrate applies the embedded schema migrations to databaseURL.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

// migrateURL points a postgres URL at the pgx/v5 migrate driver.
func migrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if rest, ok := strings.CutPrefix(databaseURL, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}

type itemRow struct {
	ItemID     string
	Name       string
	Price      string
	Quantity   int32
	Taxable    bool
	Attributes []byte
	Conditions []byte
}

func (p *Postgres) Load(ctx context.Context, key cart.Key) (cart.Snapshot, error) {
	var (
		snap            cart.Snapshot
		conds, ruleRecs []byte
	)
	err := p.db.QueryRow(ctx,
		`SELECT id, currency, conditions, rules, updated_at FROM carts WHERE cart_key = $1`,
		key.String(),
	).Scan(&snap.ID, &snap.Currency, &conds, &ruleRecs, &snap.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return cart.Snapshot{}, cart.ErrCartNotFound
	}
	if err != nil {
		return cart.Snapshot{}, fmt.Errorf("select cart: %w", err)
	}
	snap.Currency = strings.TrimSpace(snap.Currency)
	if err := unmarshalJSON(conds, &snap.Conditions); err != nil {
		return cart.Snapshot{}, fmt.Errorf("decode conditions: %w", err)
	}
	if err := unmarshalJSON(ruleRecs, &snap.Rules); err != nil {
		return cart.Snapshot{}, fmt.Errorf("decode rules: %w", err)
	}

	rows, err := p.db.Query(ctx,
		`SELECT item_id, name, price::text, quantity, taxable, attributes, conditions
		   FROM cart_items WHERE cart_id = $1 ORDER BY position`,
		snap.ID,
	)
	if err != nil {
		return cart.Snapshot{}, fmt.Errorf("select items: %w", err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByPos[itemRow])
	if err != nil {
		return cart.Snapshot{}, fmt.Errorf("scan items: %w", err)
	}
	snap.Items = make([]cart.ItemRecord, 0, len(items))
	for _, row := range items {
		rec := cart.ItemRecord{
			ID:       row.ItemID,
			Name:     row.Name,
			Price:    row.Price,
			Quantity: int(row.Quantity),
			Taxable:  row.Taxable,
		}
		if err := unmarshalJSON(row.Attributes, &rec.Attributes); err != nil {
			return cart.Snapshot{}, fmt.Errorf("decode attributes of %q: %w", row.ItemID, err)
		}
		if err := unmarshalJSON(row.Conditions, &rec.Conditions); err != nil {
			return cart.Snapshot{}, fmt.Errorf("decode conditions of %q: %w", row.ItemID, err)
		}
		snap.Items = append(snap.Items, rec)
	}
	return snap, nil
}

func (p *Postgres) Save(ctx context.Context, key cart.Key, snap cart.Snapshot) error {
	conds, err := marshalJSON(snap.Conditions, []condition.Record{})
	if err != nil {
		return err
	}
	ruleRecs, err := marshalJSON(snap.Rules, []rule.Record{})
	if err != nil {
		return err
	}
	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = p.now().UTC()
	}

	return pgx.BeginFunc(ctx, p.db, func(tx pgx.Tx) error {
		var cartID string
		err := tx.QueryRow(ctx,
			`INSERT INTO carts (id, cart_key, user_id, session_id, currency, conditions, rules, updated_at)
			 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8)
			 ON CONFLICT (cart_key) DO UPDATE SET
			     currency = EXCLUDED.currency,
			     conditions = EXCLUDED.conditions,
			     rules = EXCLUDED.rules,
			     updated_at = EXCLUDED.updated_at
			 RETURNING id`,
			snap.ID, key.String(), key.UserID, key.SessionID, snap.Currency, conds, ruleRecs, updated,
		).Scan(&cartID)
		if err != nil {
			return fmt.Errorf("upsert cart: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		if len(snap.Items) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for i, it := range snap.Items {
			attrs, err := marshalJSON(it.Attributes, map[string]any{})
			if err != nil {
				return err
			}
			itemConds, err := marshalJSON(it.Conditions, []condition.Record{})
			if err != nil {
				return err
			}
			batch.Queue(
				`INSERT INTO cart_items (cart_id, item_id, position, name, price, quantity, taxable, attributes, conditions)
				 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)`,
				cartID, it.ID, i, it.Name, it.Price, it.Quantity, it.Taxable, attrs, itemConds,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert items: %w", err)
		}
		return nil
	})
}

func (p *Postgres) Delete(ctx context.Context, key cart.Key) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM carts WHERE cart_key = $1`, key.String()); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

// DeleteOlderThan removes carts last updated before cutoff.
func (p *Postgres) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM carts WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale carts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteAll removes every cart.
func (p *Postgres) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM carts`)
	if err != nil {
		return 0, fmt.Errorf("delete carts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func marshalJSON[T any](v T, empty T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return json.Marshal(empty)
	}
	return data, nil
}

func unmarshalJSON(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
