package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daikazu/flexicart-sub000/internal/cart"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"CART_STORAGE":        "",
		"CART_CURRENCY":       "",
		"CART_MERGE_STRATEGY": "",
		"CART_SESSION_TTL":    "",
		"PORT":                "",
	})
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Cart.Storage)
	assert.Equal(t, "USD", cfg.Cart.Currency)
	assert.Equal(t, "en-US", cfg.Cart.Locale)
	assert.True(t, cfg.Cart.EventsEnabled)
	assert.False(t, cfg.Cart.CompoundDiscounts)
	assert.Equal(t, cart.StrategySum, cfg.Cart.MergeStrategy)
	assert.True(t, cfg.Cart.MergeClearSource)
	assert.Equal(t, 168*time.Hour, cfg.Cart.SessionTTL)
	assert.Equal(t, 720*time.Hour, cfg.Cleanup.Lifetime)
	assert.Equal(t, "@daily", cfg.Cleanup.Schedule)
	assert.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"CART_STORAGE":            "session",
		"REDIS_URL":               "redis://localhost:6379/0",
		"CART_CURRENCY":           "eur",
		"CART_COMPOUND_DISCOUNTS": "true",
		"CART_EVENTS_ENABLED":     "off",
		"CART_MERGE_STRATEGY":     "MAX",
		"CART_SESSION_TTL":        "2h",
		"CART_CLEANUP_ENABLED":    "yes",
		"CART_CLEANUP_LIFETIME":   "bogus",
		"CORS_ALLOWED_ORIGINS":    "https://a.test, ,https://b.test",
		"PORT":                    ":9090",
	})
	require.NoError(t, err)

	assert.Equal(t, StorageSession, cfg.Cart.Storage)
	assert.Equal(t, "EUR", cfg.Cart.Currency)
	assert.True(t, cfg.Cart.CompoundDiscounts)
	assert.False(t, cfg.Cart.EventsEnabled)
	assert.Equal(t, cart.StrategyMax, cfg.Cart.MergeStrategy)
	assert.Equal(t, 2*time.Hour, cfg.Cart.SessionTTL)
	assert.True(t, cfg.Cleanup.Enabled)
	assert.Equal(t, 720*time.Hour, cfg.Cleanup.Lifetime)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, ":9090", cfg.HTTPAddr())

	opts := cfg.CartOptions()
	assert.Equal(t, "EUR", opts.Currency)
	assert.True(t, opts.CompoundDiscounts)
	assert.False(t, opts.EventsEnabled)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown storage":       {"CART_STORAGE": "disk"},
		"session without redis": {"CART_STORAGE": "session", "REDIS_URL": ""},
		"database without url":  {"CART_STORAGE": "database", "DATABASE_URL": ""},
		"bad currency":          {"CART_CURRENCY": "ZZZ"},
		"bad merge strategy":    {"CART_MERGE_STRATEGY": "average"},
		"cleanup on memory":     {"CART_STORAGE": "memory", "CART_CLEANUP_ENABLED": "true"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadForTests(env)
			require.Error(t, err)
		})
	}
}
