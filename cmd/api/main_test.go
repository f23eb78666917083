package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daikazu/flexicart-sub000/internal/app"
	"github.com/daikazu/flexicart-sub000/internal/cart"
	"github.com/daikazu/flexicart-sub000/internal/config"
)

func newTestRouter(t *testing.T, rate string) http.Handler {
	t.Helper()
	cfg := &config.Config{
		RateLimit: rate,
		Cart: config.CartConfig{
			Currency:      "USD",
			Locale:        "en-US",
			Storage:       config.StorageMemory,
			MergeStrategy: cart.StrategySum,
			LockTTL:       time.Second,
		},
		Obs: config.ObsConfig{MetricsNamespace: "flexicart_api_test"},
	}
	deps, err := app.Build(context.Background(), cfg, zerolog.Nop(), "flexicart-api-test")
	require.NoError(t, err)
	t.Cleanup(deps.Close)

	h, err := newRouter(deps, zerolog.Nop())
	require.NoError(t, err)
	return h
}

func TestRouterServesCart(t *testing.T) {
	h := newTestRouter(t, "100-M")

	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"id":"a","name":"A","price":"4.00","quantity":2}`))
	req.Header.Set(cart.HeaderSessionID, "sess-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"8.00"`)
	assert.Equal(t, "99", rr.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterRateLimitsCartRoutes(t *testing.T) {
	h := newTestRouter(t, "1-M")
	get := func() int {
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.Header.Set(cart.HeaderSessionID, "sess-1")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}
	assert.Equal(t, http.StatusOK, get())
	assert.Equal(t, http.StatusTooManyRequests, get())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterRejectsOversizedBody(t *testing.T) {
	h := newTestRouter(t, "100-M")
	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(strings.Repeat("x", maxBodyBytes+1)))
	req.Header.Set(cart.HeaderSessionID, "sess-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestRouterRejectsBadRate(t *testing.T) {
	cfg := &config.Config{
		RateLimit: "often",
		Cart:      config.CartConfig{Currency: "USD", Storage: config.StorageMemory, MergeStrategy: cart.StrategySum},
		Obs:       config.ObsConfig{MetricsNamespace: "flexicart_api_test"},
	}
	deps, err := app.Build(context.Background(), cfg, zerolog.Nop(), "flexicart-api-test")
	require.NoError(t, err)
	t.Cleanup(deps.Close)
	_, err = newRouter(deps, zerolog.Nop())
	require.Error(t, err)
}
