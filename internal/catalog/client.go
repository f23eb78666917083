// Package catalog resolves product references into cart-ready items through
// a remote catalog service.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/daikazu/flexicart-sub000/internal/cart"
	"github.com/daikazu/flexicart-sub000/internal/common"
	"github.com/daikazu/flexicart-sub000/internal/condition"
	"github.com/daikazu/flexicart-sub000/internal/obs"
	"github.com/daikazu/flexicart-sub000/internal/resilience"
)

// Product is the catalog's JSON representation of a purchasable product.
type Product struct {
	ID         string             `json:"id"`
	VariantID  string             `json:"variant_id,omitempty"`
	Name       string             `json:"name"`
	Price      string             `json:"price"`
	Currency   string             `json:"currency,omitempty"`
	Taxable    *bool              `json:"taxable,omitempty"`
	Attributes map[string]any     `json:"attributes,omitempty"`
	Conditions []condition.Record `json:"conditions,omitempty"`
}

// ItemInput converts p into a cart item payload. Variants get their own
// line id so two variants of one product never merge.
func (p Product) ItemInput(quantity float64) cart.ItemInput {
	id := p.ID
	attrs := make(map[string]any, len(p.Attributes)+2)
	for k, v := range p.Attributes {
		attrs[k] = v
	}
	attrs["product_id"] = p.ID
	if p.VariantID != "" {
		id = p.ID + ":" + p.VariantID
		attrs["variant_id"] = p.VariantID
	}
	return cart.ItemInput{
		ID:         id,
		Name:       p.Name,
		Price:      p.Price,
		Currency:   p.Currency,
		Quantity:   quantity,
		Taxable:    p.Taxable,
		Attributes: attrs,
		Conditions: p.Conditions,
	}
}

// Config configures HTTPClient.
type Config struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxAttempts int
	Logger      zerolog.Logger
}

// HTTPClient looks products up over HTTP. It implements cart.Resolver.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    resilience.HTTPClient
	logger  zerolog.Logger
}

// NewHTTPClient builds a client whose transport is traced and whose calls are
// retried and guarded by a breaker targeting "catalog".
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker: resilience.NewBreaker(resilience.BreakerConfig{
				Name:         "catalog",
				MinRequests:  5,
				FailureRatio: 0.5,
				Cooldown:     30 * time.Second,
				Logger:       cfg.Logger,
			}),
			BaseBackoff: 100 * time.Millisecond,
			MaxAttempts: attempts,
			Jitter:      0.2,
			Timeout:     timeout,
		},
		logger: cfg.Logger.With().Str("component", "catalog").Logger(),
	}
}

// Resolve fetches ref from the catalog. Rejected credentials surface as
// ErrAuthentication; every other failure, including non-2xx responses, as
// ErrConnection. Both carry the upstream status in Details when there is one.
func (c *HTTPClient) Resolve(ctx context.Context, ref cart.ProductRef) (in cart.ItemInput, err error) {
	defer func() { observeLookup(err) }()

	if c == nil || c.baseURL == "" {
		return cart.ItemInput{}, connectionError("catalog base url not configured", 0, nil)
	}
	endpoint := c.baseURL + "/products/" + url.PathEscape(ref.ProductID)
	if ref.VariantID != "" {
		endpoint += "?variant=" + url.QueryEscape(ref.VariantID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return cart.ItemInput{}, connectionError("build catalog request", 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		status := 0
		var statusErr *resilience.StatusError
		if errors.As(err, &statusErr) {
			status = statusErr.StatusCode
		}
		c.logger.Warn().Err(err).Str("product_id", ref.ProductID).Msg("catalog_lookup_failed")
		return cart.ItemInput{}, connectionError("catalog unavailable", status, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.Error().Int("status", resp.StatusCode).Msg("catalog_rejected_credentials")
		return cart.ItemInput{}, &common.AppError{
			Code:       common.CodeAuthentication,
			Message:    "catalog rejected credentials",
			HTTPStatus: http.StatusBadGateway,
			Err:        common.ErrAuthentication,
			Details:    map[string]any{"upstream_status": resp.StatusCode},
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, resp.Body)
		return cart.ItemInput{}, connectionError(
			fmt.Sprintf("catalog responded %d for product %q", resp.StatusCode, ref.ProductID),
			resp.StatusCode, nil,
		)
	}

	var payload struct {
		Data Product `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return cart.ItemInput{}, connectionError("decode catalog response", resp.StatusCode, err)
	}
	if payload.Data.ID == "" {
		payload.Data.ID = ref.ProductID
	}
	if payload.Data.VariantID == "" {
		payload.Data.VariantID = ref.VariantID
	}
	return payload.Data.ItemInput(ref.Quantity), nil
}

func connectionError(msg string, upstream int, cause error) *common.AppError {
	err := common.ErrConnection
	if cause != nil {
		err = fmt.Errorf("%w: %v", common.ErrConnection, cause)
	}
	appErr := &common.AppError{
		Code:       common.CodeConnection,
		Message:    msg,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
	if upstream != 0 {
		appErr.Details = map[string]any{"upstream_status": upstream}
	}
	return appErr
}

func observeLookup(err error) {
	if obs.CatalogLookupsTotal == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, common.ErrAuthentication):
		result = "auth_error"
	case err != nil:
		result = "error"
	}
	obs.CatalogLookupsTotal.WithLabelValues(result).Inc()
}
