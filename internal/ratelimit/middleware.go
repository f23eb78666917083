package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	limiter "github.com/ulule/limiter/v3"

	"github.com/daikazu/flexicart-sub000/internal/common"
)

// CodeRateLimited is the error code rendered when a caller exceeds its rate.
const CodeRateLimited = "RATE_LIMITED"

// KeyFunc derives the bucket a request is counted against.
type KeyFunc func(*http.Request) string

// HeaderOrIP keys requests by the first non-empty header, falling back to the
// client IP. Cart callers are identified by their user or session header.
func HeaderOrIP(headers ...string) KeyFunc {
	return func(r *http.Request) string {
		for _, h := range headers {
			if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
				return h + ":" + v
			}
		}
		return "ip:" + common.ClientIP(r)
	}
}

// Handler enforces rate limits before delegating to the next handler.
type Handler struct {
	Limiter *limiter.Limiter
	Key     KeyFunc
	OnError func(error)
}

// Middleware implements the http.Handler middleware interface. Limiter store
// failures let the request through.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil {
		return next
	}
	key := h.Key
	if key == nil {
		key = HeaderOrIP()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lctx, err := h.Limiter.Get(r.Context(), key(r))
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			retryAfter := max(time.Until(time.Unix(lctx.Reset, 0)), 0)
			headers.Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			common.JSONError(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
