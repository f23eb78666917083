package health

import (
	"context"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/daikazu/flexicart-sub000/internal/common"
)

// Probe checks one dependency of the configured cart backend.
type Probe func(ctx context.Context) error

var draining atomic.Bool

// SetReady flips the process readiness. The API clears it when shutdown
// starts so load balancers stop routing new carts here.
func SetReady(ready bool) { draining.Store(!ready) }

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	// Probes maps a dependency name ("postgres", "redis") to its check. Only
	// the dependencies the selected storage uses are registered.
	Probes  map[string]Probe
	Timeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	healthy := !draining.Load()
	if !healthy {
		status["server"] = "shutting down"
	}

	names := make([]string, 0, len(h.Probes))
	for name := range h.Probes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
		err := h.Probes[name](ctx)
		cancel()
		if err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, status)
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.Timeout
}
