package obs

import "context"

type routeKey struct{}

// routeSlot is shared by every middleware layer of one request so a pattern
// resolved deep in the router is visible to the layers wrapping it.
type routeSlot struct {
	pattern string
}

// WithRoutePattern returns a context carrying pattern. An existing slot is
// updated in place.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if slot, ok := ctx.Value(routeKey{}).(*routeSlot); ok {
		slot.pattern = pattern
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, &routeSlot{pattern: pattern})
}

// RoutePatternFromContext returns the recorded route pattern or "".
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if slot, ok := ctx.Value(routeKey{}).(*routeSlot); ok {
		return slot.pattern
	}
	return ""
}
