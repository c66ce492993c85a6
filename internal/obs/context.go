package obs

import (
	"context"
	"sync/atomic"
)

type routeKey struct{}

// routeHolder is shared by every middleware layer of one request so that outer layers
// see the pattern chi resolves while routing deeper.
type routeHolder struct {
	pattern atomic.Pointer[string]
}

func (h *routeHolder) set(pattern string) {
	if pattern != "" {
		h.pattern.CompareAndSwap(nil, &pattern)
	}
}

func (h *routeHolder) get() string {
	if p := h.pattern.Load(); p != nil {
		return *p
	}
	return ""
}

func withRouteHolder(ctx context.Context) (context.Context, *routeHolder) {
	if h, ok := ctx.Value(routeKey{}).(*routeHolder); ok {
		return ctx, h
	}
	h := &routeHolder{}
	return context.WithValue(ctx, routeKey{}, h), h
}

// WithRoutePattern records the matched route pattern on the context. The first
// non-empty pattern wins.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, h := withRouteHolder(ctx)
	h.set(pattern)
	return ctx
}

// RoutePatternFromContext returns the recorded route pattern, if any.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if h, ok := ctx.Value(routeKey{}).(*routeHolder); ok {
		return h.get()
	}
	return ""
}
