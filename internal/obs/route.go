package obs

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type routePatternKey struct{}

// UnmatchedRoute labels requests no route matched, keeping raw paths out of
// metric labels.
const UnmatchedRoute = "unmatched"

// WithRoutePattern pins the route label for a request, overriding the router.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RouteLabel returns the matched route pattern for r. Chi fills its route
// context while routing, so middleware must call this after the next handler
// has run.
func RouteLabel(r *http.Request, fallback string) string {
	ctx := r.Context()
	if v, ok := ctx.Value(routePatternKey{}).(string); ok && v != "" {
		return v
	}
	if rc := chi.RouteContext(ctx); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return fallback
}
