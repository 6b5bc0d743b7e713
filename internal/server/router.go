package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/mrbanana/devproxy/internal/config"
)

// BuildHandler constructs the handler for one route, typically an HTTP
// reverse proxy or a WebSocket relay depending on the route kind.
type BuildHandler func(rt config.Route) (http.Handler, error)

type route struct {
	prefix  string
	handler http.Handler
}

// Router dispatches requests to the longest matching route prefix and falls
// back to the front-end handler. The route table can be swapped at runtime
// when the config file reloads, without dropping in-flight connections.
type Router struct {
	mu       sync.RWMutex
	routes   []route
	fallback http.Handler
	build    BuildHandler
}

// NewRouter creates a router with the given fallback handler and route
// handler builder.
func NewRouter(fallback http.Handler, build BuildHandler) *Router {
	return &Router{
		fallback: fallback,
		build:    build,
	}
}

// SetRoutes replaces the route table. Routes whose handler cannot be built
// are skipped and reported; the rest of the table still takes effect.
func (rt *Router) SetRoutes(routes []config.Route) []error {
	var errs []error
	built := make([]route, 0, len(routes))
	for _, r := range routes {
		h, err := rt.build(r)
		if err != nil {
			errs = append(errs, fmt.Errorf("route %s: %w", r.Prefix, err))
			continue
		}
		built = append(built, route{prefix: r.Prefix, handler: h})
	}

	rt.mu.Lock()
	rt.routes = built
	rt.mu.Unlock()
	return errs
}

// Len returns the number of active routes.
func (rt *Router) Len() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.routes)
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.match(r.URL.Path).ServeHTTP(w, r)
}

func (rt *Router) match(path string) http.Handler {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	var best http.Handler
	bestLen := -1
	for _, r := range rt.routes {
		if matchesPrefix(path, r.prefix) && len(r.prefix) > bestLen {
			best = r.handler
			bestLen = len(r.prefix)
		}
	}
	if best == nil {
		return rt.fallback
	}
	return best
}

// matchesPrefix reports whether path falls under prefix at a path-segment
// boundary, so /api matches /api and /api/library but not /apiary.
func matchesPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}
