package router

import (
	"context"

	"github.com/searchktools/goapi/core/http"
)

// SyncHandler produces a response directly.
type SyncHandler func(*http.Context) *http.Response

// AsyncHandler produces a response through blocking work and may fail;
// it observes ctx for cancellation.
type AsyncHandler func(ctx context.Context, c *http.Context) (*http.Response, error)

// Route binds a method and path pattern to exactly one handler variant.
// The tag is fixed at construction and inspected once at dispatch.
type Route struct {
	method  http.Method
	pattern string

	sync  SyncHandler
	async AsyncHandler
}

// NewRoute builds a route with a synchronous handler.
func NewRoute(method http.Method, pattern string, h SyncHandler) *Route {
	return &Route{method: method, pattern: pattern, sync: h}
}

// NewAsyncRoute builds a route with an asynchronous handler.
func NewAsyncRoute(method http.Method, pattern string, h AsyncHandler) *Route {
	return &Route{method: method, pattern: pattern, async: h}
}

// Method returns the route's HTTP method.
func (r *Route) Method() http.Method { return r.method }

// Pattern returns the registered path pattern.
func (r *Route) Pattern() string { return r.pattern }

// IsAsync reports which handler variant the route holds.
func (r *Route) IsAsync() bool { return r.async != nil }

// Invoke dispatches to the held handler variant.
func (r *Route) Invoke(ctx context.Context, c *http.Context) (*http.Response, error) {
	if r.async != nil {
		return r.async(ctx, c)
	}
	return r.sync(c), nil
}
