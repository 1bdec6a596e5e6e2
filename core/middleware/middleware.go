// Package middleware composes ordered middleware around a terminal
// handler into a single callable. The chain is built once, before the
// server starts serving, and never mutated afterwards.
package middleware

import (
	"context"

	"github.com/searchktools/goapi/core/http"
)

// Next continues the chain for a request and returns the downstream
// response.
type Next func(ctx context.Context, req *http.Request) (*http.Response, error)

// Middleware wraps request handling. An implementation may run logic
// before and after next, short-circuit by not calling it, and modify the
// outgoing response.
type Middleware interface {
	Handle(ctx context.Context, req *http.Request, next Next) (*http.Response, error)
}

// Func adapts a function to the Middleware interface.
type Func func(ctx context.Context, req *http.Request, next Next) (*http.Response, error)

// Handle implements Middleware.
func (f Func) Handle(ctx context.Context, req *http.Request, next Next) (*http.Response, error) {
	return f(ctx, req, next)
}

// Chain composes middlewares around terminal, right to left, so the
// first element runs outermost.
func Chain(middlewares []Middleware, terminal Next) Next {
	chain := terminal
	for i := len(middlewares) - 1; i >= 0; i-- {
		mw := middlewares[i]
		next := chain
		chain = func(ctx context.Context, req *http.Request) (*http.Response, error) {
			return mw.Handle(ctx, req, next)
		}
	}
	return chain
}
