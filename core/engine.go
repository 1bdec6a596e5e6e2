// Package core wires the router, middleware chain and server into the
// framework's public engine.
package core

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/searchktools/goapi/config"
	"github.com/searchktools/goapi/core/http"
	"github.com/searchktools/goapi/core/middleware"
	"github.com/searchktools/goapi/core/multipart"
	"github.com/searchktools/goapi/core/router"
	"github.com/searchktools/goapi/core/server"
	"github.com/searchktools/goapi/core/stats"
	"github.com/searchktools/goapi/shared/logging"
	"github.com/searchktools/goapi/shared/redis"
)

// ErrAlreadyStarted is returned by mutating calls after Start.
var ErrAlreadyStarted = errors.New("engine: server already started")

// Engine is the top-level server object. Routes and middleware are
// registered before Start; both are frozen once serving begins.
type Engine struct {
	cfg config.Config

	trie        *router.Trie
	middlewares []middleware.Middleware
	chain       middleware.Next

	running atomic.Bool

	srv     *server.Server
	log     *logging.Logger
	ownsLog bool
	metrics *stats.Metrics
	reg     prometheus.Registerer
	redis   *redis.Client

	stopOnce sync.Once
	done     chan struct{}

	signals chan os.Signal
}

// New returns an engine ready for route and middleware registration.
func New() *Engine {
	return &Engine{
		trie: router.NewTrie(),
		done: make(chan struct{}),
	}
}

// SetLogger injects a logger; without one, Start builds it from the
// configuration.
func (e *Engine) SetLogger(l *logging.Logger) { e.log = l }

// SetMetricsRegistry injects the Prometheus registry the engine's
// collectors register with.
func (e *Engine) SetMetricsRegistry(reg prometheus.Registerer) { e.reg = reg }

// Logger returns the engine's logger; nil before Start when none was
// injected.
func (e *Engine) Logger() *logging.Logger { return e.log }

// Redis returns the shared Redis handle; nil unless configured.
func (e *Engine) Redis() *redis.Client { return e.redis }

// Handle registers a synchronous route.
func (e *Engine) Handle(method http.Method, pattern string, h router.SyncHandler) error {
	if e.running.Load() {
		return ErrAlreadyStarted
	}
	return e.trie.Insert(method, pattern, router.NewRoute(method, pattern, h))
}

// HandleAsync registers an asynchronous route.
func (e *Engine) HandleAsync(method http.Method, pattern string, h router.AsyncHandler) error {
	if e.running.Load() {
		return ErrAlreadyStarted
	}
	return e.trie.Insert(method, pattern, router.NewAsyncRoute(method, pattern, h))
}

// GET registers a GET route.
func (e *Engine) GET(pattern string, h router.SyncHandler) error {
	return e.Handle(http.MethodGet, pattern, h)
}

// POST registers a POST route.
func (e *Engine) POST(pattern string, h router.SyncHandler) error {
	return e.Handle(http.MethodPost, pattern, h)
}

// PUT registers a PUT route.
func (e *Engine) PUT(pattern string, h router.SyncHandler) error {
	return e.Handle(http.MethodPut, pattern, h)
}

// DELETE registers a DELETE route.
func (e *Engine) DELETE(pattern string, h router.SyncHandler) error {
	return e.Handle(http.MethodDelete, pattern, h)
}

// PATCH registers a PATCH route.
func (e *Engine) PATCH(pattern string, h router.SyncHandler) error {
	return e.Handle(http.MethodPatch, pattern, h)
}

// HEAD registers a HEAD route.
func (e *Engine) HEAD(pattern string, h router.SyncHandler) error {
	return e.Handle(http.MethodHead, pattern, h)
}

// OPTIONS registers an OPTIONS route.
func (e *Engine) OPTIONS(pattern string, h router.SyncHandler) error {
	return e.Handle(http.MethodOptions, pattern, h)
}

// Use appends a middleware. The order is frozen when Start runs; adding
// afterwards fails.
func (e *Engine) Use(mw middleware.Middleware) error {
	if e.running.Load() {
		return ErrAlreadyStarted
	}
	e.middlewares = append(e.middlewares, mw)
	return nil
}

// Start normalizes the configuration, freezes routes and middleware,
// binds the listener and returns once the accept loop is running.
func (e *Engine) Start(cfg config.Config) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	e.cfg = cfg

	if e.log == nil {
		e.log = logging.New(logging.Options{
			Level:            cfg.Logger.Level,
			ForceFlush:       cfg.Logger.ForceFlush,
			Async:            cfg.Logger.Async,
			BufferSize:       cfg.Logger.BufferSize,
			OverflowStrategy: logging.ParseStrategy(cfg.Logger.OverflowStrategy),
		})
		e.ownsLog = true
	}

	if fellBack := e.cfg.Normalize(); fellBack {
		e.log.Warn().Str("port", cfg.Port).Msg("port number is not supported, using 8080 instead")
	}

	if err := os.MkdirAll(e.cfg.Server.TmpDir, 0o700); err != nil {
		e.running.Store(false)
		return http.NewServerError("failed to create tmp directory", err)
	}

	e.metrics = stats.New(e.reg)
	e.chain = middleware.Chain(e.middlewares, e.terminal)

	jsonErrors := e.cfg.HTTP.ResponseClass == config.ResponseClassJSON

	srv, err := server.New(server.Options{
		Host:             e.cfg.Host,
		Port:             e.cfg.ResolvedPort(),
		MaxConnections:   e.cfg.Server.MaxConnections,
		MaxRequestSize:   e.cfg.Server.MaxRequestSize,
		MaxChunkSize:     e.cfg.Server.MaxChunkSize,
		KeepAliveTimeout: e.cfg.HTTP.KeepAliveTimeout,
		TmpDir:           e.cfg.Server.TmpDir,
		JSONErrors:       jsonErrors,
		Socket:           e.cfg.Socket,
	}, e.dispatch, &e.running, e.log, e.metrics)
	if err != nil {
		e.running.Store(false)
		return err
	}
	e.srv = srv

	if e.cfg.Redis.Host != "" {
		e.redis = redis.New(redis.Config{
			Host:                e.cfg.Redis.Host,
			Port:                e.cfg.Redis.Port,
			User:                e.cfg.Redis.User,
			Password:            e.cfg.Redis.Password,
			ClientName:          e.cfg.Redis.ClientName,
			HealthCheckInterval: secondsToDuration(e.cfg.Redis.HealthCheckInterval),
			ReconnectInterval:   secondsToDuration(e.cfg.Redis.ReconnectInterval),
		}, e.log)
		if err := e.redis.Connect(context.Background()); err != nil {
			e.log.Error().Err(err).Msg("redis connect failed")
		}
	}

	e.signals = make(chan os.Signal, 1)
	signal.Notify(e.signals, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		if _, ok := <-e.signals; ok {
			e.Stop()
		}
	}()

	e.log.Info().Str("host", e.cfg.Host).Str("port", e.cfg.Port).Msg("starting server")
	e.srv.Start(e.cfg.Server.Workers)
	return nil
}

// Stop shuts the server down. Idempotent; the first call wins.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.running.Store(false)

		if e.signals != nil {
			signal.Stop(e.signals)
			close(e.signals)
		}
		if e.srv != nil {
			e.srv.Stop()
		}
		if e.redis != nil {
			if err := e.redis.Close(); err != nil {
				e.log.Error().Err(err).Msg("redis close failed")
			}
		}
		if e.log != nil {
			e.log.Info().Str("host", e.cfg.Host).Str("port", e.cfg.Port).Msg("server stopped")
			if e.ownsLog {
				e.log.Close()
			}
		}
		close(e.done)
	})
}

// Wait blocks until Stop has run.
func (e *Engine) Wait() {
	<-e.done
}

// dispatch runs the frozen middleware chain with panic containment; a
// recovered panic surfaces as an error the pipeline maps to 500.
func (e *Engine) dispatch(ctx context.Context, req *http.Request) (resp *http.Response, err error) {
	defer func() {
		if v := recover(); v != nil {
			e.log.Error().Any("panic", v).Str("uri", req.URI).Msg("panic in handler")
			resp = nil
			err = http.NewProcessingError("panic in handler: %v", v)
		}
	}()
	return e.chain(ctx, req)
}

// terminal is the innermost chain element: route lookup, context
// construction (including multipart parsing) and handler invocation.
func (e *Engine) terminal(ctx context.Context, req *http.Request) (*http.Response, error) {
	jsonErrors := e.cfg.HTTP.ResponseClass == config.ResponseClassJSON

	rt, params, ok := e.trie.Find(req.Method, req.Path())
	if !ok {
		return http.ErrorResponse(http.StatusNotFound, "Not found", jsonErrors), nil
	}
	if rt == nil {
		return http.ErrorResponse(http.StatusInternalServerError, "Internal server error", jsonErrors), nil
	}

	hctx, err := http.NewContext(req, params, multipart.Options{
		ChunkSize:        e.cfg.Server.MaxChunkSize,
		ChunkSizeDisk:    e.cfg.Server.MaxChunkSizeDisk,
		MaxFileInMemory:  e.cfg.Server.MaxFileSizeInMemory,
		MaxFilesInMemory: e.cfg.Server.MaxFilesSizeInMemory,
		TempDir:          e.cfg.Server.TmpDir,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := hctx.Close(); cerr != nil {
			e.log.Warn().Err(cerr).Msg("failed to delete temp file")
		}
	}()

	return rt.Invoke(ctx, hctx)
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
