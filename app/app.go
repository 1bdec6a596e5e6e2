// Package app is the thin bootstrap facade: it pairs a configuration
// with an engine and runs the serve/wait cycle.
package app

import (
	"github.com/searchktools/goapi/config"
	"github.com/searchktools/goapi/core"
)

// App is one application instance.
type App struct {
	cfg    config.Config
	engine *core.Engine
}

// New creates an application with a fresh engine.
func New(cfg config.Config) *App {
	return &App{cfg: cfg, engine: core.New()}
}

// NewWithEngine creates an application around a pre-configured engine.
func NewWithEngine(cfg config.Config, engine *core.Engine) *App {
	return &App{cfg: cfg, engine: engine}
}

// Engine exposes the engine for route and middleware registration.
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Run starts the server and blocks until it stops. Termination signals
// are wired by the engine.
func (a *App) Run() error {
	if err := a.engine.Start(a.cfg); err != nil {
		return err
	}
	a.engine.Wait()
	return nil
}

// Shutdown stops the server; safe to call from any goroutine and
// idempotent.
func (a *App) Shutdown() {
	a.engine.Stop()
}
