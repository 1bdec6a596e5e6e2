/*
Package goapi is an asynchronous HTTP/1.1 server framework.

The core is four subsystems: a connection acceptor with a per-connection
request pipeline and keep-alive, a streaming request parser with a
memory/disk split for oversized bodies and multipart/form-data uploads,
a method-aware path-segment trie router with named parameters, and a
middleware chain composed around the router that yields either a
buffered response or a chunked streaming response.

Quick start:

	package main

	import (
	    "github.com/searchktools/goapi/app"
	    "github.com/searchktools/goapi/config"
	    "github.com/searchktools/goapi/core/http"
	)

	func main() {
	    application := app.New(config.Default())

	    engine := application.Engine()
	    engine.GET("/ping", func(c *http.Context) *http.Response {
	        return http.NewTextResponse("pong", http.StatusOK, http.Headers{})
	    })
	    engine.GET("/user/{id}", func(c *http.Context) *http.Response {
	        return http.NewTextResponse(c.Param("id"), http.StatusOK, http.Headers{})
	    })

	    application.Run()
	}

Modules:

  - app: application lifecycle facade
  - config: structured configuration (defaults, YAML, dotenv/env)
  - core: the engine: routes, middleware freeze, start/stop/wait
  - core/http: methods, requests, responses, cookies, MIME, context
  - core/multipart: bounded-memory multipart/form-data engine
  - core/router: path-segment trie with {name} parameters
  - core/middleware: middleware contract and chain composition
  - core/server: acceptor, socket options, request pipeline
  - core/pools: worker pool supervising connection pipelines
  - core/stats: Prometheus collectors for the hot path
  - shared/logging: zerolog-backed async logger
  - shared/redis: pooled Redis collaborator
*/
package goapi
