// Package server binds the listening socket, runs the accept loops and
// drives one request pipeline per accepted connection on the worker
// pool.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/net/netutil"

	"github.com/searchktools/goapi/config"
	"github.com/searchktools/goapi/core/middleware"
	"github.com/searchktools/goapi/core/pools"
	"github.com/searchktools/goapi/core/stats"
	"github.com/searchktools/goapi/shared/logging"
)

// Options carries the slice of the configuration the server needs.
type Options struct {
	Host string
	Port int

	MaxConnections int
	MaxRequestSize int64
	MaxChunkSize   int

	KeepAliveTimeout int

	TmpDir string

	// JSONErrors selects the JSON response class for framework error
	// bodies.
	JSONErrors bool

	Socket config.SocketConfig
}

// Server owns the listener, the acceptor goroutines and the worker pool.
type Server struct {
	opts Options

	// dispatch runs the middleware chain for one request.
	dispatch middleware.Next

	running *atomic.Bool
	log     *logging.Logger
	metrics *stats.Metrics

	listener net.Listener
	pool     *pools.WorkerPool

	ctx    context.Context
	cancel context.CancelFunc

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	acceptors sync.WaitGroup
}

// New binds the listening socket. Listener-level socket options that
// fail are logged, not fatal; a failed bind aborts startup.
func New(opts Options, dispatch middleware.Next, running *atomic.Bool, log *logging.Logger, metrics *stats.Metrics) (*Server, error) {
	s := &Server{
		opts:     opts,
		dispatch: dispatch,
		running:  running,
		log:      log,
		metrics:  metrics,
		conns:    make(map[net.Conn]struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	lc := net.ListenConfig{Control: s.controlListener}

	ln, err := lc.Listen(context.Background(), "tcp", net.JoinHostPort(opts.Host, fmt.Sprintf("%d", opts.Port)))
	if err != nil {
		return nil, fmt.Errorf("server: failed to listen: %w", err)
	}

	if opts.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, opts.MaxConnections)
	}
	s.listener = ln
	return s, nil
}

// AcceptorsFor derives the acceptor count and task-worker count from the
// configured workers value; zero or negative means hardware concurrency.
func AcceptorsFor(workersCount int) (workers, acceptors, regular int) {
	workers = workersCount
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	switch {
	case workers <= 4:
		acceptors = 1
	case workers <= 16:
		acceptors = max(2, workers/6)
	default:
		acceptors = max(3, workers/8)
	}
	acceptors = max(1, acceptors)

	regular = workers - acceptors
	if regular < 1 {
		regular = 1
		if workers == 1 {
			acceptors = 1
		}
	}
	return workers, acceptors, regular
}

// Start spawns the accept loops and the worker pool. It returns once the
// acceptors are running.
func (s *Server) Start(workersCount int) {
	workers, acceptors, regular := AcceptorsFor(workersCount)
	if workersCount <= 0 {
		s.log.Debug().Int("workers", workers).Msg("workers count derived from hardware concurrency")
	}
	s.log.Debug().Int("acceptors", acceptors).Int("workers", regular).Msg("spawning acceptors and workers")

	s.pool = pools.NewWorkerPool(regular, func(v any) {
		s.log.Error().Any("panic", v).Msg("worker pool task panicked")
	})

	for i := 0; i < acceptors; i++ {
		s.acceptors.Add(1)
		go s.acceptLoop()
	}
}

// Stop closes the acceptor, every open connection, and the pool, then
// waits for all of them.
func (s *Server) Stop() {
	s.cancel()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Error().Err(err).Msg("failed to close acceptor")
		}
	}

	s.connMu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.connMu.Unlock()

	s.acceptors.Wait()
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Server) acceptLoop() {
	defer s.acceptors.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error().Err(err).Msg("accept failed")
			continue
		}

		if err := s.configureConn(conn); err != nil {
			s.log.Error().Err(err).Msg("failed to set socket option")
			conn.Close()
			continue
		}

		s.metrics.ConnectionsAccepted.Inc()
		s.track(conn)

		if !s.pool.Submit(func() { s.serveConn(conn) }) {
			s.untrack(conn)
			conn.Close()
		}
	}
}

// configureConn applies the per-connection socket options. Any failure
// abandons the connection.
func (s *Server) configureConn(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if s.opts.Socket.TCPNoDelay {
		if err := tc.SetNoDelay(true); err != nil {
			return err
		}
		setQuickAck(tc)
	}
	if s.opts.Socket.RcvBufSize > 0 {
		if err := tc.SetReadBuffer(s.opts.Socket.RcvBufSize); err != nil {
			return err
		}
	}
	if s.opts.Socket.SndBufSize > 0 {
		if err := tc.SetWriteBuffer(s.opts.Socket.SndBufSize); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) track(conn net.Conn) {
	s.connMu.Lock()
	s.conns[conn] = struct{}{}
	s.connMu.Unlock()
	s.metrics.ConnectionsOpen.Inc()
}

func (s *Server) untrack(conn net.Conn) {
	s.connMu.Lock()
	delete(s.conns, conn)
	s.connMu.Unlock()
	s.metrics.ConnectionsOpen.Dec()
}
