// Package redis wraps the pooled Redis client the framework hands to
// applications. The client is owned by the top-level server object and
// dependency-injected; there is no process-wide instance.
package redis

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/searchktools/goapi/shared/logging"
)

// State is the client's connection state.
type State int32

const (
	StateUnknown State = iota - 1
	StateRelax
	StateConnected
	StateDisconnected
	StateAbort
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRelax:
		return "relax"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Config describes the Redis endpoint and supervision intervals.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string

	ClientName string

	// HealthCheckInterval paces the background ping loop; zero disables
	// it.
	HealthCheckInterval time.Duration

	// ReconnectInterval is an extra wait after a failed health check
	// before the loop pings again; zero adds no wait. There is no separate
	// reconnect step: the health loop only pings again.
	ReconnectInterval time.Duration
}

// Client is a pooled Redis handle with background health checking.
type Client struct {
	cfg Config
	log *logging.Logger

	rdb   *goredis.Client
	state atomic.Int32

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds an unconnected client.
func New(cfg Config, log *logging.Logger) *Client {
	c := &Client{cfg: cfg, log: log, stop: make(chan struct{})}
	c.state.Store(int32(StateRelax))
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Connect dials and pings the server, then starts the health loop.
func (c *Client) Connect(ctx context.Context) error {
	c.rdb = goredis.NewClient(&goredis.Options{
		Addr:       net.JoinHostPort(c.cfg.Host, c.cfg.Port),
		Username:   c.cfg.User,
		Password:   c.cfg.Password,
		ClientName: c.cfg.ClientName,
	})

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		c.state.Store(int32(StateAbort))
		return err
	}
	c.state.Store(int32(StateConnected))

	if c.cfg.HealthCheckInterval > 0 {
		c.wg.Add(1)
		go c.healthLoop()
	}
	return nil
}

func (c *Client) healthLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := c.rdb.Ping(ctx).Err()
		cancel()

		if err == nil {
			if c.State() != StateConnected {
				c.state.Store(int32(StateConnected))
				c.log.Info().Msg("redis connection restored")
			}
			continue
		}

		c.state.Store(int32(StateDisconnected))
		c.log.Warn().Err(err).Msg("redis health check failed")

		if c.cfg.ReconnectInterval > 0 {
			select {
			case <-c.stop:
				return
			case <-time.After(c.cfg.ReconnectInterval):
			}
		}
	}
}

// Close stops the health loop and releases the pool. Idempotent.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()

	c.state.Store(int32(StateRelax))
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// Get returns the value at key, or nil when the key is absent.
func (c *Client) Get(ctx context.Context, key string) (*string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Set stores value at key with an optional TTL (zero means no expiry).
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Del removes keys and returns how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	return c.rdb.Del(ctx, keys...).Result()
}

// Exists reports whether key is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Incr increments the integer at key and returns the new value.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return c.rdb.Incr(ctx, key).Result()
}
