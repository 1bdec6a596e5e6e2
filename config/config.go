// Package config holds the structured server configuration. Defaults
// come from Default(), a YAML file overlays them, and GOAPI_* environment
// variables (optionally loaded from a dotenv file) overlay both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Response classes for framework-generated error bodies.
const (
	ResponseClassPlain = "plain"
	ResponseClassJSON  = "json"
)

// ServerConfig bounds the acceptor and request pipeline.
type ServerConfig struct {
	// Workers sizes the scheduler; zero or negative means hardware
	// concurrency.
	Workers int `yaml:"workers"`

	MaxConnections int `yaml:"max_connections"`

	MaxRequestSize int64 `yaml:"max_request_size"`

	MaxChunkSize     int `yaml:"max_chunk_size"`
	MaxChunkSizeDisk int `yaml:"max_chunk_size_disk"`

	MaxFileSizeInMemory  int64 `yaml:"max_file_size_in_memory"`
	MaxFilesSizeInMemory int64 `yaml:"max_files_size_in_memory"`

	// TmpDir receives spilled bodies and uploads; created if missing.
	TmpDir string `yaml:"tmp_dir"`
}

// HTTPConfig selects response behavior.
type HTTPConfig struct {
	// ResponseClass shapes framework error bodies: plain or json.
	ResponseClass string `yaml:"response_class"`

	// KeepAliveTimeout is advertised in the Keep-Alive header, seconds.
	KeepAliveTimeout int `yaml:"keep_alive_timeout"`
}

// SocketConfig sets per-connection socket options.
type SocketConfig struct {
	TCPNoDelay bool `yaml:"tcp_no_delay"`
	RcvBufSize int  `yaml:"rcv_buf_size"`
	SndBufSize int  `yaml:"snd_buf_size"`
}

// LoggerConfig configures the shared async logger.
type LoggerConfig struct {
	Level      string `yaml:"level"`
	ForceFlush bool   `yaml:"force_flush"`
	Async      bool   `yaml:"async"`
	BufferSize int    `yaml:"buffer_size"`

	// OverflowStrategy: drop-oldest, drop-newest or block.
	OverflowStrategy string `yaml:"overflow_strategy"`
}

// RedisConfig configures the shared Redis collaborator. An empty host
// disables it.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	ClientName string `yaml:"client_name"`

	// Seconds. A zero HealthCheckInterval disables the health loop; a
	// zero ReconnectInterval adds no wait after a failed check.
	HealthCheckInterval int `yaml:"health_check_interval"`
	ReconnectInterval   int `yaml:"reconnect_interval"`
}

// Config is the single structure passed to Start.
type Config struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`

	Server ServerConfig `yaml:"server"`
	HTTP   HTTPConfig   `yaml:"http"`
	Socket SocketConfig `yaml:"socket"`
	Logger LoggerConfig `yaml:"logger"`
	Redis  RedisConfig  `yaml:"redis"`
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Host: "localhost",
		Port: "8080",
		Server: ServerConfig{
			Workers:              4,
			MaxConnections:       2048,
			MaxRequestSize:       100 << 20,
			MaxChunkSize:         128 << 10,
			MaxChunkSizeDisk:     512 << 10,
			MaxFileSizeInMemory:  1 << 20,
			MaxFilesSizeInMemory: 10 << 20,
			TmpDir:               filepath.Join(os.TempDir(), "goapi"),
		},
		HTTP: HTTPConfig{
			ResponseClass:    ResponseClassPlain,
			KeepAliveTimeout: 30,
		},
		Socket: SocketConfig{
			TCPNoDelay: true,
			RcvBufSize: 512 << 10,
			SndBufSize: 512 << 10,
		},
		Logger: LoggerConfig{
			Level:            "info",
			Async:            true,
			BufferSize:       16384,
			OverflowStrategy: "drop-oldest",
		},
	}
}

// Load overlays the YAML file at path onto the defaults. Keys absent
// from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv loads dotenv files (missing files are fine) and applies GOAPI_*
// overrides onto cfg.
func (c *Config) FromEnv(dotenvFiles ...string) {
	for _, f := range dotenvFiles {
		godotenv.Load(f)
	}

	if v := os.Getenv("GOAPI_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("GOAPI_PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("GOAPI_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Workers = n
		}
	}
	if v := os.Getenv("GOAPI_TMP_DIR"); v != "" {
		c.Server.TmpDir = v
	}
	if v := os.Getenv("GOAPI_LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := os.Getenv("GOAPI_RESPONSE_CLASS"); v != "" {
		c.HTTP.ResponseClass = v
	}
	if v := os.Getenv("GOAPI_REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("GOAPI_REDIS_PORT"); v != "" {
		c.Redis.Port = v
	}
}

// Normalize rewrites "localhost" to "127.0.0.1" and reports whether the
// port fell back to 8080 because it failed to parse.
func (c *Config) Normalize() (portFellBack bool) {
	if c.Host == "localhost" {
		c.Host = "127.0.0.1"
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 {
		c.Port = "8080"
		return true
	}
	return false
}

// ResolvedPort parses the port, falling back to 8080.
func (c *Config) ResolvedPort() int {
	p, err := strconv.Atoi(c.Port)
	if err != nil || p <= 0 {
		return 8080
	}
	return p
}
