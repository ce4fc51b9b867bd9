// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Directory backend selectors
const (
	DirectoryMemory = "memory"
	DirectoryRedis  = "redis"
)

// Config holds the server's runtime settings
type Config struct {
	// Addr is the HTTP listen address
	Addr string `env:"ADDR" envDefault:":4000"`

	// AllowedOrigin restricts websocket origins; empty admits every origin
	AllowedOrigin string `env:"ALLOWED_ORIGIN"`

	// DirectoryBackend selects where realms and profiles live ("memory" or "redis")
	DirectoryBackend string `env:"DIRECTORY_BACKEND" envDefault:"memory"`

	// RedisURL is required when DirectoryBackend is "redis"
	RedisURL string `env:"REDIS_URL"`

	// ProximityThreshold is the voice-grouping distance in map units
	ProximityThreshold float64 `env:"PROXIMITY_THRESHOLD" envDefault:"150"`

	// JoinLookupTimeout bounds the realm/profile lookups during a join
	JoinLookupTimeout time.Duration `env:"JOIN_LOOKUP_TIMEOUT" envDefault:"10s"`

	// Inbound frame rate limiting per connection
	FramesPerSecond float64 `env:"FRAMES_PER_SECOND" envDefault:"50"`
	FrameBurst      int     `env:"FRAME_BURST" envDefault:"100"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// FromEnv loads configuration from environment variables
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
