// Package cache provides a small multi-backend cache abstraction.
//
// Backends:
//   - memory (in-process, for development/testing)
//   - redis (shared, for multi-instance deployments)
//
// Used for short-TTL derived data (active provider lists). Trust-critical
// caches (issuer validators) have their own dedicated structure in
// internal/trust and do not go through this package.
package cache

import (
	"context"
	"time"
)

// Client defines the cache operations.
type Client interface {
	// Get fetches a value. Returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value with a TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver   string // "memory" | "redis"
	Addr     string
	Password string
	DB       int
	Prefix   string // prepended to every key
}

// ErrNotFound is returned when a key is absent.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "cache: key not found" }

// IsNotFound reports whether err means the key was absent.
func IsNotFound(err error) bool {
	_, ok := err.(errNotFound)
	return ok
}

// New builds a Client for the configured driver. Unknown drivers fall back
// to memory.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg)
	default:
		return NewMemory(cfg.Prefix), nil
	}
}
