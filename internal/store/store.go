// Package store opens the persistence backend and hands out the repository
// set the rest of the system depends on. Drivers: memory (dev, tests),
// mongo, postgres.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/idframe/idframe/internal/domain/repository"
	"github.com/idframe/idframe/internal/store/memory"
	"github.com/idframe/idframe/internal/store/mongo"
	"github.com/idframe/idframe/internal/store/pg"
)

// Config selects and configures a storage driver.
type Config struct {
	Driver string

	MongoURI      string
	MongoDatabase string

	PostgresDSN string
}

// Stores bundles the opened repositories with their shared close handle.
type Stores struct {
	Tenants     repository.TenantRepository
	SSOConfigs  repository.SSOConfigRepository
	Invitations repository.InvitationRepository

	Close func() error
}

// Open connects the configured driver and returns the repository set.
func Open(ctx context.Context, cfg Config) (*Stores, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		s := memory.New()
		return &Stores{
			Tenants:     s.Tenants(),
			SSOConfigs:  s.SSOConfigs(),
			Invitations: s.Invitations(),
			Close:       func() error { return nil },
		}, nil

	case "mongo", "mongodb":
		s, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Tenants:     s.Tenants(),
			SSOConfigs:  s.SSOConfigs(),
			Invitations: s.Invitations(),
			Close:       s.Close,
		}, nil

	case "postgres", "pg", "postgresql":
		s, err := pg.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Tenants:     s.Tenants(),
			SSOConfigs:  s.SSOConfigs(),
			Invitations: s.Invitations(),
			Close:       s.Close,
		}, nil

	default:
		return nil, fmt.Errorf("store: unsupported driver: %s", cfg.Driver)
	}
}
