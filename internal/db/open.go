package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sudo-init-do/chefbid/internal/config"
	"github.com/sudo-init-do/chefbid/internal/store"
	"github.com/sudo-init-do/chefbid/internal/store/memory"
	"github.com/sudo-init-do/chefbid/internal/store/postgres"
)

// Open builds the store named by cfg.StoreDriver. The caller owns Close.
func Open(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		logger.Warn().Msg("using in-memory store; state is lost on exit")
		return memory.New(), nil
	case config.StorePostgres:
		pool, err := Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		return postgres.New(pool), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
