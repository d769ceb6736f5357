// Package store opens the configured ledger backend.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/store/postgres"
	"github.com/warp/leave-engine/store/sqlite"
)

// Open returns the store selected by cfg.DBDriver and a func that closes it.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (ledger.TxStore, func(), error) {
	switch cfg.DBDriver {
	case "sqlite":
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.DBPath, err)
		}
		logger.Info("store opened", "driver", "sqlite", "path", cfg.DBPath)
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("closing sqlite store", "err", err)
			}
		}, nil
	case "postgres":
		s, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info("store opened", "driver", "postgres")
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
}
