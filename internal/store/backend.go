package store

import (
	"fmt"
	"log/slog"

	"github.com/hpungsan/ctxbridge/internal/config"
	"github.com/hpungsan/ctxbridge/internal/db"
)

// OpenBackend builds the backend selected by cfg.StoreBackend.
func OpenBackend(cfg *config.Config, baseDir string, logger *slog.Logger) (Backend, error) {
	switch cfg.StoreBackend {
	case "", config.BackendSQLite:
		database, err := db.Init(baseDir)
		if err != nil {
			return nil, err
		}
		db.ConfigurePool(database, cfg)
		return NewSQLiteBackend(database, baseDir, logger), nil
	case config.BackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("store_backend %q requires redis_url", cfg.StoreBackend)
		}
		return NewRedisBackend(cfg.RedisURL, logger)
	case config.BackendMemory:
		return NewMemoryBackend(), nil
	}
	return nil, fmt.Errorf("unknown store_backend %q", cfg.StoreBackend)
}
