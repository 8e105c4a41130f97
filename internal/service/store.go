package service

import (
	"context"
	"log/slog"

	"github.com/backgroundcheck/breachmon/internal/config"
	"github.com/backgroundcheck/breachmon/internal/storage"
	"github.com/backgroundcheck/breachmon/internal/storage/postgres"
	"github.com/backgroundcheck/breachmon/internal/storage/sqlite"
)

// OpenStore opens the configured storage backend. When the postgres
// backend is selected but unreachable, the service does not refuse to
// start: it falls back to the embedded sqlite backend and reports the
// degradation through the returned flag, logging the condition loudly.
// The fallback store starts empty; it does not mirror postgres data.
func OpenStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Store, bool, error) {
	if cfg.Backend == config.BackendPostgres {
		store, err := postgres.Open(ctx, cfg.PostgresDSN, cfg.PrefixLength)
		if err == nil {
			log.Info("storage backend ready", "backend", config.BackendPostgres)
			return store, false, nil
		}
		log.Error("postgres backend unavailable, falling back to embedded sqlite",
			"error", err)

		fallback, ferr := sqlite.Open(cfg.DBDir, cfg.PrefixLength, sqlite.DefaultOptions())
		if ferr != nil {
			// Both backends down. Nothing left to degrade to.
			return nil, false, err
		}
		return fallback, true, nil
	}

	store, err := sqlite.Open(cfg.DBDir, cfg.PrefixLength, sqlite.DefaultOptions())
	if err != nil {
		return nil, false, err
	}
	log.Info("storage backend ready", "backend", config.BackendSQLite, "dir", cfg.DBDir)
	return store, false, nil
}
