package main

import (
	"context"
	"fmt"

	"github.com/umar/agentmesh/internal/config"
	"github.com/umar/agentmesh/internal/database"
	redisc "github.com/umar/agentmesh/internal/redis"
	"github.com/umar/agentmesh/internal/snapshot"
	"github.com/umar/agentmesh/internal/store"
)

// openStore opens the backend named by cfg.StoreBackend.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendFile:
		return snapshot.Open(cfg.DataFile)
	case config.BackendSQLite:
		return database.OpenSQLite(ctx, cfg.SQLitePath)
	case config.BackendPostgres:
		return database.OpenPostgres(ctx, cfg.DatabaseURL)
	case config.BackendRedis:
		return redisc.Open(ctx, cfg.RedisURL, cfg.RedisPrefix)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
