package main

import (
	"context"
	"fmt"

	"constantProduct/internal/config"
	"constantProduct/internal/storage"
	"constantProduct/internal/storage/memory"
	"constantProduct/internal/storage/postgres"
)

func openBackend(ctx context.Context, cfg config.Config) (storage.Backend, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		store, err := postgres.Open(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return store, nil
	case config.BackendMemory:
		if cfg.StateFile == "" {
			return memory.NewBackend(), nil
		}
		backend, err := memory.OpenBackend(cfg.StateFile)
		if err != nil {
			return nil, fmt.Errorf("open state file: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
