package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/artistscloud/a9ents-sub000/pkg/runstore"
)

// NewRunStore selects a run store from the database URL scheme. A
// postgres:// URL gets PostgreSQL; anything else falls back to the
// in-memory store, which keeps no history across restarts.
func NewRunStore(ctx context.Context, logger *slog.Logger, databaseURL string) (runstore.Store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		store, err := runstore.NewPostgresStore(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL run store: %w", err)
		}

		return store, nil
	default:
		logger.Info("Using in-memory run store, run history will not survive restarts")

		return runstore.NewMemoryStore(), nil
	}
}
