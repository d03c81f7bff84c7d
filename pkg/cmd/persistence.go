package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/artistscloud/a9ents-sub000/pkg/persistence"
	"github.com/artistscloud/a9ents-sub000/pkg/persistence/file"
	"github.com/artistscloud/a9ents-sub000/pkg/persistence/postgresql"
)

// NewPersistence selects a graph store from the database URL scheme. A
// postgres:// URL gets PostgreSQL; anything else is treated as a file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL persistence: %w", err)
		}

		return p, nil
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	}
}
