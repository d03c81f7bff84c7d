// Package postgresql provides PostgreSQL persistence implementation for
// workflow graphs.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/artistscloud/a9ents-sub000/pkg/models"
	"github.com/artistscloud/a9ents-sub000/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db        *sql.DB
	logger    *slog.Logger
	graphRepo *GraphRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs pending
// migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, "graph_schema_migrations", migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:        database,
		logger:    logger,
		graphRepo: NewGraphRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Graphs returns all graphs from the database.
func (p *Persistence) Graphs(ctx context.Context) ([]*models.Graph, error) {
	return p.graphRepo.GetAll(ctx)
}

// GraphsByOwner returns all graphs belonging to an owner.
func (p *Persistence) GraphsByOwner(ctx context.Context, owner string) ([]*models.Graph, error) {
	return p.graphRepo.GetByOwner(ctx, owner)
}

// GraphByID returns a graph by its ID.
func (p *Persistence) GraphByID(ctx context.Context, id string) (*models.Graph, error) {
	return p.graphRepo.GetByID(ctx, id)
}

// SaveGraph saves a graph to the database.
func (p *Persistence) SaveGraph(ctx context.Context, graph *models.Graph) error {
	return p.graphRepo.Save(ctx, graph)
}

// DeleteGraph soft deletes a graph by setting its deleted_at timestamp.
func (p *Persistence) DeleteGraph(ctx context.Context, id string) error {
	return p.graphRepo.Delete(ctx, id)
}
