package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/artistscloud/a9ents-sub000/pkg/models"
	"github.com/artistscloud/a9ents-sub000/pkg/persistence"
)

// GraphRepository handles graph-related database operations.
type GraphRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewGraphRepository creates a new graph repository.
func NewGraphRepository(db *sql.DB, logger *slog.Logger) *GraphRepository {
	return &GraphRepository{db: db, logger: logger}
}

// GetAll returns all graphs, soft-deleted ones excluded, newest first.
func (r *GraphRepository) GetAll(ctx context.Context) ([]*models.Graph, error) {
	query := `
		SELECT id, name, owner, created_at, updated_at, deleted_at
		FROM graphs
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`

	return r.queryGraphs(ctx, query)
}

// GetByOwner returns all graphs belonging to an owner, newest first.
func (r *GraphRepository) GetByOwner(ctx context.Context, owner string) ([]*models.Graph, error) {
	query := `
		SELECT id, name, owner, created_at, updated_at, deleted_at
		FROM graphs
		WHERE owner = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`

	return r.queryGraphs(ctx, query, owner)
}

// GetByID returns a graph with its nodes and edges.
func (r *GraphRepository) GetByID(ctx context.Context, id string) (*models.Graph, error) {
	query := `
		SELECT id, name, owner, created_at, updated_at, deleted_at
		FROM graphs
		WHERE id = $1 AND deleted_at IS NULL
	`

	row := r.db.QueryRowContext(ctx, query, id)

	graph, err := scanGraphBase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewGraphError("GetByID", id, persistence.ErrGraphNotFound)
		}

		return nil, fmt.Errorf("failed to scan graph: %w", err)
	}

	if err := r.loadNodesAndEdges(ctx, graph); err != nil {
		return nil, fmt.Errorf("failed to load graph nodes and edges: %w", err)
	}

	return graph, nil
}

// Save upserts the graph base row and replaces its nodes and edges in one
// transaction.
func (r *GraphRepository) Save(ctx context.Context, graph *models.Graph) error {
	now := time.Now().UTC()

	if graph.CreatedAt.IsZero() {
		graph.CreatedAt = now
	}

	graph.UpdatedAt = now

	if graph.ID == "" {
		graph.ID = uuid.New().String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	graphQuery := `
		INSERT INTO graphs (id, name, owner, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err = tx.ExecContext(ctx, graphQuery,
		graph.ID,
		graph.Name,
		graph.Owner,
		graph.CreatedAt,
		graph.UpdatedAt,
		graph.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save graph base: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM graph_edges WHERE graph_id = $1", graph.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing edges: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM graph_nodes WHERE graph_id = $1", graph.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing nodes: %w", err)
	}

	for _, node := range graph.Nodes {
		var configJSON []byte

		configJSON, err = json.Marshal(node.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal node %s config: %w", node.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO graph_nodes (graph_id, id, kind, label, position_x, position_y, config)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, graph.ID, node.ID, node.Kind, node.Label, node.Position.X, node.Position.Y, configJSON)
		if err != nil {
			return fmt.Errorf("failed to save node %s: %w", node.ID, err)
		}
	}

	for _, edge := range graph.Edges {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO graph_edges (graph_id, id, source_node_id, source_port, target_node_id, target_port, condition)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, graph.ID, edge.ID, edge.SourceNodeID, edge.SourcePort, edge.TargetNodeID, edge.TargetPort, edge.Condition)
		if err != nil {
			return fmt.Errorf("failed to save edge %s: %w", edge.ID, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit graph save: %w", err)
	}

	return nil
}

// Delete soft deletes a graph. Deleting an already deleted or missing graph
// is a no-op.
func (r *GraphRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE graphs SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to delete graph %s: %w", id, err)
	}

	return nil
}

func (r *GraphRepository) queryGraphs(ctx context.Context, query string, args ...any) ([]*models.Graph, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query graphs: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	graphs := make([]*models.Graph, 0)

	for rows.Next() {
		graph, err := scanGraphBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan graph: %w", err)
		}

		if err := r.loadNodesAndEdges(ctx, graph); err != nil {
			return nil, fmt.Errorf("failed to load graph nodes and edges: %w", err)
		}

		graphs = append(graphs, graph)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating graphs: %w", err)
	}

	return graphs, nil
}

func (r *GraphRepository) loadNodesAndEdges(ctx context.Context, graph *models.Graph) error {
	nodeRows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, label, position_x, position_y, config
		FROM graph_nodes
		WHERE graph_id = $1
		ORDER BY id
	`, graph.ID)
	if err != nil {
		return fmt.Errorf("failed to query nodes: %w", err)
	}

	defer func() {
		if err := nodeRows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	graph.Nodes = make([]*models.Node, 0)

	for nodeRows.Next() {
		var (
			node       models.Node
			configJSON []byte
		)

		err = nodeRows.Scan(&node.ID, &node.Kind, &node.Label, &node.Position.X, &node.Position.Y, &configJSON)
		if err != nil {
			return fmt.Errorf("failed to scan node: %w", err)
		}

		if len(configJSON) > 0 {
			if err := json.Unmarshal(configJSON, &node.Config); err != nil {
				return fmt.Errorf("failed to unmarshal node %s config: %w", node.ID, err)
			}
		}

		graph.Nodes = append(graph.Nodes, &node)
	}

	if err := nodeRows.Err(); err != nil {
		return fmt.Errorf("error iterating nodes: %w", err)
	}

	edgeRows, err := r.db.QueryContext(ctx, `
		SELECT id, source_node_id, source_port, target_node_id, target_port, condition
		FROM graph_edges
		WHERE graph_id = $1
		ORDER BY id
	`, graph.ID)
	if err != nil {
		return fmt.Errorf("failed to query edges: %w", err)
	}

	defer func() {
		if err := edgeRows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	graph.Edges = make([]*models.Edge, 0)

	for edgeRows.Next() {
		var edge models.Edge

		err = edgeRows.Scan(&edge.ID, &edge.SourceNodeID, &edge.SourcePort, &edge.TargetNodeID, &edge.TargetPort, &edge.Condition)
		if err != nil {
			return fmt.Errorf("failed to scan edge: %w", err)
		}

		graph.Edges = append(graph.Edges, &edge)
	}

	if err := edgeRows.Err(); err != nil {
		return fmt.Errorf("error iterating edges: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGraphBase(row rowScanner) (*models.Graph, error) {
	var (
		graph     models.Graph
		deletedAt sql.NullTime
	)

	err := row.Scan(&graph.ID, &graph.Name, &graph.Owner, &graph.CreatedAt, &graph.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	if deletedAt.Valid {
		graph.DeletedAt = &deletedAt.Time
	}

	return &graph, nil
}
