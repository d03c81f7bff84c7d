// Package file implements graph persistence backed by a directory of JSON
// files, one file per graph. It is the default storage for local development.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/artistscloud/a9ents-sub000/pkg/models"
	"github.com/artistscloud/a9ents-sub000/pkg/persistence"
)

// Persistence stores each graph as <root>/graphs/<id>.json.
type Persistence struct {
	root string
}

// NewPersistence creates a file-backed persistence rooted at root.
func NewPersistence(root string) *Persistence {
	return &Persistence{root: root}
}

// Graphs returns all stored graphs, soft-deleted ones excluded, sorted by
// creation time descending.
func (p *Persistence) Graphs(ctx context.Context) ([]*models.Graph, error) {
	root := os.DirFS(p.graphsDir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list graph files: %w", err)
	}

	graphs := make([]*models.Graph, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		graphID := file[:len(file)-5] // Remove .json extension

		graph, err := p.GraphByID(ctx, graphID)
		if err != nil {
			if errors.Is(err, persistence.ErrGraphDeleted) {
				continue
			}

			return nil, fmt.Errorf("failed to load graph %s: %w", graphID, err)
		}

		graphs = append(graphs, graph)
	}

	sort.Slice(graphs, func(i, j int) bool {
		return graphs[i].CreatedAt.After(graphs[j].CreatedAt)
	})

	return graphs, nil
}

// GraphsByOwner returns all graphs belonging to an owner.
func (p *Persistence) GraphsByOwner(ctx context.Context, owner string) ([]*models.Graph, error) {
	all, err := p.Graphs(ctx)
	if err != nil {
		return nil, err
	}

	graphs := make([]*models.Graph, 0)

	for _, graph := range all {
		if graph.Owner == owner {
			graphs = append(graphs, graph)
		}
	}

	return graphs, nil
}

// GraphByID retrieves a graph by its ID.
func (p *Persistence) GraphByID(_ context.Context, graphID string) (*models.Graph, error) {
	filePath := filepath.Clean(path.Join(p.graphsDir(), graphID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewGraphError("GetByID", graphID, persistence.ErrGraphNotFound)
		}

		return nil, fmt.Errorf("failed to fetch graph %s: %w", graphID, err)
	}

	var graph models.Graph

	err = json.Unmarshal(body, &graph)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph %s: %w", graphID, err)
	}

	if graph.DeletedAt != nil {
		return nil, persistence.NewGraphError("GetByID", graphID, persistence.ErrGraphDeleted)
	}

	return &graph, nil
}

// SaveGraph writes a graph to the file system, creating or replacing it.
func (p *Persistence) SaveGraph(_ context.Context, graph *models.Graph) error {
	err := os.MkdirAll(p.graphsDir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create graphs directory: %w", err)
	}

	if graph.ID == "" {
		graph.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if graph.CreatedAt.IsZero() {
		graph.CreatedAt = now
	}

	graph.UpdatedAt = now

	data, err := json.MarshalIndent(graph, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal graph %s: %w", graph.ID, err)
	}

	filePath := path.Join(p.graphsDir(), graph.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// DeleteGraph soft-deletes a graph: the file stays, flagged with a deletion
// timestamp so run history referencing it remains resolvable.
func (p *Persistence) DeleteGraph(ctx context.Context, id string) error {
	graph, err := p.GraphByID(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrGraphDeleted) {
			return nil
		}

		return err
	}

	now := time.Now().UTC()
	graph.DeletedAt = &now

	data, err := json.MarshalIndent(graph, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal graph %s: %w", id, err)
	}

	return os.WriteFile(path.Join(p.graphsDir(), id+".json"), data, 0600)
}

// HealthCheck verifies the storage root is writable.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(p.graphsDir(), 0750); err != nil {
		return fmt.Errorf("storage root not writable: %w", err)
	}

	return nil
}

// Close is a no-op for file storage.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) graphsDir() string {
	return path.Join(p.root, "graphs")
}
