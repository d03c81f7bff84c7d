// Package persistence provides the data storage abstraction layer for
// workflow graphs.
package persistence

import (
	"context"

	"github.com/artistscloud/a9ents-sub000/pkg/models"
)

type Persistence interface {
	Graphs(ctx context.Context) ([]*models.Graph, error)
	GraphsByOwner(ctx context.Context, owner string) ([]*models.Graph, error)
	SaveGraph(ctx context.Context, graph *models.Graph) error
	GraphByID(ctx context.Context, id string) (*models.Graph, error)
	DeleteGraph(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
