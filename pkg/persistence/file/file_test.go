package file_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artistscloud/a9ents-sub000/pkg/models"
	"github.com/artistscloud/a9ents-sub000/pkg/persistence"
	"github.com/artistscloud/a9ents-sub000/pkg/persistence/file"
	"github.com/artistscloud/a9ents-sub000/pkg/registry"
)

func testGraph(id, owner string) *models.Graph {
	return &models.Graph{
		ID:    id,
		Name:  "graph " + id,
		Owner: owner,
		Nodes: []*models.Node{
			{ID: "n1", Kind: registry.KindInput},
			{ID: "n2", Kind: registry.KindOutput},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceNodeID: "n1", SourcePort: registry.PortValue, TargetNodeID: "n2", TargetPort: registry.PortValue},
		},
	}
}

func TestFilePersistenceSaveAndGet(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	graph := testGraph("g1", "alice")
	require.NoError(t, store.SaveGraph(ctx, graph))
	assert.False(t, graph.CreatedAt.IsZero())
	assert.False(t, graph.UpdatedAt.IsZero())

	fetched, err := store.GraphByID(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "graph g1", fetched.Name)
	assert.Len(t, fetched.Nodes, 2)
	assert.Len(t, fetched.Edges, 1)
}

func TestFilePersistenceSaveAssignsID(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	first := testGraph("", "alice")
	second := testGraph("", "alice")

	require.NoError(t, store.SaveGraph(ctx, first))
	require.NoError(t, store.SaveGraph(ctx, second))

	assert.NotEmpty(t, first.ID)
	assert.NotEmpty(t, second.ID)
	assert.NotEqual(t, first.ID, second.ID, "a second create must not overwrite the first")

	graphs, err := store.Graphs(ctx)
	require.NoError(t, err)
	assert.Len(t, graphs, 2)

	_, err = store.GraphByID(ctx, first.ID)
	assert.NoError(t, err)
}

func TestFilePersistenceGraphByIDNotFound(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())

	_, err := store.GraphByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsGraphNotFound(err))
}

func TestFilePersistenceUpdateKeepsCreatedAt(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	graph := testGraph("g1", "alice")
	require.NoError(t, store.SaveGraph(ctx, graph))

	created := graph.CreatedAt

	graph.Name = "renamed graph"
	require.NoError(t, store.SaveGraph(ctx, graph))

	fetched, err := store.GraphByID(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "renamed graph", fetched.Name)
	assert.Equal(t, created.Unix(), fetched.CreatedAt.Unix())
}

func TestFilePersistenceSoftDelete(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.SaveGraph(ctx, testGraph("g1", "alice")))
	require.NoError(t, store.DeleteGraph(ctx, "g1"))

	_, err := store.GraphByID(ctx, "g1")
	assert.ErrorIs(t, err, persistence.ErrGraphDeleted)

	// Deleting again is a no-op.
	require.NoError(t, store.DeleteGraph(ctx, "g1"))

	// Deleted graphs disappear from listings.
	graphs, err := store.Graphs(ctx)
	require.NoError(t, err)
	assert.Empty(t, graphs)
}

func TestFilePersistenceDeleteMissingGraph(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())

	err := store.DeleteGraph(context.Background(), "missing")
	assert.True(t, persistence.IsGraphNotFound(err))
}

func TestFilePersistenceGraphsByOwner(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.SaveGraph(ctx, testGraph("g1", "alice")))
	require.NoError(t, store.SaveGraph(ctx, testGraph("g2", "bob")))
	require.NoError(t, store.SaveGraph(ctx, testGraph("g3", "alice")))

	graphs, err := store.GraphsByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, graphs, 2)

	for _, graph := range graphs {
		assert.Equal(t, "alice", graph.Owner)
	}
}

func TestFilePersistenceHealthCheck(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())

	assert.NoError(t, store.HealthCheck(context.Background()))
	assert.NoError(t, store.Close(context.Background()))
}
