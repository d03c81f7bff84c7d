package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/artistscloud/a9ents-sub000/pkg/models"
	"github.com/artistscloud/a9ents-sub000/pkg/persistence"
	"github.com/artistscloud/a9ents-sub000/pkg/persistence/postgresql"
	"github.com/artistscloud/a9ents-sub000/pkg/registry"
)

var postgresContainer *postgres.PostgresContainer

func skipWithoutDocker(t *testing.T) {
	t.Helper()

	if os.Getenv("DOCKER_HOST") != "" {
		return
	}

	if _, err := os.Stat("/var/run/docker.sock"); err != nil {
		t.Skip("docker is not available")
	}
}

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"graph_edges", "graph_nodes", "graphs", "graph_schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()
	skipWithoutDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("a9ents_test"),
			postgres.WithUsername("a9ents"),
			postgres.WithPassword("a9ents"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func createTestGraph(owner string) *models.Graph {
	return &models.Graph{
		ID:    uuid.New().String(),
		Name:  "Scrape And Summarize",
		Owner: owner,
		Nodes: []*models.Node{
			{
				ID:       "fetch",
				Kind:     registry.KindScrape,
				Label:    "Fetch Article",
				Position: models.Position{X: 100, Y: 100},
				Config:   map[string]any{"url": "https://example.com/article"},
			},
			{
				ID:       "summarize",
				Kind:     registry.KindLLMGenerate,
				Label:    "Summarize",
				Position: models.Position{X: 300, Y: 100},
				Config:   map[string]any{"provider": "openai", "model": "gpt-4o-mini"},
			},
			{
				ID:       "result",
				Kind:     registry.KindOutput,
				Position: models.Position{X: 500, Y: 100},
			},
		},
		Edges: []*models.Edge{
			{
				ID:           "e1",
				SourceNodeID: "fetch",
				SourcePort:   registry.PortText,
				TargetNodeID: "summarize",
				TargetPort:   registry.PortPrompt,
			},
			{
				ID:           "e2",
				SourceNodeID: "summarize",
				SourcePort:   registry.PortText,
				TargetNodeID: "result",
				TargetPort:   registry.PortValue,
			},
		},
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	for _, table := range []string{"graphs", "graph_nodes", "graph_edges", "graph_schema_migrations"} {
		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM graph_schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestNewPersistence_SaveAndRetrieveGraph(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	graph := createTestGraph("test-user")

	err := p.SaveGraph(ctx, graph)
	require.NoError(t, err)
	assert.False(t, graph.CreatedAt.IsZero())
	assert.False(t, graph.UpdatedAt.IsZero())

	retrieved, err := p.GraphByID(ctx, graph.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved)

	assert.Equal(t, graph.ID, retrieved.ID)
	assert.Equal(t, graph.Name, retrieved.Name)
	assert.Equal(t, graph.Owner, retrieved.Owner)
	require.Len(t, retrieved.Nodes, 3)
	require.Len(t, retrieved.Edges, 2)

	fetch := retrieved.NodeByID("fetch")
	require.NotNil(t, fetch)
	assert.Equal(t, registry.KindScrape, fetch.Kind)
	assert.Equal(t, "Fetch Article", fetch.Label)
	assert.Equal(t, 100, fetch.Position.X)
	assert.Equal(t, "https://example.com/article", fetch.Config["url"])

	edge := retrieved.EdgeByID("e1")
	require.NotNil(t, edge)
	assert.Equal(t, "fetch", edge.SourceNodeID)
	assert.Equal(t, registry.PortText, edge.SourcePort)
	assert.Equal(t, "summarize", edge.TargetNodeID)

	_, err = p.GraphByID(ctx, uuid.NewString())
	require.Error(t, err)
	assert.True(t, persistence.IsGraphNotFound(err))
}

func TestNewPersistence_SaveAssignsID(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	graph := createTestGraph("test-user")
	graph.ID = ""

	err := p.SaveGraph(ctx, graph)
	require.NoError(t, err)
	assert.NotEmpty(t, graph.ID)
}

func TestNewPersistence_UpdateGraph(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	graph := createTestGraph("test-user")

	err := p.SaveGraph(ctx, graph)
	require.NoError(t, err)

	initialUpdatedAt := graph.UpdatedAt

	// Wait a moment to ensure a different timestamp
	time.Sleep(10 * time.Millisecond)

	graph.Name = "Updated Pipeline"
	graph.Nodes = graph.Nodes[:2]
	graph.Edges = graph.Edges[:1]

	err = p.SaveGraph(ctx, graph)
	require.NoError(t, err)

	retrieved, err := p.GraphByID(ctx, graph.ID)
	require.NoError(t, err)

	assert.Equal(t, "Updated Pipeline", retrieved.Name)
	assert.Len(t, retrieved.Nodes, 2, "removed nodes should not survive a save")
	assert.Len(t, retrieved.Edges, 1)
	assert.True(t, retrieved.UpdatedAt.After(initialUpdatedAt))
}

func TestNewPersistence_ListGraphs(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	first := createTestGraph("alice")
	second := createTestGraph("bob")
	third := createTestGraph("alice")

	for _, graph := range []*models.Graph{first, second, third} {
		err := p.SaveGraph(ctx, graph)
		require.NoError(t, err)
	}

	all, err := p.Graphs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	owned, err := p.GraphsByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, owned, 2)

	for _, graph := range owned {
		assert.Equal(t, "alice", graph.Owner)
	}
}

func TestNewPersistence_DeleteGraph(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	graph := createTestGraph("test-user")

	err := p.SaveGraph(ctx, graph)
	require.NoError(t, err)

	err = p.DeleteGraph(ctx, graph.ID)
	require.NoError(t, err)

	_, err = p.GraphByID(ctx, graph.ID)
	require.Error(t, err)
	assert.True(t, persistence.IsGraphNotFound(err))

	all, err := p.Graphs(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	// Deleting an already deleted or missing graph is a no-op.
	err = p.DeleteGraph(ctx, graph.ID)
	assert.NoError(t, err)

	err = p.DeleteGraph(ctx, uuid.NewString())
	assert.NoError(t, err)
}
