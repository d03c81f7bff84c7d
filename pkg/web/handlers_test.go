package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artistscloud/a9ents-sub000/pkg/capabilities"
	"github.com/artistscloud/a9ents-sub000/pkg/engine"
	"github.com/artistscloud/a9ents-sub000/pkg/models"
	"github.com/artistscloud/a9ents-sub000/pkg/persistence/file"
	"github.com/artistscloud/a9ents-sub000/pkg/registry"
	"github.com/artistscloud/a9ents-sub000/pkg/runstore"
	"github.com/artistscloud/a9ents-sub000/pkg/validation"
	"github.com/artistscloud/a9ents-sub000/pkg/web"
)

type testEnv struct {
	app         *fiber.App
	persistence *file.Persistence
	runs        runstore.Store
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.Default()
	persistence := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(logger)
	registry.RegisterDefaults(reg, registry.CapabilitySet{
		Generate: func(_ context.Context, req capabilities.GenerateRequest) (string, error) {
			return "echo: " + req.Prompt, nil
		},
		Knowledge: capabilities.NewMemoryKnowledgeStore(),
		Scrape: func(_ context.Context, _ string) (capabilities.Page, error) {
			return capabilities.Page{}, nil
		},
		HTTPCall: func(_ context.Context, _ capabilities.HTTPRequest) (capabilities.HTTPResponse, error) {
			return capabilities.HTTPResponse{StatusCode: 200}, nil
		},
	})

	runs := runstore.NewMemoryStore()
	eng := engine.New(logger, reg, runs)

	handlers := web.NewAPIHandlers(persistence, reg, eng, runs, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	handlers.RegisterRoutes(app)

	return &testEnv{app: app, persistence: persistence, runs: runs}
}

func (e *testEnv) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader

	if body != nil {
		if str, ok := body.(string); ok {
			reader = bytes.NewBufferString(str)
		} else {
			encoded, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewBuffer(encoded)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.app.Test(req)
	require.NoError(t, err)

	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var value T

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &value), "body: %s", body)

	return value
}

func (e *testEnv) createGraph(t *testing.T) models.Graph {
	t.Helper()

	resp := e.request(t, http.MethodPost, "/graphs", web.CreateGraphRequest{
		Name:  "Test Graph",
		Owner: "test-user",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return decodeBody[models.Graph](t, resp)
}

func (e *testEnv) addNode(t *testing.T, graphID, kind string, config map[string]any) models.Node {
	t.Helper()

	resp := e.request(t, http.MethodPost, "/graphs/"+graphID+"/nodes", web.CreateNodeRequest{
		Kind:   kind,
		Config: config,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return decodeBody[models.Node](t, resp)
}

func (e *testEnv) addEdge(t *testing.T, graphID string, req web.CreateEdgeRequest) models.Edge {
	t.Helper()

	resp := e.request(t, http.MethodPost, "/graphs/"+graphID+"/edges", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return decodeBody[models.Edge](t, resp)
}

func TestAPIHandlers_CreateGraph(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
	}{
		{
			name:           "successful creation",
			requestBody:    web.CreateGraphRequest{Name: "Test Graph", Owner: "test-user"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "name too short",
			requestBody:    web.CreateGraphRequest{Name: "ab", Owner: "test-user"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing owner",
			requestBody:    web.CreateGraphRequest{Name: "Test Graph"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "not-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := setupTestApp(t)

			resp := env.request(t, http.MethodPost, "/graphs", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusCreated {
				graph := decodeBody[models.Graph](t, resp)
				assert.NotEmpty(t, graph.ID)
				assert.Equal(t, "Test Graph", graph.Name)
				assert.Equal(t, "test-user", graph.Owner)
				assert.Empty(t, graph.Nodes)
			}
		})
	}
}

func TestAPIHandlers_GetGraphs(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	env.createGraph(t)
	env.createGraph(t)

	resp := env.request(t, http.MethodGet, "/graphs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	listing := decodeBody[map[string]any](t, resp)
	assert.Equal(t, float64(2), listing["total_count"])

	resp = env.request(t, http.MethodGet, "/graphs?owner=somebody-else", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	listing = decodeBody[map[string]any](t, resp)
	assert.Equal(t, float64(0), listing["total_count"])
}

func TestAPIHandlers_GetGraph(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	created := env.createGraph(t)

	resp := env.request(t, http.MethodGet, "/graphs/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	graph := decodeBody[models.Graph](t, resp)
	assert.Equal(t, created.ID, graph.ID)

	resp = env.request(t, http.MethodGet, "/graphs/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_UpdateGraph(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	created := env.createGraph(t)

	name := "Renamed Graph"

	resp := env.request(t, http.MethodPatch, "/graphs/"+created.ID, web.UpdateGraphRequest{Name: &name})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	graph := decodeBody[models.Graph](t, resp)
	assert.Equal(t, "Renamed Graph", graph.Name)
	assert.Equal(t, created.Owner, graph.Owner)
}

func TestAPIHandlers_DeleteGraph(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	created := env.createGraph(t)

	resp := env.request(t, http.MethodDelete, "/graphs/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.request(t, http.MethodDelete, "/graphs/never-existed", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_CreateNode(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	created := env.createGraph(t)

	node := env.addNode(t, created.ID, registry.KindText, map[string]any{"text": "hello"})
	assert.NotEmpty(t, node.ID)
	assert.Equal(t, registry.KindText, node.Kind)

	t.Run("rejects invalid config", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, "/graphs/"+created.ID+"/nodes", web.CreateNodeRequest{
			Kind:   registry.KindText,
			Config: map[string]any{},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rejects unknown graph", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, "/graphs/missing/nodes", web.CreateNodeRequest{
			Kind: registry.KindInput,
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestAPIHandlers_CreateEdge(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	created := env.createGraph(t)

	source := env.addNode(t, created.ID, registry.KindInput, nil)
	target := env.addNode(t, created.ID, registry.KindOutput, nil)

	edgeReq := web.CreateEdgeRequest{
		SourceNodeID: source.ID,
		SourcePort:   registry.PortValue,
		TargetNodeID: target.ID,
		TargetPort:   registry.PortValue,
	}

	edge := env.addEdge(t, created.ID, edgeReq)
	assert.NotEmpty(t, edge.ID)

	t.Run("duplicate edges conflict", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, "/graphs/"+created.ID+"/edges", edgeReq)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("missing endpoint node", func(t *testing.T) {
		bad := edgeReq
		bad.TargetNodeID = "ghost"

		resp := env.request(t, http.MethodPost, "/graphs/"+created.ID+"/edges", bad)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown port", func(t *testing.T) {
		bad := edgeReq
		bad.SourcePort = "bogus"

		resp := env.request(t, http.MethodPost, "/graphs/"+created.ID+"/edges", bad)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAPIHandlers_DeleteNodeCascadesEdges(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	created := env.createGraph(t)

	source := env.addNode(t, created.ID, registry.KindInput, nil)
	target := env.addNode(t, created.ID, registry.KindOutput, nil)
	env.addEdge(t, created.ID, web.CreateEdgeRequest{
		SourceNodeID: source.ID,
		SourcePort:   registry.PortValue,
		TargetNodeID: target.ID,
		TargetPort:   registry.PortValue,
	})

	resp := env.request(t, http.MethodDelete, "/graphs/"+created.ID+"/nodes/"+source.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/graphs/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	graph := decodeBody[models.Graph](t, resp)
	assert.Len(t, graph.Nodes, 1)
	assert.Empty(t, graph.Edges)
}

func TestAPIHandlers_ValidateGraph(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	created := env.createGraph(t)

	source := env.addNode(t, created.ID, registry.KindInput, nil)
	target := env.addNode(t, created.ID, registry.KindOutput, nil)

	resp := env.request(t, http.MethodPost, "/graphs/"+created.ID+"/validate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	report := decodeBody[validation.Report](t, resp)
	assert.True(t, report.OK)
	require.Len(t, report.Issues, 1, "disconnected output is a dead node warning")
	assert.Equal(t, validation.CodeDeadNode, report.Issues[0].Code)

	env.addEdge(t, created.ID, web.CreateEdgeRequest{
		SourceNodeID: source.ID,
		SourcePort:   registry.PortValue,
		TargetNodeID: target.ID,
		TargetPort:   registry.PortValue,
	})

	resp = env.request(t, http.MethodPost, "/graphs/"+created.ID+"/validate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	report = decodeBody[validation.Report](t, resp)
	assert.True(t, report.OK)
	assert.Empty(t, report.Issues)
}

func TestAPIHandlers_StartRun(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	created := env.createGraph(t)

	source := env.addNode(t, created.ID, registry.KindInput, nil)
	target := env.addNode(t, created.ID, registry.KindOutput, nil)
	env.addEdge(t, created.ID, web.CreateEdgeRequest{
		SourceNodeID: source.ID,
		SourcePort:   registry.PortValue,
		TargetNodeID: target.ID,
		TargetPort:   registry.PortValue,
	})

	resp := env.request(t, http.MethodPost, "/graphs/"+created.ID+"/runs", web.StartRunRequest{
		Payload: map[string]any{"value": 1},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	run := decodeBody[models.Run](t, resp)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, created.ID, run.GraphID)

	require.Eventually(t, func() bool {
		stored, err := env.runs.GetRun(context.Background(), run.ID)

		return err == nil && stored.Status == models.RunStatusSucceeded
	}, 5*time.Second, 10*time.Millisecond)

	t.Run("run shows up in listings", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/graphs/"+created.ID+"/runs", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		listing := decodeBody[map[string]any](t, resp)
		assert.Equal(t, float64(1), listing["total_count"])
	})

	t.Run("run is retrievable by id", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/runs/"+run.ID, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		fetched := decodeBody[models.Run](t, resp)
		assert.Equal(t, run.ID, fetched.ID)
	})
}

func TestAPIHandlers_StartRunRejectsInvalidGraph(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	created := env.createGraph(t)

	// The mutation API refuses unknown kinds, so write the broken graph
	// straight to storage.
	graph, err := env.persistence.GraphByID(context.Background(), created.ID)
	require.NoError(t, err)

	graph.Nodes = append(graph.Nodes, &models.Node{ID: "bad", Kind: "no-such-kind"})
	require.NoError(t, env.persistence.SaveGraph(context.Background(), graph))

	resp := env.request(t, http.MethodPost, "/graphs/"+created.ID+"/runs", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAPIHandlers_GetRunNotFound(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := env.request(t, http.MethodGet, "/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_CancelRun(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := env.request(t, http.MethodPost, "/runs/missing/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPIHandlers_GetNodeKinds(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := env.request(t, http.MethodGet, "/kinds", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	listing := decodeBody[map[string][]models.NodeType](t, resp)
	require.NotEmpty(t, listing["kinds"])

	kinds := make([]string, 0, len(listing["kinds"]))
	for _, nodeType := range listing["kinds"] {
		kinds = append(kinds, nodeType.Kind)
	}

	assert.Contains(t, kinds, registry.KindInput)
	assert.Contains(t, kinds, registry.KindCondition)
}

func TestAPIHandlers_Webhook(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	created := env.createGraph(t)

	t.Run("requires a webhook trigger node", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, "/hooks/"+created.ID, map[string]any{"event": "ping"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	trigger := env.addNode(t, created.ID, registry.KindTriggerWebhook, nil)
	target := env.addNode(t, created.ID, registry.KindOutput, nil)
	env.addEdge(t, created.ID, web.CreateEdgeRequest{
		SourceNodeID: trigger.ID,
		SourcePort:   registry.PortPayload,
		TargetNodeID: target.ID,
		TargetPort:   registry.PortValue,
	})

	resp := env.request(t, http.MethodPost, "/hooks/"+created.ID, map[string]any{"event": "ping"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	run := decodeBody[models.Run](t, resp)
	require.NotEmpty(t, run.ID)

	require.Eventually(t, func() bool {
		stored, err := env.runs.GetRun(context.Background(), run.ID)

		return err == nil && stored.Status == models.RunStatusSucceeded
	}, 5*time.Second, 10*time.Millisecond)

	// The delivery details travel with the payload, not just the body.
	stored, err := env.runs.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, "webhook", stored.TriggerPayload["trigger"])
	assert.Equal(t, http.MethodPost, stored.TriggerPayload["method"])
	assert.Equal(t, "/hooks/"+created.ID, stored.TriggerPayload["path"])

	headers, ok := stored.TriggerPayload["headers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "application/json", headers["Content-Type"])

	body, ok := stored.TriggerPayload["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ping", body["event"])
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := env.request(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	health := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "healthy", health["status"])
}
