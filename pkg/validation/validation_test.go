package validation_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artistscloud/a9ents-sub000/pkg/capabilities"
	"github.com/artistscloud/a9ents-sub000/pkg/models"
	"github.com/artistscloud/a9ents-sub000/pkg/registry"
	"github.com/artistscloud/a9ents-sub000/pkg/validation"
)

func testRegistry() *registry.Registry {
	reg := registry.NewRegistry(slog.Default())
	registry.RegisterDefaults(reg, registry.CapabilitySet{
		Generate: func(_ context.Context, _ capabilities.GenerateRequest) (string, error) {
			return "", nil
		},
		Knowledge: capabilities.NewMemoryKnowledgeStore(),
		Scrape: func(_ context.Context, _ string) (capabilities.Page, error) {
			return capabilities.Page{}, nil
		},
		HTTPCall: func(_ context.Context, _ capabilities.HTTPRequest) (capabilities.HTTPResponse, error) {
			return capabilities.HTTPResponse{}, nil
		},
	})

	return reg
}

func issueCodes(report validation.Report) []string {
	codes := make([]string, 0, len(report.Issues))
	for _, issue := range report.Issues {
		codes = append(codes, issue.Code)
	}

	return codes
}

func TestValidateAcceptsWellFormedGraph(t *testing.T) {
	t.Parallel()

	g := &models.Graph{
		ID:   "g",
		Name: "linear",
		Nodes: []*models.Node{
			{ID: "in", Kind: registry.KindInput},
			{ID: "out", Kind: registry.KindOutput},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceNodeID: "in", SourcePort: registry.PortValue, TargetNodeID: "out", TargetPort: registry.PortValue},
		},
	}

	report := validation.Validate(g, testRegistry())

	assert.True(t, report.OK)
	assert.Empty(t, report.Issues)
}

func TestValidateReportsUnknownKind(t *testing.T) {
	t.Parallel()

	g := &models.Graph{
		ID:    "g",
		Name:  "bad kind",
		Nodes: []*models.Node{{ID: "n1", Kind: "does-not-exist"}},
	}

	report := validation.Validate(g, testRegistry())

	assert.False(t, report.OK)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, validation.CodeUnknownKind, report.Issues[0].Code)
	assert.Equal(t, "n1", report.Issues[0].NodeID)
	assert.True(t, report.Issues[0].Fatal)
}

func TestValidateReportsInvalidConfig(t *testing.T) {
	t.Parallel()

	g := &models.Graph{
		ID:   "g",
		Name: "bad config",
		Nodes: []*models.Node{
			{ID: "n1", Kind: registry.KindText, Config: map[string]any{}},
		},
	}

	report := validation.Validate(g, testRegistry())

	assert.False(t, report.OK)
	require.NotEmpty(t, report.Issues)
	assert.Equal(t, validation.CodeInvalidConfig, report.Issues[0].Code)
	assert.Equal(t, "n1", report.Issues[0].NodeID)
}

func TestValidateIsDeterministic(t *testing.T) {
	t.Parallel()

	// Several issues across nodes and edges; repeated runs must report them
	// identically and in the same order.
	g := &models.Graph{
		ID:   "g",
		Name: "messy",
		Nodes: []*models.Node{
			{ID: "z-mystery", Kind: "does-not-exist"},
			{ID: "a-text", Kind: registry.KindText, Config: map[string]any{}},
			{ID: "m-http", Kind: registry.KindHTTPRequest, Config: map[string]any{"url": "https://example.com"}},
			{ID: "b-llm", Kind: registry.KindLLMGenerate, Config: map[string]any{"provider": "openai"}},
		},
		Edges: []*models.Edge{
			{ID: "e2", SourceNodeID: "m-http", SourcePort: registry.PortStatus, TargetNodeID: "b-llm", TargetPort: registry.PortPrompt},
			{ID: "e1", SourceNodeID: "a-text", SourcePort: "no-such-port", TargetNodeID: "b-llm", TargetPort: registry.PortPrompt},
			{ID: "e3", SourceNodeID: "gone", SourcePort: registry.PortText, TargetNodeID: "b-llm", TargetPort: registry.PortPrompt},
		},
	}

	reg := testRegistry()

	first := validation.Validate(g, reg)
	second := validation.Validate(g, reg)

	assert.False(t, first.OK)
	require.NotEmpty(t, first.Issues)
	assert.Equal(t, first, second)
	assert.Equal(t, issueCodes(first), issueCodes(second))
}

func TestValidateReportsEdgeProblems(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		edge *models.Edge
		code string
	}{
		{
			name: "missing source node",
			edge: &models.Edge{ID: "e1", SourceNodeID: "ghost", SourcePort: registry.PortValue, TargetNodeID: "out", TargetPort: registry.PortValue},
			code: validation.CodeUnknownNode,
		},
		{
			name: "missing target node",
			edge: &models.Edge{ID: "e1", SourceNodeID: "in", SourcePort: registry.PortValue, TargetNodeID: "ghost", TargetPort: registry.PortValue},
			code: validation.CodeUnknownNode,
		},
		{
			name: "missing output port",
			edge: &models.Edge{ID: "e1", SourceNodeID: "in", SourcePort: "bogus", TargetNodeID: "out", TargetPort: registry.PortValue},
			code: validation.CodePortNotFound,
		},
		{
			name: "missing input port",
			edge: &models.Edge{ID: "e1", SourceNodeID: "in", SourcePort: registry.PortValue, TargetNodeID: "out", TargetPort: "bogus"},
			code: validation.CodePortNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := &models.Graph{
				ID:   "g",
				Name: "edges",
				Nodes: []*models.Node{
					{ID: "in", Kind: registry.KindInput},
					{ID: "out", Kind: registry.KindOutput},
				},
				Edges: []*models.Edge{tt.edge},
			}

			report := validation.Validate(g, testRegistry())

			assert.False(t, report.OK)
			assert.Contains(t, issueCodes(report), tt.code)
		})
	}
}

func TestValidateReportsTypeMismatch(t *testing.T) {
	t.Parallel()

	g := &models.Graph{
		ID:   "g",
		Name: "mismatch",
		Nodes: []*models.Node{
			{ID: "fetch", Kind: registry.KindHTTPRequest, Config: map[string]any{"url": "https://example.com"}},
			{ID: "gen", Kind: registry.KindLLMGenerate, Config: map[string]any{"provider": "openai"}},
		},
		Edges: []*models.Edge{
			// status is json, prompt is text
			{ID: "e1", SourceNodeID: "fetch", SourcePort: registry.PortStatus, TargetNodeID: "gen", TargetPort: registry.PortPrompt},
		},
	}

	report := validation.Validate(g, testRegistry())

	assert.False(t, report.OK)
	assert.Contains(t, issueCodes(report), validation.CodeTypeMismatch)
}

func TestValidateWarnsOnDeadNode(t *testing.T) {
	t.Parallel()

	g := &models.Graph{
		ID:   "g",
		Name: "unreachable",
		Nodes: []*models.Node{
			{ID: "in", Kind: registry.KindInput},
			{ID: "orphan", Kind: registry.KindOutput},
		},
	}

	report := validation.Validate(g, testRegistry())

	// Dead nodes are a warning, so the graph stays runnable.
	assert.True(t, report.OK)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, validation.CodeDeadNode, report.Issues[0].Code)
	assert.Equal(t, "orphan", report.Issues[0].NodeID)
	assert.False(t, report.Issues[0].Fatal)
}

func TestValidateReportsCycle(t *testing.T) {
	t.Parallel()

	g := &models.Graph{
		ID:   "g",
		Name: "cyclic",
		Nodes: []*models.Node{
			{ID: "a", Kind: registry.KindMerge},
			{ID: "b", Kind: registry.KindMerge},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceNodeID: "a", SourcePort: registry.PortMerged, TargetNodeID: "b", TargetPort: registry.PortFirst},
			{ID: "e2", SourceNodeID: "b", SourcePort: registry.PortMerged, TargetNodeID: "a", TargetPort: registry.PortFirst},
		},
	}

	report := validation.Validate(g, testRegistry())

	assert.False(t, report.OK)
	assert.Contains(t, issueCodes(report), validation.CodeCycleDetected)
}

func TestValidateExcludesBranchEdgesFromCycles(t *testing.T) {
	t.Parallel()

	// A loop closed through a branch kind's outgoing edge is a legal retry
	// pattern, not a cycle.
	g := &models.Graph{
		ID:   "g",
		Name: "branch loop",
		Nodes: []*models.Node{
			{ID: "in", Kind: registry.KindInput},
			{ID: "join", Kind: registry.KindMerge},
			{ID: "check", Kind: registry.KindCondition, Config: map[string]any{"expression": "{{gt .value 0}}"}},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceNodeID: "in", SourcePort: registry.PortValue, TargetNodeID: "join", TargetPort: registry.PortFirst},
			{ID: "e2", SourceNodeID: "join", SourcePort: registry.PortMerged, TargetNodeID: "check", TargetPort: registry.PortValue},
			{ID: "e3", SourceNodeID: "check", SourcePort: registry.PortFalse, TargetNodeID: "join", TargetPort: registry.PortSecond, Condition: registry.PortFalse},
		},
	}

	report := validation.Validate(g, testRegistry())

	assert.True(t, report.OK, "issues: %v", report.Issues)
}
