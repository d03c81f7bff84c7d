package registry_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artistscloud/a9ents-sub000/pkg/capabilities"
	"github.com/artistscloud/a9ents-sub000/pkg/models"
	"github.com/artistscloud/a9ents-sub000/pkg/registry"
)

func defaultRegistry() *registry.Registry {
	reg := registry.NewRegistry(slog.Default())
	registry.RegisterDefaults(reg, registry.CapabilitySet{
		Generate: func(_ context.Context, req capabilities.GenerateRequest) (string, error) {
			return "generated: " + req.Prompt, nil
		},
		Knowledge: capabilities.NewMemoryKnowledgeStore(),
		Scrape: func(_ context.Context, _ string) (capabilities.Page, error) {
			return capabilities.Page{Title: "t", Text: "x"}, nil
		},
		HTTPCall: func(_ context.Context, _ capabilities.HTTPRequest) (capabilities.HTTPResponse, error) {
			return capabilities.HTTPResponse{StatusCode: 200}, nil
		},
	})

	return reg
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	reg := defaultRegistry()

	nodeType, err := reg.Lookup(registry.KindCondition)
	require.NoError(t, err)
	assert.Equal(t, registry.KindCondition, nodeType.Kind)
	assert.True(t, nodeType.Branch)

	_, err = reg.Lookup("unregistered")
	assert.ErrorIs(t, err, registry.ErrUnknownNodeKind)
}

func TestRegistryCapabilityFor(t *testing.T) {
	t.Parallel()

	reg := defaultRegistry()

	capability, err := reg.CapabilityFor(registry.KindText)
	require.NoError(t, err)

	node := &models.Node{ID: "n1", Kind: registry.KindText, Config: map[string]any{"text": "hello"}}

	outputs, err := capability(context.Background(), node, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", outputs[registry.PortText])

	_, err = reg.CapabilityFor("unregistered")
	assert.ErrorIs(t, err, registry.ErrUnknownNodeKind)
}

func TestRegistryKindsAreSorted(t *testing.T) {
	t.Parallel()

	reg := defaultRegistry()

	kinds := reg.Kinds()
	require.NotEmpty(t, kinds)
	assert.IsIncreasing(t, kinds)
	assert.Contains(t, kinds, registry.KindInput)
	assert.Contains(t, kinds, registry.KindTriggerKafka)
}

func TestRegistryValidateConfig(t *testing.T) {
	t.Parallel()

	reg := defaultRegistry()

	t.Run("accepts a valid config", func(t *testing.T) {
		t.Parallel()

		violations, err := reg.ValidateConfig(registry.KindText, map[string]any{"text": "hi"})
		require.NoError(t, err)
		assert.Empty(t, violations)
	})

	t.Run("reports missing required properties", func(t *testing.T) {
		t.Parallel()

		violations, err := reg.ValidateConfig(registry.KindText, map[string]any{})
		require.NoError(t, err)
		assert.NotEmpty(t, violations)
	})

	t.Run("reports wrong property types", func(t *testing.T) {
		t.Parallel()

		violations, err := reg.ValidateConfig(registry.KindLLMGenerate, map[string]any{
			"provider":    "openai",
			"temperature": "hot",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, violations)
	})

	t.Run("treats nil config as empty", func(t *testing.T) {
		t.Parallel()

		violations, err := reg.ValidateConfig(registry.KindMerge, nil)
		require.NoError(t, err)
		assert.Empty(t, violations)
	})

	t.Run("rejects unknown kinds", func(t *testing.T) {
		t.Parallel()

		_, err := reg.ValidateConfig("unregistered", nil)
		assert.ErrorIs(t, err, registry.ErrUnknownNodeKind)
	})
}

func TestRegistryHealthCheck(t *testing.T) {
	t.Parallel()

	empty := registry.NewRegistry(slog.Default())

	_, ok := empty.HealthCheck()
	assert.False(t, ok)

	msg, ok := defaultRegistry().HealthCheck()
	assert.True(t, ok)
	assert.Contains(t, msg, "node kinds registered")
}

func TestConditionCapabilityEmitsSingleBranch(t *testing.T) {
	t.Parallel()

	reg := defaultRegistry()

	capability, err := reg.CapabilityFor(registry.KindCondition)
	require.NoError(t, err)

	node := &models.Node{
		ID:     "check",
		Kind:   registry.KindCondition,
		Config: map[string]any{"expression": "{{gt .value 10}}"},
	}

	outputs, err := capability(context.Background(), node, map[string]any{registry.PortValue: 42})
	require.NoError(t, err)
	assert.Contains(t, outputs, registry.PortTrue)
	assert.NotContains(t, outputs, registry.PortFalse)

	outputs, err = capability(context.Background(), node, map[string]any{registry.PortValue: 3})
	require.NoError(t, err)
	assert.Contains(t, outputs, registry.PortFalse)
	assert.NotContains(t, outputs, registry.PortTrue)
}
