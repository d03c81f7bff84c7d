// Package registry provides the static catalog of node kinds: their port
// declarations, configuration schemas and bound capabilities.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"github.com/artistscloud/a9ents-sub000/pkg/models"
)

// ErrUnknownNodeKind indicates a node kind that is not registered.
var ErrUnknownNodeKind = errors.New("unknown node kind")

// Capability executes the external effect of one node kind. Inputs are keyed
// by input port name; entry kinds receive the trigger payload under the
// "trigger" key. Outputs are keyed by output port name. Branch kinds must
// emit on exactly one output port.
type Capability func(ctx context.Context, node *models.Node, inputs map[string]any) (map[string]any, error)

// Registry maps node kinds to their type descriptions and capabilities.
// It is populated once at startup and read-only afterwards.
type Registry struct {
	logger       *slog.Logger
	types        map[string]models.NodeType
	capabilities map[string]Capability
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:       logger,
		types:        make(map[string]models.NodeType),
		capabilities: make(map[string]Capability),
	}
}

// Register adds a node kind with its capability. Registering the same kind
// twice replaces the earlier entry; registration is an init-time concern,
// never a graph-level operation.
func (r *Registry) Register(nodeType models.NodeType, capability Capability) {
	r.types[nodeType.Kind] = nodeType
	r.capabilities[nodeType.Kind] = capability

	if r.logger != nil {
		r.logger.Debug("Registered node kind", "kind", nodeType.Kind)
	}
}

// Lookup returns the node type registered under kind.
func (r *Registry) Lookup(kind string) (models.NodeType, error) {
	nodeType, ok := r.types[kind]
	if !ok {
		return models.NodeType{}, fmt.Errorf("%w: %s", ErrUnknownNodeKind, kind)
	}

	return nodeType, nil
}

// CapabilityFor returns the capability bound to kind.
func (r *Registry) CapabilityFor(kind string) (Capability, error) {
	capability, ok := r.capabilities[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNodeKind, kind)
	}

	return capability, nil
}

// Kinds returns all registered kinds in ascending order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.types))
	for kind := range r.types {
		kinds = append(kinds, kind)
	}

	sort.Strings(kinds)

	return kinds
}

// ValidateConfig checks a config mapping against the kind's JSON schema and
// returns one description per violation, sorted for deterministic reporting.
// A nil schema accepts any config.
func (r *Registry) ValidateConfig(kind string, config map[string]any) ([]string, error) {
	nodeType, err := r.Lookup(kind)
	if err != nil {
		return nil, err
	}

	if nodeType.ConfigSchema == nil {
		return nil, nil
	}

	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(nodeType.ConfigSchema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return nil, fmt.Errorf("config schema validation failed for kind %s: %w", kind, err)
	}

	if result.Valid() {
		return nil, nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, violation := range result.Errors() {
		violations = append(violations, violation.String())
	}

	sort.Strings(violations)

	return violations, nil
}

// HealthCheck reports whether the registry holds at least one kind.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.types) == 0 {
		return "no node kinds registered", false
	}

	return fmt.Sprintf("%d node kinds registered", len(r.types)), true
}
