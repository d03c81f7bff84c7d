// Package graph implements the pure mutation API for workflow graphs. All
// mutations apply in memory; persistence is a concern of the caller. The API
// is forgiving on removal and strict on addition: full structural validation
// happens before execution, not before storage.
package graph

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/artistscloud/a9ents-sub000/pkg/models"
	"github.com/artistscloud/a9ents-sub000/pkg/registry"
)

var (
	// ErrInvalidConfig indicates a node config violating its kind's schema.
	ErrInvalidConfig = errors.New("invalid node config")
	// ErrUnknownNode indicates an edge endpoint referencing a missing node.
	ErrUnknownNode = errors.New("unknown node")
	// ErrPortNotFound indicates an edge referencing a port the node kind
	// does not declare.
	ErrPortNotFound = errors.New("port not found")
	// ErrTypeMismatch indicates incompatible port data types.
	ErrTypeMismatch = errors.New("port type mismatch")
	// ErrDuplicateEdge indicates an edge duplicating an existing
	// (source, sourcePort, target, targetPort) quadruple.
	ErrDuplicateEdge = errors.New("duplicate edge")
)

// Model mutates graphs against a node kind registry.
type Model struct {
	registry *registry.Registry
}

// NewModel creates a graph model bound to the given registry.
func NewModel(reg *registry.Registry) *Model {
	return &Model{registry: reg}
}

// AddNode appends a node of the given kind. The config is checked against
// the kind's schema before the node is added.
func (m *Model) AddNode(g *models.Graph, kind, label string, config map[string]any, position models.Position) (*models.Node, error) {
	if _, err := m.registry.Lookup(kind); err != nil {
		return nil, err
	}

	violations, err := m.registry.ValidateConfig(kind, config)
	if err != nil {
		return nil, err
	}

	if len(violations) > 0 {
		return nil, fmt.Errorf("%w for kind %s: %v", ErrInvalidConfig, kind, violations)
	}

	if config == nil {
		config = make(map[string]any)
	}

	node := &models.Node{
		ID:       uuid.New().String(),
		Kind:     kind,
		Label:    label,
		Position: position,
		Config:   config,
	}

	g.Nodes = append(g.Nodes, node)

	return node, nil
}

// AddEdge connects a source output port to a target input port. Both
// endpoints must exist, the ports must be declared by the node kinds and
// their data types must be compatible.
func (m *Model) AddEdge(g *models.Graph, sourceNodeID, sourcePort, targetNodeID, targetPort, condition string) (*models.Edge, error) {
	source := g.NodeByID(sourceNodeID)
	if source == nil {
		return nil, fmt.Errorf("%w: source %s", ErrUnknownNode, sourceNodeID)
	}

	target := g.NodeByID(targetNodeID)
	if target == nil {
		return nil, fmt.Errorf("%w: target %s", ErrUnknownNode, targetNodeID)
	}

	sourceType, err := m.registry.Lookup(source.Kind)
	if err != nil {
		return nil, err
	}

	targetType, err := m.registry.Lookup(target.Kind)
	if err != nil {
		return nil, err
	}

	out, ok := sourceType.OutputPort(sourcePort)
	if !ok {
		return nil, fmt.Errorf("%w: output %s on kind %s", ErrPortNotFound, sourcePort, source.Kind)
	}

	in, ok := targetType.InputPort(targetPort)
	if !ok {
		return nil, fmt.Errorf("%w: input %s on kind %s", ErrPortNotFound, targetPort, target.Kind)
	}

	if !out.Type.CompatibleWith(in.Type) {
		return nil, fmt.Errorf("%w: %s (%s) -> %s (%s)", ErrTypeMismatch, sourcePort, out.Type, targetPort, in.Type)
	}

	for _, existing := range g.Edges {
		if existing.SourceNodeID == sourceNodeID && existing.SourcePort == sourcePort &&
			existing.TargetNodeID == targetNodeID && existing.TargetPort == targetPort {
			return nil, fmt.Errorf("%w: %s:%s -> %s:%s", ErrDuplicateEdge, sourceNodeID, sourcePort, targetNodeID, targetPort)
		}
	}

	edge := &models.Edge{
		ID:           uuid.New().String(),
		SourceNodeID: sourceNodeID,
		SourcePort:   sourcePort,
		TargetNodeID: targetNodeID,
		TargetPort:   targetPort,
		Condition:    condition,
	}

	g.Edges = append(g.Edges, edge)

	return edge, nil
}

// RemoveNode deletes a node and cascades to its incident edges. Removing a
// node that does not exist is a no-op.
func (m *Model) RemoveNode(g *models.Graph, nodeID string) {
	if g.NodeByID(nodeID) == nil {
		return
	}

	nodes := g.Nodes[:0]
	for _, n := range g.Nodes {
		if n.ID != nodeID {
			nodes = append(nodes, n)
		}
	}

	g.Nodes = nodes

	edges := g.Edges[:0]
	for _, e := range g.Edges {
		if e.SourceNodeID != nodeID && e.TargetNodeID != nodeID {
			edges = append(edges, e)
		}
	}

	g.Edges = edges
}

// RemoveEdge deletes an edge. Removing an edge that does not exist is a
// no-op.
func (m *Model) RemoveEdge(g *models.Graph, edgeID string) {
	edges := g.Edges[:0]
	for _, e := range g.Edges {
		if e.ID != edgeID {
			edges = append(edges, e)
		}
	}

	g.Edges = edges
}
