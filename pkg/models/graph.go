// Package models defines the core domain models for node-based workflow automation.
package models

import "time"

// DataType classifies the values carried by a port.
type DataType string

const (
	DataTypeText  DataType = "text"
	DataTypeJSON  DataType = "json"
	DataTypeImage DataType = "image"
	DataTypeAudio DataType = "audio"
	DataTypeVideo DataType = "video"
	DataTypeFile  DataType = "file"
	DataTypeAny   DataType = "any"
)

// CompatibleWith reports whether a value of this type may flow into a port of
// type other. "any" matches everything on either side.
func (d DataType) CompatibleWith(other DataType) bool {
	if d == DataTypeAny || other == DataTypeAny {
		return true
	}

	return d == other
}

// PortSpec describes a named, typed connection point declared by a node type.
type PortSpec struct {
	Name string   `json:"name"`
	Type DataType `json:"type"`
}

// NodeType is the registry-defined, immutable description of a node kind:
// its ports, its configuration schema and its scheduling traits.
type NodeType struct {
	Kind         string         `json:"kind"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	InputPorts   []PortSpec     `json:"input_ports"`
	OutputPorts  []PortSpec     `json:"output_ports"`
	ConfigSchema map[string]any `json:"config_schema,omitempty"`

	// Entry kinds (inputs and triggers) are valid roots: they need no
	// inbound edge and receive the trigger payload directly.
	Entry bool `json:"entry,omitempty"`
	// Merge kinds tolerate partial inputs: they run once any inbound
	// edge delivered a value instead of skipping on the first gap.
	Merge bool `json:"merge,omitempty"`
	// Branch kinds emit on exactly one output port per execution and
	// their outgoing edges carry branch conditions. Edges leaving a
	// branch kind are excluded from cycle detection.
	Branch bool `json:"branch,omitempty"`
}

// InputPort returns the declared input port with the given name.
func (t NodeType) InputPort(name string) (PortSpec, bool) {
	for _, p := range t.InputPorts {
		if p.Name == name {
			return p, true
		}
	}

	return PortSpec{}, false
}

// OutputPort returns the declared output port with the given name.
func (t NodeType) OutputPort(name string) (PortSpec, bool) {
	for _, p := range t.OutputPorts {
		if p.Name == name {
			return p, true
		}
	}

	return PortSpec{}, false
}

// Position is the editor placement of a node. Presentation only, it carries
// no execution meaning.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Node is a node instance in a workflow graph.
type Node struct {
	ID       string         `json:"id"       validate:"required"`
	Kind     string         `json:"kind"     validate:"required"`
	Label    string         `json:"label"`
	Position Position       `json:"position"`
	Config   map[string]any `json:"config"`
}

// Edge is a directed data link from a source node's output port to a target
// node's input port. Condition is only meaningful when the source node is a
// branch kind: it names the branch that must have fired for the edge to
// carry data.
type Edge struct {
	ID           string `json:"id"             validate:"required"`
	SourceNodeID string `json:"source_node_id" validate:"required"`
	SourcePort   string `json:"source_port"    validate:"required"`
	TargetNodeID string `json:"target_node_id" validate:"required"`
	TargetPort   string `json:"target_port"    validate:"required"`
	Condition    string `json:"condition,omitempty"`
}

// Graph is a workflow graph: nodes, edges and ownership metadata.
type Graph struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"  validate:"required,min=3"`
	Owner     string     `json:"owner" validate:"required"`
	Nodes     []*Node    `json:"nodes"`
	Edges     []*Edge    `json:"edges"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// NodeByID returns the node with the given ID, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}

// EdgeByID returns the edge with the given ID, or nil.
func (g *Graph) EdgeByID(id string) *Edge {
	for _, e := range g.Edges {
		if e.ID == id {
			return e
		}
	}

	return nil
}

// InboundEdges returns all edges targeting the given node.
func (g *Graph) InboundEdges(nodeID string) []*Edge {
	edges := make([]*Edge, 0)

	for _, e := range g.Edges {
		if e.TargetNodeID == nodeID {
			edges = append(edges, e)
		}
	}

	return edges
}

// OutboundEdges returns all edges leaving the given node.
func (g *Graph) OutboundEdges(nodeID string) []*Edge {
	edges := make([]*Edge, 0)

	for _, e := range g.Edges {
		if e.SourceNodeID == nodeID {
			edges = append(edges, e)
		}
	}

	return edges
}

// Clone returns a deep copy of the graph. Runs execute against a clone so
// that concurrent edits of the stored graph never affect an in-flight run.
func (g *Graph) Clone() *Graph {
	clone := &Graph{
		ID:        g.ID,
		Name:      g.Name,
		Owner:     g.Owner,
		Nodes:     make([]*Node, 0, len(g.Nodes)),
		Edges:     make([]*Edge, 0, len(g.Edges)),
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}

	for _, n := range g.Nodes {
		node := *n
		node.Config = cloneMap(n.Config)
		clone.Nodes = append(clone.Nodes, &node)
	}

	for _, e := range g.Edges {
		edge := *e
		clone.Edges = append(clone.Edges, &edge)
	}

	return clone
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}
