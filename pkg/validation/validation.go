// Package validation checks workflow graphs for structural correctness
// before they may run. Validation never fails with an error: it always
// produces a full report so a client can display every problem at once.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/artistscloud/a9ents-sub000/pkg/models"
	"github.com/artistscloud/a9ents-sub000/pkg/registry"
)

// Issue codes.
const (
	CodeUnknownKind   = "unknown_kind"
	CodeInvalidConfig = "invalid_config"
	CodeUnknownNode   = "unknown_node"
	CodePortNotFound  = "port_not_found"
	CodeTypeMismatch  = "type_mismatch"
	CodeDeadNode      = "dead_node"
	CodeCycleDetected = "cycle_detected"
)

// Issue is one validation finding. Fatal issues block run creation;
// warnings (dead nodes) do not.
type Issue struct {
	Code    string `json:"code"`
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}

// Report is the outcome of validating a graph. OK is true when no fatal
// issue was found; a graph with only warnings is runnable.
type Report struct {
	OK     bool    `json:"ok"`
	Issues []Issue `json:"issues"`
}

// Validate checks the graph against the registry. The report is
// deterministic: checks run in a fixed order and visit nodes and edges in
// ID-ascending order.
func Validate(g *models.Graph, reg *registry.Registry) Report {
	report := Report{OK: true}

	add := func(issue Issue) {
		report.Issues = append(report.Issues, issue)
		if issue.Fatal {
			report.OK = false
		}
	}

	nodes := sortedNodes(g)
	edges := sortedEdges(g)

	// 1. Node configs against their kind schemas.
	for _, node := range nodes {
		if _, err := reg.Lookup(node.Kind); err != nil {
			add(Issue{
				Code:    CodeUnknownKind,
				NodeID:  node.ID,
				Message: fmt.Sprintf("node %s has unregistered kind %s", node.ID, node.Kind),
				Fatal:   true,
			})

			continue
		}

		violations, err := reg.ValidateConfig(node.Kind, node.Config)
		if err != nil {
			add(Issue{
				Code:    CodeInvalidConfig,
				NodeID:  node.ID,
				Message: fmt.Sprintf("node %s config could not be checked: %v", node.ID, err),
				Fatal:   true,
			})

			continue
		}

		for _, violation := range violations {
			add(Issue{
				Code:    CodeInvalidConfig,
				NodeID:  node.ID,
				Message: fmt.Sprintf("node %s: %s", node.ID, violation),
				Fatal:   true,
			})
		}
	}

	// 2. Edge endpoints, ports and type compatibility. AddEdge already
	// guarantees this for graphs built through the mutation API; graphs
	// loaded from storage or constructed directly get the same checks.
	for _, edge := range edges {
		validateEdge(g, reg, edge, add)
	}

	// 3. Reachability: non-entry nodes with no inbound edge never run.
	inbound := make(map[string]int, len(g.Nodes))
	for _, edge := range g.Edges {
		inbound[edge.TargetNodeID]++
	}

	for _, node := range nodes {
		nodeType, err := reg.Lookup(node.Kind)
		if err != nil || nodeType.Entry {
			continue
		}

		if inbound[node.ID] == 0 {
			add(Issue{
				Code:    CodeDeadNode,
				NodeID:  node.ID,
				Message: fmt.Sprintf("node %s has no incoming edge and will never run", node.ID),
				Fatal:   false,
			})
		}
	}

	// 4. Cycle detection over non-branch edges.
	if cycle := findCycle(g, reg); len(cycle) > 0 {
		add(Issue{
			Code:    CodeCycleDetected,
			Message: "cycle detected through nodes " + strings.Join(cycle, ", "),
			Fatal:   true,
		})
	}

	return report
}

func validateEdge(g *models.Graph, reg *registry.Registry, edge *models.Edge, add func(Issue)) {
	source := g.NodeByID(edge.SourceNodeID)
	if source == nil {
		add(Issue{
			Code:    CodeUnknownNode,
			EdgeID:  edge.ID,
			Message: fmt.Sprintf("edge %s references missing source node %s", edge.ID, edge.SourceNodeID),
			Fatal:   true,
		})

		return
	}

	target := g.NodeByID(edge.TargetNodeID)
	if target == nil {
		add(Issue{
			Code:    CodeUnknownNode,
			EdgeID:  edge.ID,
			Message: fmt.Sprintf("edge %s references missing target node %s", edge.ID, edge.TargetNodeID),
			Fatal:   true,
		})

		return
	}

	sourceType, err := reg.Lookup(source.Kind)
	if err != nil {
		return // already reported as unknown_kind
	}

	targetType, err := reg.Lookup(target.Kind)
	if err != nil {
		return
	}

	out, ok := sourceType.OutputPort(edge.SourcePort)
	if !ok {
		add(Issue{
			Code:    CodePortNotFound,
			EdgeID:  edge.ID,
			Message: fmt.Sprintf("edge %s references missing output port %s on kind %s", edge.ID, edge.SourcePort, source.Kind),
			Fatal:   true,
		})

		return
	}

	in, ok := targetType.InputPort(edge.TargetPort)
	if !ok {
		add(Issue{
			Code:    CodePortNotFound,
			EdgeID:  edge.ID,
			Message: fmt.Sprintf("edge %s references missing input port %s on kind %s", edge.ID, edge.TargetPort, target.Kind),
			Fatal:   true,
		})

		return
	}

	if !out.Type.CompatibleWith(in.Type) {
		add(Issue{
			Code:    CodeTypeMismatch,
			EdgeID:  edge.ID,
			Message: fmt.Sprintf("edge %s connects %s (%s) to %s (%s)", edge.ID, edge.SourcePort, out.Type, edge.TargetPort, in.Type),
			Fatal:   true,
		})
	}
}

// findCycle runs a depth-first search over edges whose source is not a
// branch kind and returns the node IDs participating in the first back-edge
// found, ordered for deterministic reporting.
func findCycle(g *models.Graph, reg *registry.Registry) []string {
	adjacency := make(map[string][]string)

	for _, edge := range sortedEdges(g) {
		source := g.NodeByID(edge.SourceNodeID)
		if source == nil || g.NodeByID(edge.TargetNodeID) == nil {
			continue
		}

		if nodeType, err := reg.Lookup(source.Kind); err == nil && nodeType.Branch {
			continue
		}

		adjacency[edge.SourceNodeID] = append(adjacency[edge.SourceNodeID], edge.TargetNodeID)
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)

	state := make(map[string]int, len(g.Nodes))
	stack := make([]string, 0, len(g.Nodes))

	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = inStack
		stack = append(stack, id)

		for _, next := range adjacency[id] {
			switch state[next] {
			case inStack:
				// Back-edge: collect the stack segment from next onwards.
				for i := len(stack) - 1; i >= 0; i-- {
					cycle = append(cycle, stack[i])
					if stack[i] == next {
						break
					}
				}

				sort.Strings(cycle)

				return true
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done

		return false
	}

	for _, node := range sortedNodes(g) {
		if state[node.ID] == unvisited {
			if visit(node.ID) {
				return cycle
			}
		}
	}

	return nil
}

func sortedNodes(g *models.Graph) []*models.Node {
	nodes := make([]*models.Node, len(g.Nodes))
	copy(nodes, g.Nodes)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	return nodes
}

func sortedEdges(g *models.Graph) []*models.Edge {
	edges := make([]*models.Edge, len(g.Edges))
	copy(edges, g.Edges)
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

	return edges
}
