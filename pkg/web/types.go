// Package web provides HTTP request and response types for the graph API.
package web

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CreateGraphRequest represents the request body for creating a new graph.
type CreateGraphRequest struct {
	Name  string `json:"name"  validate:"required,min=3"`
	Owner string `json:"owner" validate:"required"`
}

// UpdateGraphRequest represents the request body for updating an existing
// graph. All fields are optional to support partial updates.
type UpdateGraphRequest struct {
	Name *string `json:"name,omitempty" validate:"omitempty,min=3"`
}

// CreateNodeRequest represents the request body for adding a node to a graph.
type CreateNodeRequest struct {
	Kind      string         `json:"kind"       validate:"required"`
	Label     string         `json:"label"`
	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// UpdateNodeRequest represents the request body for updating a node. Kind
// cannot be changed, only label, config and position.
type UpdateNodeRequest struct {
	Label     string         `json:"label"`
	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// CreateEdgeRequest represents the request body for connecting two nodes.
type CreateEdgeRequest struct {
	SourceNodeID string `json:"source_node_id" validate:"required"`
	SourcePort   string `json:"source_port"    validate:"required"`
	TargetNodeID string `json:"target_node_id" validate:"required"`
	TargetPort   string `json:"target_port"    validate:"required"`
	Condition    string `json:"condition,omitempty"`
}

// StartRunRequest represents the request body for starting a run.
type StartRunRequest struct {
	Payload map[string]any `json:"payload"`
}
