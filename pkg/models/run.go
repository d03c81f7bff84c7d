package models

import "time"

// RunStatus is the lifecycle state of a run. Terminal states are final.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status allows no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCancelled
}

// NodeStatus is the per-node state within a run.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusSucceeded NodeStatus = "succeeded"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
)

// Terminal reports whether the node reached a final state.
func (s NodeStatus) Terminal() bool {
	return s == NodeStatusSucceeded || s == NodeStatusFailed || s == NodeStatusSkipped
}

// NodeResult records one node's outcome within a run. A node transitions
// pending -> running -> terminal exactly once per run.
type NodeResult struct {
	NodeID     string         `json:"node_id"`
	Status     NodeStatus     `json:"status"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	Error      string         `json:"error,omitempty"`
	SkipReason string         `json:"skip_reason,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Run is one execution instance of a workflow graph. It holds its own graph
// snapshot reference and is mutated only by the execution engine; once
// terminal it is immutable.
type Run struct {
	ID             string                 `json:"id"`
	GraphID        string                 `json:"graph_id"`
	Status         RunStatus              `json:"status"`
	TriggerPayload map[string]any         `json:"trigger_payload,omitempty"`
	NodeResults    map[string]*NodeResult `json:"node_results"`
	StartedAt      time.Time              `json:"started_at"`
	FinishedAt     *time.Time             `json:"finished_at,omitempty"`
}
