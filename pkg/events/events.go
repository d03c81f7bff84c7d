// Package events defines event types for run lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/artistscloud/a9ents-sub000/pkg/models"
)

type EventType string

// Topic carries all run lifecycle events.
const Topic = "a9ents.runs"

const EventKeyMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunStartedEvent   EventType = "run.started"
	RunFinishedEvent  EventType = "run.finished"
	NodeFinishedEvent EventType = "node.finished"
)

// Event is anything publishable on the bus.
type Event interface {
	GetType() EventType
}

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	GraphID   string         `json:"graph_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent creates the shared envelope for an event.
func NewBaseEvent(eventType EventType, graphID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		GraphID:   graphID,
	}
}

// RunStarted is published when a run leaves pending.
type RunStarted struct {
	BaseEvent

	RunID          string         `json:"run_id"`
	TriggerPayload map[string]any `json:"trigger_payload,omitempty"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

// RunFinished is published when a run reaches any terminal status.
type RunFinished struct {
	BaseEvent

	RunID    string           `json:"run_id"`
	Status   models.RunStatus `json:"status"`
	Duration time.Duration    `json:"duration"`
}

func (e RunFinished) GetType() EventType {
	return RunFinishedEvent
}

// NodeFinished is published for every node reaching a terminal status.
type NodeFinished struct {
	BaseEvent

	RunID      string            `json:"run_id"`
	NodeID     string            `json:"node_id"`
	Status     models.NodeStatus `json:"status"`
	Error      string            `json:"error,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

func (e NodeFinished) GetType() EventType {
	return NodeFinishedEvent
}
