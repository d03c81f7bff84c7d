// Package manager activates long-lived triggers for stored graphs: it scans
// persistence for schedule and Kafka trigger nodes and keeps one running
// trigger per node.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/artistscloud/a9ents-sub000/pkg/models"
	"github.com/artistscloud/a9ents-sub000/pkg/persistence"
	"github.com/artistscloud/a9ents-sub000/pkg/registry"
	"github.com/artistscloud/a9ents-sub000/pkg/triggers"
	"github.com/artistscloud/a9ents-sub000/pkg/triggers/kafka"
	"github.com/artistscloud/a9ents-sub000/pkg/triggers/schedule"
)

// RunStarter starts a run for a graph. The engine satisfies this.
type RunStarter interface {
	StartRun(ctx context.Context, g *models.Graph, payload map[string]any) (*models.Run, error)
}

// Manager owns the active triggers of all stored graphs.
type Manager struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	starter     RunStarter

	mu     sync.Mutex
	active map[string]triggers.Trigger // keyed by graphID/nodeID
}

func NewManager(logger *slog.Logger, store persistence.Persistence, starter RunStarter) *Manager {
	return &Manager{
		logger:      logger.With("module", "trigger_manager"),
		persistence: store,
		starter:     starter,
		active:      make(map[string]triggers.Trigger),
	}
}

// Start scans stored graphs and activates a trigger per schedule or Kafka
// trigger node. Graphs that fail to activate are logged and skipped so one
// bad graph cannot block the rest.
func (m *Manager) Start(ctx context.Context) error {
	graphs, err := m.persistence.Graphs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list graphs: %w", err)
	}

	for _, graph := range graphs {
		for _, node := range graph.Nodes {
			if err := m.activate(ctx, graph, node); err != nil {
				m.logger.ErrorContext(ctx, "Failed to activate trigger",
					"graph_id", graph.ID, "node_id", node.ID, "kind", node.Kind, "error", err)
			}
		}
	}

	m.logger.InfoContext(ctx, "Trigger manager started", "active_triggers", len(m.active))

	return nil
}

// Stop deactivates all triggers.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, trigger := range m.active {
		if err := trigger.Stop(ctx); err != nil {
			m.logger.ErrorContext(ctx, "Failed to stop trigger", "key", key, "error", err)
		}

		delete(m.active, key)
	}

	return nil
}

func (m *Manager) activate(ctx context.Context, graph *models.Graph, node *models.Node) error {
	var (
		trigger triggers.Trigger
		err     error
	)

	switch node.Kind {
	case registry.KindTriggerSchedule:
		trigger, err = schedule.NewScheduleTrigger(node.ID, graph.ID, node.Config, m.logger)
	case registry.KindTriggerKafka:
		trigger, err = kafka.NewTrigger(graph.ID, node.Config, m.logger)
	default:
		return nil
	}

	if err != nil {
		return err
	}

	graphID := graph.ID
	callback := func(ctx context.Context, payload map[string]any) error {
		current, err := m.persistence.GraphByID(ctx, graphID)
		if err != nil {
			return fmt.Errorf("failed to load graph %s: %w", graphID, err)
		}

		_, err = m.starter.StartRun(ctx, current, payload)

		return err
	}

	if err := trigger.Start(ctx, callback); err != nil {
		return err
	}

	m.mu.Lock()
	m.active[graph.ID+"/"+node.ID] = trigger
	m.mu.Unlock()

	return nil
}
