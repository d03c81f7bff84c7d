package runstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/artistscloud/a9ents-sub000/pkg/models"
)

// MemoryStore is an in-process run store for tests, the runner CLI and
// single-node deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*models.Run
}

// NewMemoryStore creates an empty in-memory run store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]*models.Run),
	}
}

func (s *MemoryStore) CreateRun(_ context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}

	s.runs[run.ID] = cloneRun(run)

	return nil
}

func (s *MemoryStore) MarkNodeRunning(_ context.Context, runID, nodeID string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	if run.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrRunFinalized, runID)
	}

	if existing, reserved := run.NodeResults[nodeID]; reserved {
		return fmt.Errorf("%w: node %s is %s", ErrNodeAlreadyStarted, nodeID, existing.Status)
	}

	run.NodeResults[nodeID] = &models.NodeResult{
		NodeID:    nodeID,
		Status:    models.NodeStatusRunning,
		StartedAt: startedAt,
	}

	return nil
}

func (s *MemoryStore) RecordNodeResult(_ context.Context, runID string, result *models.NodeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	existing, reserved := run.NodeResults[result.NodeID]
	if reserved && existing.Status.Terminal() {
		return fmt.Errorf("%w: node %s", ErrNodeResultRecorded, result.NodeID)
	}

	run.NodeResults[result.NodeID] = cloneNodeResult(result)

	return nil
}

func (s *MemoryStore) FinalizeRun(_ context.Context, runID string, status models.RunStatus, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	if run.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrRunFinalized, runID)
	}

	run.Status = status
	run.FinishedAt = &finishedAt

	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	return cloneRun(run), nil
}

func (s *MemoryStore) ListRunsByGraph(_ context.Context, graphID string) ([]*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*models.Run, 0)

	for _, run := range s.runs {
		if run.GraphID == graphID {
			runs = append(runs, cloneRun(run))
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID > runs[j].ID
		}

		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	return runs, nil
}

func cloneRun(run *models.Run) *models.Run {
	clone := *run
	clone.NodeResults = make(map[string]*models.NodeResult, len(run.NodeResults))

	for nodeID, result := range run.NodeResults {
		clone.NodeResults[nodeID] = cloneNodeResult(result)
	}

	if run.TriggerPayload != nil {
		clone.TriggerPayload = make(map[string]any, len(run.TriggerPayload))
		for k, v := range run.TriggerPayload {
			clone.TriggerPayload[k] = v
		}
	}

	return &clone
}

func cloneNodeResult(result *models.NodeResult) *models.NodeResult {
	clone := *result

	if result.Outputs != nil {
		clone.Outputs = make(map[string]any, len(result.Outputs))
		for k, v := range result.Outputs {
			clone.Outputs[k] = v
		}
	}

	return &clone
}
