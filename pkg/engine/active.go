package engine

import (
	"context"
	"sync"
)

// activeRuns tracks cancel functions of in-flight runs so Cancel can reach
// them by run ID.
type activeRuns struct {
	mu   sync.Mutex
	runs map[string]context.CancelFunc
}

func newActiveRuns() *activeRuns {
	return &activeRuns{runs: make(map[string]context.CancelFunc)}
}

func (a *activeRuns) add(runID string, cancel context.CancelFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.runs[runID] = cancel
}

func (a *activeRuns) remove(runID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.runs, runID)
}

func (a *activeRuns) cancel(runID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	cancel, ok := a.runs[runID]
	if ok {
		cancel()
	}

	return ok
}
