// Package runstore records execution history: runs and their per-node
// results. Node results within a run are append-only, and the store enforces
// the exactly-once write discipline the engine relies on: a node is reserved
// as running through a compare-and-set and its terminal result is written
// exactly once.
package runstore

import (
	"context"
	"errors"
	"time"

	"github.com/artistscloud/a9ents-sub000/pkg/models"
)

var (
	// ErrRunNotFound indicates an unknown run ID.
	ErrRunNotFound = errors.New("run not found")
	// ErrNodeAlreadyStarted indicates a second attempt to reserve a node
	// as running within the same run.
	ErrNodeAlreadyStarted = errors.New("node already started")
	// ErrNodeResultRecorded indicates a second terminal write for the
	// same node within a run.
	ErrNodeResultRecorded = errors.New("node result already recorded")
	// ErrRunFinalized indicates a write against a run that already
	// reached a terminal status.
	ErrRunFinalized = errors.New("run already finalized")
)

// Store persists runs and node results.
type Store interface {
	// CreateRun persists a new run in pending or running state.
	CreateRun(ctx context.Context, run *models.Run) error

	// MarkNodeRunning reserves a node slot, transitioning it to running.
	// It fails with ErrNodeAlreadyStarted when the slot was reserved
	// before, which is what prevents double-execution of a node.
	MarkNodeRunning(ctx context.Context, runID, nodeID string, startedAt time.Time) error

	// RecordNodeResult writes a node's terminal result. Each node slot is
	// written exactly once; a second write fails with
	// ErrNodeResultRecorded.
	RecordNodeResult(ctx context.Context, runID string, result *models.NodeResult) error

	// FinalizeRun transitions a run to a terminal status.
	FinalizeRun(ctx context.Context, runID string, status models.RunStatus, finishedAt time.Time) error

	// GetRun returns a run with all node results.
	GetRun(ctx context.Context, runID string) (*models.Run, error)

	// ListRunsByGraph returns all runs of a graph, most recent first.
	ListRunsByGraph(ctx context.Context, graphID string) ([]*models.Run, error)
}
