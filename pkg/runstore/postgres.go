package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/artistscloud/a9ents-sub000/pkg/models"
	"github.com/artistscloud/a9ents-sub000/pkg/persistence/sqlbase"
)

// PostgresStore persists runs and node results in PostgreSQL. Node slots are
// reserved with INSERT ... ON CONFLICT DO NOTHING, so the reserve step is a
// single atomic statement.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func runStoreMigrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS runs (
				id TEXT PRIMARY KEY,
				graph_id TEXT NOT NULL,
				status TEXT NOT NULL,
				trigger_payload JSONB,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_runs_graph_id ON runs (graph_id, started_at DESC);

			CREATE TABLE IF NOT EXISTS node_results (
				run_id TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
				node_id TEXT NOT NULL,
				status TEXT NOT NULL,
				outputs JSONB,
				error TEXT,
				skip_reason TEXT,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE,
				PRIMARY KEY (run_id, node_id)
			);
		`,
	}
}

// NewPostgresStore opens a connection, runs migrations and returns the
// store.
func NewPostgresStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*PostgresStore, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, "run_store_migrations", runStoreMigrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: database, logger: logger}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.Run) error {
	payload, err := json.Marshal(run.TriggerPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, graph_id, status, trigger_payload, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`, run.ID, run.GraphID, string(run.Status), payload, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}

	return nil
}

func (s *PostgresStore) MarkNodeRunning(ctx context.Context, runID, nodeID string, startedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO node_results (run_id, node_id, status, started_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, node_id) DO NOTHING
	`, runID, nodeID, string(models.NodeStatusRunning), startedAt)
	if err != nil {
		return fmt.Errorf("failed to reserve node %s in run %s: %w", nodeID, runID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check reservation of node %s: %w", nodeID, err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: node %s in run %s", ErrNodeAlreadyStarted, nodeID, runID)
	}

	return nil
}

func (s *PostgresStore) RecordNodeResult(ctx context.Context, runID string, nodeResult *models.NodeResult) error {
	outputs, err := json.Marshal(nodeResult.Outputs)
	if err != nil {
		return fmt.Errorf("failed to marshal outputs for node %s: %w", nodeResult.NodeID, err)
	}

	// Upgrade a running slot, or insert directly for skipped nodes which
	// are never marked running. A slot already holding a terminal status
	// is left untouched.
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO node_results (run_id, node_id, status, outputs, error, skip_reason, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, node_id) DO UPDATE
		SET status = EXCLUDED.status,
		    outputs = EXCLUDED.outputs,
		    error = EXCLUDED.error,
		    skip_reason = EXCLUDED.skip_reason,
		    finished_at = EXCLUDED.finished_at
		WHERE node_results.status = $9
	`, runID, nodeResult.NodeID, string(nodeResult.Status), outputs, nodeResult.Error,
		nodeResult.SkipReason, nodeResult.StartedAt, nodeResult.FinishedAt,
		string(models.NodeStatusRunning))
	if err != nil {
		return fmt.Errorf("failed to record result for node %s: %w", nodeResult.NodeID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check result write for node %s: %w", nodeResult.NodeID, err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: node %s in run %s", ErrNodeResultRecorded, nodeResult.NodeID, runID)
	}

	return nil
}

func (s *PostgresStore) FinalizeRun(ctx context.Context, runID string, status models.RunStatus, finishedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = $1, finished_at = $2
		WHERE id = $3 AND status IN ($4, $5)
	`, string(status), finishedAt, runID,
		string(models.RunStatusPending), string(models.RunStatusRunning))
	if err != nil {
		return fmt.Errorf("failed to finalize run %s: %w", runID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check finalization of run %s: %w", runID, err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrRunFinalized, runID)
	}

	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, graph_id, status, trigger_payload, started_at, finished_at
		FROM runs
		WHERE id = $1
	`, runID)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}

		return nil, fmt.Errorf("failed to scan run %s: %w", runID, err)
	}

	err = s.loadNodeResults(ctx, run)
	if err != nil {
		return nil, err
	}

	return run, nil
}

func (s *PostgresStore) ListRunsByGraph(ctx context.Context, graphID string) ([]*models.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, graph_id, status, trigger_payload, started_at, finished_at
		FROM runs
		WHERE graph_id = $1
		ORDER BY started_at DESC, id DESC
	`, graphID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs for graph %s: %w", graphID, err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.Run, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		err = s.loadNodeResults(ctx, run)
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var (
		run        models.Run
		status     string
		payload    []byte
		finishedAt sql.NullTime
	)

	err := row.Scan(&run.ID, &run.GraphID, &status, &payload, &run.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	run.Status = models.RunStatus(status)
	run.NodeResults = make(map[string]*models.NodeResult)

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &run.TriggerPayload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger payload: %w", err)
		}
	}

	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}

	return &run, nil
}

func (s *PostgresStore) loadNodeResults(ctx context.Context, run *models.Run) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, status, outputs, error, skip_reason, started_at, finished_at
		FROM node_results
		WHERE run_id = $1
	`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to query node results for run %s: %w", run.ID, err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	for rows.Next() {
		var (
			result     models.NodeResult
			status     string
			outputs    []byte
			nodeError  sql.NullString
			skipReason sql.NullString
			finishedAt sql.NullTime
		)

		err := rows.Scan(&result.NodeID, &status, &outputs, &nodeError, &skipReason, &result.StartedAt, &finishedAt)
		if err != nil {
			return fmt.Errorf("failed to scan node result: %w", err)
		}

		result.Status = models.NodeStatus(status)
		result.Error = nodeError.String
		result.SkipReason = skipReason.String

		if len(outputs) > 0 {
			if err := json.Unmarshal(outputs, &result.Outputs); err != nil {
				return fmt.Errorf("failed to unmarshal outputs for node %s: %w", result.NodeID, err)
			}
		}

		if finishedAt.Valid {
			result.FinishedAt = &finishedAt.Time
		}

		run.NodeResults[result.NodeID] = &result
	}

	return rows.Err()
}
