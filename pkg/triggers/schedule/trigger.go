// Package schedule implements the cron-based trigger.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/artistscloud/a9ents-sub000/pkg/triggers"
)

type ScheduleTrigger struct {
	ID       string
	CronExpr string
	GraphID  string
	cron     *cron.Cron
	callback triggers.Callback
	logger   *slog.Logger
}

// NewScheduleTrigger creates a schedule trigger from a trigger node's config.
func NewScheduleTrigger(id, graphID string, config map[string]any, logger *slog.Logger) (*ScheduleTrigger, error) {
	cronExpr, _ := config["cron"].(string)

	trigger := &ScheduleTrigger{
		ID:       id,
		CronExpr: cronExpr,
		GraphID:  graphID,
		logger: logger.With(
			"module", "schedule_trigger",
			"id", id,
			"cron", cronExpr,
			"graph_id", graphID,
		),
	}

	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	return trigger, nil
}

func (t *ScheduleTrigger) Validate() error {
	if t.ID == "" {
		return errors.New("schedule trigger ID is required")
	}

	if t.CronExpr == "" {
		return errors.New("schedule trigger cron expression is required")
	}

	if _, err := cron.ParseStandard(t.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

func (t *ScheduleTrigger) Start(_ context.Context, callback triggers.Callback) error {
	t.logger.Info("Starting schedule trigger")
	t.callback = callback

	t.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := t.cron.AddFunc(t.CronExpr, t.run)
	if err != nil {
		return fmt.Errorf("failed to add cron job for trigger %s: %w", t.ID, err)
	}

	t.cron.Start()

	return nil
}

func (t *ScheduleTrigger) run() {
	t.logger.Info("Cron job triggered")

	payload := map[string]any{
		"trigger":   "schedule",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	go func() {
		if err := t.callback(context.Background(), payload); err != nil {
			t.logger.Error("Error starting run for schedule trigger", "error", err)
		}
	}()
}

func (t *ScheduleTrigger) Stop(_ context.Context) error {
	t.logger.Info("Stopping schedule trigger", "id", t.ID)

	if t.cron != nil {
		t.cron.Stop()
	}

	return nil
}
