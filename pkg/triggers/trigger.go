// Package triggers starts workflow runs from external stimuli: cron
// schedules and Kafka messages. Webhook triggers are served by the web API
// and manual triggers by the runs endpoint, so neither appears here.
package triggers

import "context"

// Callback starts a run for the trigger's graph with the given payload.
type Callback func(ctx context.Context, payload map[string]any) error

// Trigger is a long-lived source of run starts bound to one graph node.
type Trigger interface {
	Start(ctx context.Context, callback Callback) error
	Stop(ctx context.Context) error
}
