// Package engine executes workflow graphs: it schedules nodes as their
// upstream dependencies finish, runs independent nodes concurrently and
// records every outcome through a runstore.Store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/artistscloud/a9ents-sub000/pkg/capabilities"
	"github.com/artistscloud/a9ents-sub000/pkg/eventbus"
	"github.com/artistscloud/a9ents-sub000/pkg/events"
	"github.com/artistscloud/a9ents-sub000/pkg/models"
	"github.com/artistscloud/a9ents-sub000/pkg/otelhelper"
	"github.com/artistscloud/a9ents-sub000/pkg/registry"
	"github.com/artistscloud/a9ents-sub000/pkg/runstore"
	"github.com/artistscloud/a9ents-sub000/pkg/validation"
)

var (
	// ErrGraphNotValid indicates a run was requested for a graph with
	// fatal validation issues.
	ErrGraphNotValid = errors.New("graph is not valid")
	// ErrRunNotActive indicates a cancel request for a run this engine is
	// not currently executing.
	ErrRunNotActive = errors.New("run is not active")
)

const defaultNodeTimeout = 30 * time.Second

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sets the event publisher for run lifecycle events.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

// WithTracer sets the tracer used for run and node spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithDefaultNodeTimeout overrides the per-node execution timeout applied
// when a node config carries no timeoutMs.
func WithDefaultNodeTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.nodeTimeout = timeout
		}
	}
}

// Engine runs workflow graphs against a node kind registry and a run store.
type Engine struct {
	logger      *slog.Logger
	registry    *registry.Registry
	store       runstore.Store
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	nodeTimeout time.Duration

	active *activeRuns
}

// New creates an engine. The registry and store are required; events and
// tracing are optional.
func New(logger *slog.Logger, reg *registry.Registry, store runstore.Store, opts ...Option) *Engine {
	e := &Engine{
		logger:      logger.With("module", "engine"),
		registry:    reg,
		store:       store,
		tracer:      noop.NewTracerProvider().Tracer("engine"),
		nodeTimeout: defaultNodeTimeout,
		active:      newActiveRuns(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// StartRun validates the graph, persists a new pending run and executes it
// asynchronously. The returned run reflects the state at creation time.
func (e *Engine) StartRun(ctx context.Context, g *models.Graph, payload map[string]any) (*models.Run, error) {
	run, snapshot, err := e.prepareRun(ctx, g, payload)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.active.add(run.ID, cancel)

	go func() {
		defer e.active.remove(run.ID)
		defer cancel()

		if _, err := e.execute(runCtx, snapshot, run, payload); err != nil {
			e.logger.Error("Run execution failed", "run_id", run.ID, "error", err)
		}
	}()

	return cloneRunShallow(run), nil
}

// Execute validates the graph and runs it to completion synchronously,
// returning the finished run.
func (e *Engine) Execute(ctx context.Context, g *models.Graph, payload map[string]any) (*models.Run, error) {
	run, snapshot, err := e.prepareRun(ctx, g, payload)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.active.add(run.ID, cancel)
	defer e.active.remove(run.ID)

	return e.execute(runCtx, snapshot, run, payload)
}

// Cancel requests cooperative cancellation of an active run. Nodes already
// running finish their current attempt; nothing new is scheduled.
func (e *Engine) Cancel(runID string) error {
	if !e.active.cancel(runID) {
		return fmt.Errorf("%w: %s", ErrRunNotActive, runID)
	}

	return nil
}

func (e *Engine) prepareRun(ctx context.Context, g *models.Graph, payload map[string]any) (*models.Run, *models.Graph, error) {
	report := validation.Validate(g, e.registry)
	if !report.OK {
		return nil, nil, fmt.Errorf("%w: %d fatal issues", ErrGraphNotValid, countFatal(report))
	}

	run := &models.Run{
		ID:             uuid.New().String(),
		GraphID:        g.ID,
		Status:         models.RunStatusPending,
		TriggerPayload: payload,
		NodeResults:    make(map[string]*models.NodeResult),
		StartedAt:      time.Now().UTC(),
	}

	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("failed to create run: %w", err)
	}

	return run, g.Clone(), nil
}

func (e *Engine) execute(ctx context.Context, g *models.Graph, run *models.Run, payload map[string]any) (*models.Run, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.run",
		attribute.String(otelhelper.GraphIDKey, g.ID),
		attribute.String(otelhelper.RunIDKey, run.ID),
	)
	defer span.End()

	e.logger.Info("Run started", "run_id", run.ID, "graph_id", g.ID, "nodes", len(g.Nodes))
	e.publish(ctx, run.ID, events.RunStarted{
		BaseEvent:      events.NewBaseEvent(events.RunStartedEvent, g.ID),
		RunID:          run.ID,
		TriggerPayload: payload,
	})

	exec := &execution{
		engine:  e,
		graph:   g,
		run:     run,
		payload: payload,
		results: make(map[string]*models.NodeResult, len(g.Nodes)),
	}

	status := exec.loop(ctx)

	finishedAt := time.Now().UTC()
	if err := e.store.FinalizeRun(context.WithoutCancel(ctx), run.ID, status, finishedAt); err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to finalize run %s: %w", run.ID, err)
	}

	run.Status = status
	run.FinishedAt = &finishedAt
	run.NodeResults = exec.results

	e.logger.Info("Run finished", "run_id", run.ID, "status", status, "duration", finishedAt.Sub(run.StartedAt))
	e.publish(ctx, run.ID, events.RunFinished{
		BaseEvent: events.NewBaseEvent(events.RunFinishedEvent, g.ID),
		RunID:     run.ID,
		Status:    status,
		Duration:  finishedAt.Sub(run.StartedAt),
	})

	span.SetAttributes(attribute.String("a9ents.run.status", string(status)))

	return run, nil
}

func (e *Engine) publish(ctx context.Context, key string, event events.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(context.WithoutCancel(ctx), key, event); err != nil {
		e.logger.Warn("Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

// execution is the per-run scheduling state. It is confined to the scheduler
// goroutine; worker goroutines communicate exclusively through the done
// channel.
type execution struct {
	engine  *Engine
	graph   *models.Graph
	run     *models.Run
	payload map[string]any
	results map[string]*models.NodeResult
}

// loop schedules nodes until every node is terminal, then derives the run
// status. A node becomes eligible once all of its upstream nodes are
// terminal, so a downstream node can never start before its dependency
// finished.
func (x *execution) loop(ctx context.Context) models.RunStatus {
	pending := make(map[string]*models.Node, len(x.graph.Nodes))
	for _, node := range x.graph.Nodes {
		pending[node.ID] = node
	}

	done := make(chan *models.NodeResult)
	running := 0

	for len(pending) > 0 || running > 0 {
		eligible := x.eligible(pending)

		// Nodes upstream of a branch back-edge can wait forever on a
		// dependency that never fires. Once nothing is running and
		// nothing is eligible, the remainder can only be skipped.
		if len(eligible) == 0 && running == 0 {
			for _, node := range sortedPending(pending) {
				delete(pending, node.ID)
				x.recordSkip(ctx, node, "dependency never completed")
			}

			continue
		}

		for _, node := range eligible {
			delete(pending, node.ID)

			if ctx.Err() != nil {
				x.recordSkip(ctx, node, "run cancelled")

				continue
			}

			result, skipReason, run := x.prepareNode(node)
			if !run {
				x.recordSkip(ctx, node, skipReason)

				continue
			}

			running++

			go func(node *models.Node, inputs map[string]any) {
				done <- x.engine.runNode(ctx, x.run.ID, node, inputs)
			}(node, result)
		}

		if running > 0 {
			result := <-done
			running--
			x.recordResult(ctx, result)
		}
	}

	switch {
	case ctx.Err() != nil:
		return models.RunStatusCancelled
	case x.anyFailed():
		return models.RunStatusFailed
	default:
		return models.RunStatusSucceeded
	}
}

// eligible returns pending nodes whose upstream nodes are all terminal,
// ID-ascending for deterministic scheduling order.
func (x *execution) eligible(pending map[string]*models.Node) []*models.Node {
	var nodes []*models.Node

	for _, node := range pending {
		ready := true

		for _, edge := range x.graph.InboundEdges(node.ID) {
			upstream, ok := x.results[edge.SourceNodeID]
			if !ok || !upstream.Status.Terminal() {
				ready = false

				break
			}
		}

		if ready {
			nodes = append(nodes, node)
		}
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	return nodes
}

// prepareNode collects the node's inputs from fired inbound edges and
// decides whether it runs or is skipped. Entry nodes without inbound edges
// receive the trigger payload.
func (x *execution) prepareNode(node *models.Node) (map[string]any, string, bool) {
	nodeType, err := x.engine.registry.Lookup(node.Kind)
	if err != nil {
		return nil, "unregistered kind " + node.Kind, false
	}

	inbound := x.graph.InboundEdges(node.ID)

	if len(inbound) == 0 {
		if !nodeType.Entry {
			return nil, "no incoming edge", false
		}

		// A nil payload wrapped in any would not compare equal to nil
		// inside the capability, so leave the key out entirely.
		inputs := map[string]any{}
		if x.payload != nil {
			inputs[registry.PortTrigger] = x.payload
		}

		return inputs, "", true
	}

	inputs := make(map[string]any, len(inbound))
	delivered := 0

	for _, edge := range inbound {
		value, ok := x.edgeValue(edge)
		if !ok {
			continue
		}

		inputs[edge.TargetPort] = value
		delivered++
	}

	if delivered == 0 {
		return nil, "no input delivered", false
	}

	if delivered < len(inbound) && !nodeType.Merge {
		return nil, "upstream input missing", false
	}

	return inputs, "", true
}

// edgeValue resolves the value an edge carries, if the edge fired: the
// source must have succeeded, emitted on the edge's source port, and for
// conditional edges the named branch port must be the one that fired.
func (x *execution) edgeValue(edge *models.Edge) (any, bool) {
	source, ok := x.results[edge.SourceNodeID]
	if !ok || source.Status != models.NodeStatusSucceeded {
		return nil, false
	}

	value, ok := source.Outputs[edge.SourcePort]
	if !ok {
		return nil, false
	}

	if edge.Condition != "" {
		if _, fired := source.Outputs[edge.Condition]; !fired {
			return nil, false
		}
	}

	return value, true
}

func (x *execution) recordSkip(ctx context.Context, node *models.Node, reason string) {
	now := time.Now().UTC()
	result := &models.NodeResult{
		NodeID:     node.ID,
		Status:     models.NodeStatusSkipped,
		SkipReason: reason,
		StartedAt:  now,
		FinishedAt: &now,
	}

	x.recordResult(ctx, result)
}

func (x *execution) recordResult(ctx context.Context, result *models.NodeResult) {
	x.results[result.NodeID] = result

	if err := x.engine.store.RecordNodeResult(context.WithoutCancel(ctx), x.run.ID, result); err != nil {
		x.engine.logger.Error("Failed to record node result",
			"run_id", x.run.ID, "node_id", result.NodeID, "error", err)
	}

	durationMs := int64(0)
	if result.FinishedAt != nil {
		durationMs = result.FinishedAt.Sub(result.StartedAt).Milliseconds()
	}

	x.engine.publish(ctx, x.run.ID, events.NodeFinished{
		BaseEvent:  events.NewBaseEvent(events.NodeFinishedEvent, x.graph.ID),
		RunID:      x.run.ID,
		NodeID:     result.NodeID,
		Status:     result.Status,
		Error:      result.Error,
		DurationMs: durationMs,
	})
}

func sortedPending(pending map[string]*models.Node) []*models.Node {
	nodes := make([]*models.Node, 0, len(pending))
	for _, node := range pending {
		nodes = append(nodes, node)
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	return nodes
}

func (x *execution) anyFailed() bool {
	for _, result := range x.results {
		if result.Status == models.NodeStatusFailed {
			return true
		}
	}

	return false
}

// runNode executes one node's capability with retry and timeout, returning
// its terminal result. The running reservation happens before the first
// attempt so a node can never execute twice within a run.
func (e *Engine) runNode(ctx context.Context, runID string, node *models.Node, inputs map[string]any) *models.NodeResult {
	startedAt := time.Now().UTC()
	result := &models.NodeResult{
		NodeID:    node.ID,
		Status:    models.NodeStatusFailed,
		StartedAt: startedAt,
	}

	finish := func() *models.NodeResult {
		finishedAt := time.Now().UTC()
		result.FinishedAt = &finishedAt

		return result
	}

	nodeCtx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.node",
		attribute.String(otelhelper.RunIDKey, runID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeKindKey, node.Kind),
	)
	defer span.End()

	capability, err := e.registry.CapabilityFor(node.Kind)
	if err != nil {
		result.Error = err.Error()
		otelhelper.SetError(span, err)

		return finish()
	}

	if err := e.store.MarkNodeRunning(context.WithoutCancel(nodeCtx), runID, node.ID, startedAt); err != nil {
		result.Error = fmt.Sprintf("failed to reserve node: %v", err)
		otelhelper.SetError(span, err)

		return finish()
	}

	maxRetries := configInt(node.Config, "maxRetries", 0)
	backoff := time.Duration(configInt(node.Config, "backoffMs", 0)) * time.Millisecond
	timeout := e.nodeTimeout

	if ms := configInt(node.Config, "timeoutMs", 0); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	var outputs map[string]any

	for attempt := 0; ; attempt++ {
		outputs, err = e.attempt(nodeCtx, capability, node, inputs, timeout)
		if err == nil {
			result.Status = models.NodeStatusSucceeded
			result.Outputs = outputs

			return finish()
		}

		if attempt >= maxRetries || nodeCtx.Err() != nil {
			break
		}

		delay := backoffDelay(attempt+1, backoff)
		e.logger.Warn("Node attempt failed, retrying",
			"run_id", runID, "node_id", node.ID, "attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-nodeCtx.Done():
		case <-time.After(delay):
		}
	}

	result.Error = err.Error()
	otelhelper.SetError(span, err)
	e.logger.Error("Node failed", "run_id", runID, "node_id", node.ID, "kind", node.Kind, "error", err)

	return finish()
}

func (e *Engine) attempt(ctx context.Context, capability registry.Capability, node *models.Node, inputs map[string]any, timeout time.Duration) (map[string]any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outputs, err := capability(attemptCtx, node, inputs)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, capabilities.Errorf(capabilities.ErrorKindTimeout,
				"node %s timed out after %s", node.ID, timeout)
		}

		return nil, err
	}

	return outputs, nil
}

func countFatal(report validation.Report) int {
	fatal := 0

	for _, issue := range report.Issues {
		if issue.Fatal {
			fatal++
		}
	}

	return fatal
}

func configInt(config map[string]any, key string, fallback int) int {
	if config == nil {
		return fallback
	}

	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func cloneRunShallow(run *models.Run) *models.Run {
	clone := *run
	clone.NodeResults = make(map[string]*models.NodeResult, len(run.NodeResults))

	for id, result := range run.NodeResults {
		r := *result
		clone.NodeResults[id] = &r
	}

	return &clone
}
