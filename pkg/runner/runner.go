// Package runner drives one workflow run: topological order from the
// graph, sequential step execution through the registry, progress and
// log accounting on the shared run object, events at run and step
// boundaries.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/buildforge/buildforge/pkg/dag"
	"github.com/buildforge/buildforge/pkg/eventbus"
	"github.com/buildforge/buildforge/pkg/events"
	"github.com/buildforge/buildforge/pkg/models"
	"github.com/buildforge/buildforge/pkg/otelhelper"
	"github.com/buildforge/buildforge/pkg/persistence"
	"github.com/buildforge/buildforge/pkg/protocol"
	"github.com/buildforge/buildforge/pkg/registry"
)

// ErrRunInProgress indicates a start request arrived while another run
// was active. One run per process; concurrent requests are dropped.
var ErrRunInProgress = errors.New("a run is already in progress")

// Runner owns the single current run. Start launches the drive
// goroutine; observers read the run through Current.
type Runner struct {
	registry    *registry.Registry
	deps        protocol.Dependencies
	persistence persistence.Persistence
	bus         eventbus.EventBus
	tracer      trace.Tracer
	logger      *slog.Logger

	mu      sync.Mutex
	current *models.Run
}

// Option adjusts the runner.
type Option func(*Runner)

// WithTracer attaches a tracer for run and step spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) { r.tracer = tracer }
}

// WithEventBus attaches an event bus for lifecycle events.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(r *Runner) { r.bus = bus }
}

func NewRunner(reg *registry.Registry, deps protocol.Dependencies, store persistence.Persistence, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		registry:    reg,
		deps:        deps,
		persistence: store,
		tracer:      noop.NewTracerProvider().Tracer("runner"),
		logger:      logger.With("module", "runner"),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Current returns the live run, which may already be terminal. Nil
// before the first start.
func (r *Runner) Current() *models.Run {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.current
}

// Cancel flips the current run to cancelled. In-flight external
// commands are not killed; the driver stops before the next step.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return false
	}

	if !r.current.Finish(models.RunStatusCancelled) {
		return false
	}

	r.current.AppendLog(models.LogLevelWarn, "", "Run cancelled")

	return true
}

// Start begins executing the workflow asynchronously and returns the
// new run. A run already in progress rejects the request.
func (r *Runner) Start(ctx context.Context, workflow *models.Workflow, repo *models.Repository, triggerData map[string]any) (*models.Run, error) {
	if err := workflow.Validate(); err != nil {
		return nil, fmt.Errorf("workflow %s invalid: %w", workflow.ID, err)
	}

	ordered, err := dag.Order(workflow)
	if err != nil {
		return nil, err
	}

	run := &models.Run{
		ID:         uuid.NewString(),
		WorkflowID: workflow.ID,
		Status:     models.RunStatusRunning,
		StartedAt:  time.Now(),
	}

	r.mu.Lock()

	if r.current != nil && r.current.CurrentStatus() == models.RunStatusRunning {
		active := r.current.ID
		r.mu.Unlock()
		r.publishTriggerDropped(ctx, workflow.ID, active, triggerData)

		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, active)
	}

	// Starting a new run discards the previous run's transient state.
	r.current = run

	r.mu.Unlock()

	// The run outlives the caller's context. Cancellation is observed
	// through the run's status between steps, so in-flight commands
	// finish rather than being killed.
	runCtx, release := context.WithCancel(context.WithoutCancel(ctx))

	go func() {
		defer release()
		r.drive(runCtx, run, workflow, repo, ordered, triggerData)
	}()

	return run, nil
}

func (r *Runner) drive(ctx context.Context, run *models.Run, workflow *models.Workflow, repo *models.Repository, ordered []*models.WorkflowNode, triggerData map[string]any) {
	logger := r.logger.With("workflow_id", workflow.ID, "run_id", run.ID)

	workDir := ""
	if repo != nil {
		workDir = repo.Path
	}

	rc := models.NewRunContext(run, workflow, repo, workDir, logger)

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "workflow.run",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.String(otelhelper.RunIDKey, run.ID),
	)
	defer span.End()

	r.publishRunStarted(ctx, run, workflow, len(ordered), triggerData)
	rc.AppendLog(models.LogLevelInfo, "", "Run started for workflow "+workflow.Name)

	executable := 0

	for _, node := range ordered {
		if node.Enabled {
			executable++
		}
	}

	completed := 0

	for _, node := range ordered {
		if run.CurrentStatus() != models.RunStatusRunning {
			r.finish(ctx, span, run, workflow, nil, "")

			return
		}

		if !node.Enabled {
			rc.AppendLog(models.LogLevelInfo, node.ID, "Step disabled, skipping")

			continue
		}

		if executable > 0 {
			run.SetProgress(completed*100/executable, node.ID)
		}

		if err := r.executeStep(ctx, rc, node, completed); err != nil {
			rc.AppendLog(models.LogLevelError, node.ID, "Step failed: "+err.Error())
			r.finish(ctx, span, run, workflow, err, node.ID)

			return
		}

		completed++

		if executable > 0 {
			run.SetProgress(completed*100/executable, node.ID)
		}
	}

	r.finish(ctx, span, run, workflow, nil, "")
}

func (r *Runner) executeStep(ctx context.Context, rc *models.RunContext, node *models.WorkflowNode, position int) error {
	run := rc.Run

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "workflow.step",
		attribute.String(otelhelper.StepIDKey, node.ID),
		attribute.String(otelhelper.StepTypeKey, string(node.Type)),
		attribute.String(otelhelper.RunIDKey, run.ID),
	)
	defer span.End()

	r.publishStepStarted(ctx, rc, node, position)
	started := time.Now()

	handler, err := r.registry.CreateHandler(node.Type, r.deps)
	if err != nil {
		otelhelper.SetError(span, err)
		r.publishStepFailed(ctx, rc, node, err)

		return err
	}

	output, err := handler.Execute(ctx, rc, node)
	if err != nil {
		otelhelper.SetError(span, err)
		r.publishStepFailed(ctx, rc, node, err)

		return err
	}

	if output != nil {
		rc.SetOutput(output)
	}

	r.publishStepFinished(ctx, rc, node, time.Since(started))

	return nil
}

// finish settles the run's terminal status and records it to history.
// A cancellation that already flipped the status wins over a later
// outcome.
func (r *Runner) finish(ctx context.Context, span trace.Span, run *models.Run, workflow *models.Workflow, stepErr error, failedStepID string) {
	switch {
	case stepErr != nil:
		if run.Finish(models.RunStatusFailed) {
			run.AppendLog(models.LogLevelError, failedStepID, "Run failed: "+stepErr.Error())
		}

		otelhelper.SetError(span, stepErr)
	default:
		if run.Finish(models.RunStatusSuccess) {
			run.AppendLog(models.LogLevelSuccess, "", "Run finished")
		}
	}

	r.publishRunFinished(ctx, run, workflow, stepErr, failedStepID)
	r.record(ctx, run)
}

func (r *Runner) record(ctx context.Context, run *models.Run) {
	if r.persistence == nil {
		return
	}

	duration := int64(0)
	if run.FinishedAt != nil {
		duration = run.FinishedAt.Sub(run.StartedAt).Milliseconds()
	}

	record := &models.RunRecord{
		ID:         run.ID,
		WorkflowID: run.WorkflowID,
		Status:     run.CurrentStatus(),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		DurationMS: duration,
		Log:        run.Entries(),
	}

	if err := r.persistence.SaveRunRecord(ctx, record); err != nil {
		r.logger.Error("Failed to record run history", "run_id", run.ID, "error", err)
	}
}

func (r *Runner) publish(ctx context.Context, key string, event eventbus.Event) {
	if r.bus == nil {
		return
	}

	if err := r.bus.Publish(ctx, key, event); err != nil {
		r.logger.Error("Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func (r *Runner) base(eventType events.EventType, workflowID, runID string) events.BaseEvent {
	id := uuid.NewString()
	if r.bus != nil {
		id = r.bus.GenerateID()
	}

	return events.BaseEvent{
		ID:         id,
		Type:       eventType,
		Timestamp:  time.Now(),
		WorkflowID: workflowID,
		RunID:      runID,
	}
}

func (r *Runner) publishRunStarted(ctx context.Context, run *models.Run, workflow *models.Workflow, stepCount int, triggerData map[string]any) {
	event := events.RunStarted{
		BaseEvent: r.base(events.RunStartedEvent, workflow.ID, run.ID),
		StepCount: stepCount,
	}

	if stepID, ok := triggerData["trigger_step_id"].(string); ok {
		event.TriggerStepID = stepID
	}

	r.publish(ctx, workflow.ID, event)
}

func (r *Runner) publishRunFinished(ctx context.Context, run *models.Run, workflow *models.Workflow, stepErr error, failedStepID string) {
	duration := time.Duration(0)
	if run.FinishedAt != nil {
		duration = run.FinishedAt.Sub(run.StartedAt)
	}

	switch run.CurrentStatus() {
	case models.RunStatusCancelled:
		r.publish(ctx, workflow.ID, events.RunCancelled{
			BaseEvent: r.base(events.RunCancelledEvent, workflow.ID, run.ID),
			Duration:  duration,
		})
	case models.RunStatusFailed:
		message := "run failed"
		if stepErr != nil {
			message = stepErr.Error()
		}

		r.publish(ctx, workflow.ID, events.RunFailed{
			BaseEvent:    r.base(events.RunFailedEvent, workflow.ID, run.ID),
			FailedStepID: failedStepID,
			Error:        message,
			Duration:     duration,
		})
	default:
		r.publish(ctx, workflow.ID, events.RunFinished{
			BaseEvent: r.base(events.RunFinishedEvent, workflow.ID, run.ID),
			Duration:  duration,
		})
	}
}

func (r *Runner) publishStepStarted(ctx context.Context, rc *models.RunContext, node *models.WorkflowNode, position int) {
	r.publish(ctx, rc.Workflow.ID, events.StepStarted{
		BaseEvent: r.base(events.StepStartedEvent, rc.Workflow.ID, rc.Run.ID),
		StepID:    node.ID,
		StepType:  string(node.Type),
		Position:  position,
	})
}

func (r *Runner) publishStepFinished(ctx context.Context, rc *models.RunContext, node *models.WorkflowNode, duration time.Duration) {
	r.publish(ctx, rc.Workflow.ID, events.StepFinished{
		BaseEvent:  r.base(events.StepFinishedEvent, rc.Workflow.ID, rc.Run.ID),
		StepID:     node.ID,
		StepType:   string(node.Type),
		DurationMs: duration.Milliseconds(),
		Duration:   duration,
	})
}

func (r *Runner) publishStepFailed(ctx context.Context, rc *models.RunContext, node *models.WorkflowNode, err error) {
	r.publish(ctx, rc.Workflow.ID, events.StepFailed{
		BaseEvent: r.base(events.StepFailedEvent, rc.Workflow.ID, rc.Run.ID),
		StepID:    node.ID,
		StepType:  string(node.Type),
		Error:     err.Error(),
	})
}

func (r *Runner) publishTriggerDropped(ctx context.Context, workflowID, activeRunID string, triggerData map[string]any) {
	r.logger.Warn("Trigger fired during an active run, dropping",
		"workflow_id", workflowID, "active_run_id", activeRunID)

	event := events.TriggerDropped{
		BaseEvent:   r.base(events.TriggerDroppedEvent, workflowID, ""),
		ActiveRunID: activeRunID,
		DropReason:  "run in progress",
	}

	if stepID, ok := triggerData["trigger_step_id"].(string); ok {
		event.StepID = stepID
	}

	r.publish(ctx, workflowID, event)
}
