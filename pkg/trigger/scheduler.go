// Package trigger runs the recurring trigger scheduler and the queue
// run source. Schedules are keyed by (workflow, trigger step); a fired
// schedule invokes the registered callback, which is expected to start
// a run.
package trigger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/buildforge/buildforge/pkg/models"
	"github.com/buildforge/buildforge/pkg/protocol"
)

type scheduleKey struct {
	workflowID string
	nodeID     string
}

type schedule struct {
	config *models.TriggerConfig
	cancel context.CancelFunc

	// lastMinute dedupes the minute poll so a matching minute fires
	// exactly once.
	lastMinute time.Time

	// nextDue is the precomputed firing time for interval and cron
	// modes.
	nextDue time.Time
	cronSch cron.Schedule
}

// Scheduler maintains one live schedule per enabled trigger node. It
// is single-instance per process by wiring, not enforcement.
type Scheduler struct {
	callback     protocol.TriggerCallback
	logger       *slog.Logger
	now          func() time.Time
	pollInterval time.Duration

	mu        sync.Mutex
	schedules map[scheduleKey]*schedule
}

// Option adjusts the scheduler.
type Option func(*Scheduler)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithPollInterval overrides the minute poll period.
func WithPollInterval(interval time.Duration) Option {
	return func(s *Scheduler) { s.pollInterval = interval }
}

func NewScheduler(callback protocol.TriggerCallback, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		callback:     callback,
		logger:       logger.With("module", "trigger"),
		now:          time.Now,
		pollInterval: time.Minute,
		schedules:    make(map[scheduleKey]*schedule),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// AddSchedule installs a schedule for the trigger node, replacing any
// existing schedule for the same key. A disabled config removes the
// schedule instead.
func (s *Scheduler) AddSchedule(ctx context.Context, workflowID, nodeID string, config *models.TriggerConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	key := scheduleKey{workflowID: workflowID, nodeID: nodeID}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(key)

	if !config.Enabled {
		s.logger.Info("Trigger disabled, schedule removed", "workflow_id", workflowID, "node_id", nodeID)

		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sch := &schedule{config: config, cancel: cancel}

	now := s.now()

	switch config.Mode {
	case models.TriggerModeInterval:
		sch.nextDue = now.Add(time.Duration(config.IntervalHours) * time.Hour)
	case models.TriggerModeCron:
		parsed, err := cron.ParseStandard(config.CronExpr)
		if err != nil {
			cancel()

			return err
		}

		sch.cronSch = parsed
		sch.nextDue = parsed.Next(now)
	}

	s.schedules[key] = sch

	go s.loop(runCtx, key, sch)

	s.logger.Info("Trigger schedule installed",
		"workflow_id", workflowID, "node_id", nodeID, "mode", config.Mode)

	return nil
}

// SyncWorkflow reconciles schedules with the workflow's trigger nodes:
// enabled triggers with valid configs get schedules, everything else
// is removed.
func (s *Scheduler) SyncWorkflow(ctx context.Context, workflow *models.Workflow) {
	seen := make(map[string]bool)

	for _, node := range workflow.Nodes {
		if !node.IsTrigger() {
			continue
		}

		seen[node.ID] = true

		if !node.Enabled {
			s.RemoveSchedule(workflow.ID, node.ID)

			continue
		}

		config, err := models.ParseTriggerConfig(node.Config)
		if err != nil {
			s.logger.Warn("Ignoring misconfigured trigger",
				"workflow_id", workflow.ID, "node_id", node.ID, "error", err)
			s.RemoveSchedule(workflow.ID, node.ID)

			continue
		}

		if err := s.AddSchedule(ctx, workflow.ID, node.ID, config); err != nil {
			s.logger.Warn("Failed to install trigger schedule",
				"workflow_id", workflow.ID, "node_id", node.ID, "error", err)
		}
	}

	// Trigger nodes deleted from the workflow lose their schedules.
	s.mu.Lock()

	var stale []scheduleKey

	for key := range s.schedules {
		if key.workflowID == workflow.ID && !seen[key.nodeID] {
			stale = append(stale, key)
		}
	}

	for _, key := range stale {
		s.removeLocked(key)
	}

	s.mu.Unlock()
}

// RemoveSchedule cancels the schedule for the trigger node.
func (s *Scheduler) RemoveSchedule(workflowID, nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(scheduleKey{workflowID: workflowID, nodeID: nodeID})
}

// ClearAll cancels every schedule; used at shutdown.
func (s *Scheduler) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.schedules {
		s.removeLocked(key)
	}
}

// Count returns the number of live schedules.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.schedules)
}

func (s *Scheduler) removeLocked(key scheduleKey) {
	if existing, ok := s.schedules[key]; ok {
		existing.cancel()
		delete(s.schedules, key)
	}
}

func (s *Scheduler) loop(ctx context.Context, key scheduleKey, sch *schedule) {
	interval := s.pollInterval
	if sch.config.Mode == models.TriggerModeInterval {
		interval = time.Duration(sch.config.IntervalHours) * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx, key, sch)
		}
	}
}

// poll decides whether the schedule is due at the current time and
// fires the callback if so. Minute modes compare wall clock exactly,
// so a missed minute is not backfilled.
func (s *Scheduler) poll(ctx context.Context, key scheduleKey, sch *schedule) {
	now := s.now()

	switch sch.config.Mode {
	case models.TriggerModeInterval:
		s.fire(ctx, key, sch, now)
	case models.TriggerModeDaily, models.TriggerModeWeekly, models.TriggerModeDayAndTime:
		if !sch.config.MatchesMinute(now) {
			return
		}

		minute := now.Truncate(time.Minute)
		if minute.Equal(sch.lastMinute) {
			return
		}

		sch.lastMinute = minute
		s.fire(ctx, key, sch, now)
	case models.TriggerModeCron:
		if now.Before(sch.nextDue) {
			return
		}

		sch.nextDue = sch.cronSch.Next(now)
		s.fire(ctx, key, sch, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, key scheduleKey, sch *schedule, now time.Time) {
	s.logger.Info("Trigger fired",
		"workflow_id", key.workflowID, "node_id", key.nodeID, "mode", sch.config.Mode)

	data := map[string]any{
		"trigger_step_id": key.nodeID,
		"mode":            string(sch.config.Mode),
		"fired_at":        now.UTC().Format(time.RFC3339),
	}

	if err := s.callback(ctx, key.workflowID, data); err != nil {
		s.logger.Warn("Trigger callback rejected the run request",
			"workflow_id", key.workflowID, "node_id", key.nodeID, "error", err)
	}
}
