package models

import (
	"sync"
	"time"
)

// RunStatus is the overall state of a run. Running is the only
// non-terminal status.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSuccess   RunStatus = "success"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// LogLevel is the severity of a run log entry.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarn    LogLevel = "warn"
	LogLevelError   LogLevel = "error"
	LogLevelSuccess LogLevel = "success"
	LogLevelCommand LogLevel = "command"
)

// LogEntry is one append-only line of a run's log. Entries are never
// mutated after creation.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	StepID    string    `json:"step_id,omitempty"`
}

// Run is the live state of one workflow execution. The executor is the
// single writer; observers (the API) read concurrently, so the mutable
// fields are guarded.
type Run struct {
	ID            string     `json:"id"`
	WorkflowID    string     `json:"workflow_id"`
	Status        RunStatus  `json:"status"`
	Progress      int        `json:"progress"`
	CurrentStepID string     `json:"current_step_id,omitempty"`
	Log           []LogEntry `json:"log"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`

	mu sync.Mutex
}

// AppendLog records a log entry.
func (r *Run) AppendLog(level LogLevel, stepID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Log = append(r.Log, LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		StepID:    stepID,
	})
}

// SetProgress updates the run progress percentage and current step.
func (r *Run) SetProgress(progress int, currentStepID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Progress = progress
	r.CurrentStepID = currentStepID
}

// Finish moves the run to a terminal status. The first terminal status
// wins; a later Finish call is ignored so a cancel just before
// completion stays a cancel.
func (r *Run) Finish(status RunStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Status != RunStatusRunning {
		return false
	}

	now := time.Now().UTC()
	r.Status = status
	r.FinishedAt = &now

	if status == RunStatusSuccess {
		r.Progress = 100
	}

	return true
}

// CurrentStatus returns the run status under the lock.
func (r *Run) CurrentStatus() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.Status
}

// Entries returns a copy of the log for observers.
func (r *Run) Entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]LogEntry, len(r.Log))
	copy(out, r.Log)

	return out
}

// RunView is a point-in-time copy of a run for observers.
type RunView struct {
	ID            string     `json:"id"`
	WorkflowID    string     `json:"workflow_id"`
	Status        RunStatus  `json:"status"`
	Progress      int        `json:"progress"`
	CurrentStepID string     `json:"current_step_id,omitempty"`
	Log           []LogEntry `json:"log"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// View returns a consistent copy for concurrent readers.
func (r *Run) View() RunView {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := make([]LogEntry, len(r.Log))
	copy(log, r.Log)

	return RunView{
		ID:            r.ID,
		WorkflowID:    r.WorkflowID,
		Status:        r.Status,
		Progress:      r.Progress,
		CurrentStepID: r.CurrentStepID,
		Log:           log,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
}

// RunRecord is the durable summary appended to history when a run
// reaches a terminal status.
type RunRecord struct {
	ID         string     `json:"id"`
	WorkflowID string     `json:"workflow_id"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	Log        []LogEntry `json:"log"`
}
