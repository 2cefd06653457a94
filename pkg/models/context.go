package models

import "log/slog"

// StepOutput is the typed result a step leaves behind for later steps
// in the same run, keyed by step id. This replaces steps reading each
// other's configuration maps: outputs have first-class identity.
type StepOutput struct {
	StepID     string         `json:"step_id"`
	Type       StepType       `json:"type"`
	WorkDir    string         `json:"work_dir,omitempty"`
	Artifacts  []string       `json:"artifacts,omitempty"`
	ReleaseURL string         `json:"release_url,omitempty"`
	Link       string         `json:"link,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// RunContext carries the shared state of one run through the step
// handlers. Steps execute sequentially, so no locking is needed beyond
// what Run itself provides for observers.
type RunContext struct {
	Run      *Run
	Workflow *Workflow
	Repo     *Repository
	Version  string
	WorkDir  string
	Outputs  map[string]*StepOutput
	Logger   *slog.Logger
}

// NewRunContext builds a context for a run rooted at workDir (the
// bound repository path, until a clone step overrides it).
func NewRunContext(run *Run, workflow *Workflow, repo *Repository, workDir string, logger *slog.Logger) *RunContext {
	return &RunContext{
		Run:      run,
		Workflow: workflow,
		Repo:     repo,
		Version:  workflow.NextVersion,
		WorkDir:  workDir,
		Outputs:  make(map[string]*StepOutput),
		Logger:   logger,
	}
}

// AppendLog records a run log entry and mirrors it to the structured
// logger.
func (rc *RunContext) AppendLog(level LogLevel, stepID, message string) {
	rc.Run.AppendLog(level, stepID, message)

	switch level {
	case LogLevelError:
		rc.Logger.Error(message, "step_id", stepID)
	case LogLevelWarn:
		rc.Logger.Warn(message, "step_id", stepID)
	default:
		rc.Logger.Info(message, "step_id", stepID)
	}
}

// SetOutput stores a step's output.
func (rc *RunContext) SetOutput(out *StepOutput) {
	rc.Outputs[out.StepID] = out

	// A clone step moves the working tree for the rest of the run.
	if out.Type == StepClone && out.WorkDir != "" {
		rc.WorkDir = out.WorkDir
	}
}

// Output returns a prior step's output by id.
func (rc *RunContext) Output(stepID string) (*StepOutput, bool) {
	out, ok := rc.Outputs[stepID]

	return out, ok
}

// LastOutputOfType returns the most recently stored output of the
// given step type. Used by create-release to find a build step's
// artifacts without re-running discovery.
func (rc *RunContext) LastOutputOfType(t StepType) *StepOutput {
	// Outputs are keyed by id; walk the workflow order so "last"
	// is deterministic.
	var found *StepOutput

	for _, node := range rc.Workflow.Nodes {
		if node.Type != t {
			continue
		}

		if out, ok := rc.Outputs[node.ID]; ok {
			found = out
		}
	}

	return found
}
