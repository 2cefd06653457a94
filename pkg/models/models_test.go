package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowValidate_OK(t *testing.T) {
	wf := &Workflow{
		ID:   "wf-1",
		Name: "release pipeline",
		Nodes: []*WorkflowNode{
			{ID: "a", Type: StepClone, Name: "clone", Enabled: true},
			{ID: "b", Type: StepBuild, Name: "build", Enabled: true},
		},
		Connections: []*Connection{
			{ID: "c1", SourceID: "a", TargetID: "b"},
		},
	}

	require.NoError(t, wf.Validate())
}

func TestWorkflowValidate_DuplicateConnection(t *testing.T) {
	wf := &Workflow{
		Nodes: []*WorkflowNode{
			{ID: "a", Type: StepClone, Name: "clone"},
			{ID: "b", Type: StepBuild, Name: "build"},
		},
		Connections: []*Connection{
			{ID: "c1", SourceID: "a", TargetID: "b"},
			{ID: "c2", SourceID: "a", TargetID: "b"},
		},
	}

	err := wf.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateConnection)
}

func TestWorkflowValidate_DanglingConnection(t *testing.T) {
	wf := &Workflow{
		Nodes: []*WorkflowNode{
			{ID: "a", Type: StepClone, Name: "clone"},
		},
		Connections: []*Connection{
			{ID: "c1", SourceID: "a", TargetID: "ghost"},
		},
	}

	assert.ErrorIs(t, wf.Validate(), ErrDanglingConnection)
}

func TestWorkflowValidate_UnknownStepType(t *testing.T) {
	wf := &Workflow{
		Nodes: []*WorkflowNode{
			{ID: "a", Type: "teleport", Name: "nope"},
		},
	}

	assert.ErrorIs(t, wf.Validate(), ErrUnknownStepType)
}

func TestRunFinish_FirstTerminalStatusWins(t *testing.T) {
	run := &Run{ID: "run-1", Status: RunStatusRunning}

	require.True(t, run.Finish(RunStatusCancelled))
	assert.False(t, run.Finish(RunStatusSuccess))
	assert.Equal(t, RunStatusCancelled, run.CurrentStatus())
	require.NotNil(t, run.FinishedAt)
}

func TestRunAppendLog_IsAppendOnly(t *testing.T) {
	run := &Run{ID: "run-1", Status: RunStatusRunning}

	run.AppendLog(LogLevelInfo, "a", "first")
	run.AppendLog(LogLevelError, "b", "second")

	entries := run.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, LogLevelError, entries[1].Level)
	assert.Equal(t, "b", entries[1].StepID)
}

func TestParseTriggerConfig_Daily(t *testing.T) {
	tc, err := ParseTriggerConfig(map[string]any{
		"mode": "daily",
		"time": "09:00",
	})
	require.NoError(t, err)
	assert.Equal(t, TriggerModeDaily, tc.Mode)
	assert.True(t, tc.Enabled)

	at := func(hour, minute int) time.Time {
		return time.Date(2026, 3, 4, hour, minute, 30, 0, time.UTC)
	}

	assert.True(t, tc.MatchesMinute(at(9, 0)))
	assert.False(t, tc.MatchesMinute(at(8, 59)))
	assert.False(t, tc.MatchesMinute(at(9, 1)))
}

func TestParseTriggerConfig_Weekly(t *testing.T) {
	tc, err := ParseTriggerConfig(map[string]any{
		"mode":    "weekly",
		"time":    "18:30",
		"weekday": "friday",
	})
	require.NoError(t, err)

	friday := time.Date(2026, 3, 6, 18, 30, 0, 0, time.UTC)
	require.Equal(t, time.Friday, friday.Weekday())

	assert.True(t, tc.MatchesMinute(friday))
	assert.False(t, tc.MatchesMinute(friday.Add(24*time.Hour)))
}

func TestParseTriggerConfig_Invalid(t *testing.T) {
	cases := []map[string]any{
		{},
		{"mode": "daily", "time": "25:00"},
		{"mode": "daily", "time": "nine"},
		{"mode": "interval", "interval_hours": 0},
		{"mode": "cron", "cron": "not a cron"},
		{"mode": "lunar"},
	}

	for _, config := range cases {
		_, err := ParseTriggerConfig(config)
		assert.Truef(t, errors.Is(err, ErrTimerMisconfigured), "config %v: got %v", config, err)
	}
}

func TestParseTriggerConfig_IntervalFromJSONNumber(t *testing.T) {
	tc, err := ParseTriggerConfig(map[string]any{
		"mode":           "interval",
		"interval_hours": float64(6),
		"enabled":        false,
	})
	require.NoError(t, err)
	assert.Equal(t, 6, tc.IntervalHours)
	assert.False(t, tc.Enabled)
}

func TestRunContext_OutputsAndWorkDir(t *testing.T) {
	wf := &Workflow{
		ID: "wf-1",
		Nodes: []*WorkflowNode{
			{ID: "c", Type: StepClone, Name: "clone"},
			{ID: "b1", Type: StepBuild, Name: "build linux"},
			{ID: "b2", Type: StepBuild, Name: "build darwin"},
		},
	}
	run := &Run{ID: "run-1", WorkflowID: "wf-1", Status: RunStatusRunning}
	rc := NewRunContext(run, wf, nil, "/repo", testLogger())

	assert.Equal(t, "/repo", rc.WorkDir)

	rc.SetOutput(&StepOutput{StepID: "c", Type: StepClone, WorkDir: "/tmp/clone-1"})
	assert.Equal(t, "/tmp/clone-1", rc.WorkDir)

	rc.SetOutput(&StepOutput{StepID: "b1", Type: StepBuild, Artifacts: []string{"dist/a"}})
	rc.SetOutput(&StepOutput{StepID: "b2", Type: StepBuild, Artifacts: []string{"dist/b"}})

	last := rc.LastOutputOfType(StepBuild)
	require.NotNil(t, last)
	assert.Equal(t, "b2", last.StepID)
}
