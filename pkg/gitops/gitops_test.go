package gitops

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildforge/buildforge/pkg/execx"
)

// fakeRunner scripts git responses and records every invocation.
type fakeRunner struct {
	calls   []string
	handler func(call string) (string, error)
}

func (f *fakeRunner) Run(_ context.Context, cmd execx.Command) (string, error) {
	call := cmd.Name + " " + strings.Join(cmd.Args, " ")
	f.calls = append(f.calls, call)

	if f.handler == nil {
		return "", nil
	}

	return f.handler(call)
}

func gitError(stderr string) error {
	return &execx.ExecError{Name: "git", ExitCode: 1, Stderr: stderr}
}

func newTestClient(f *fakeRunner) *Client {
	return NewClient(f, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		stderr string
		want   error
	}{
		{"! [rejected] main -> main (non-fast-forward)", ErrPushRejected},
		{"error: failed to push some refs; fetch first", ErrPushRejected},
		{"CONFLICT (content): Merge conflict in main.go", ErrMergeConflict},
		{"error: could not apply deadbeef", ErrMergeConflict},
		{"nothing to commit, working tree clean", ErrNothingToCommit},
		{"*** Please tell me who you are.", ErrIdentityNotConfigured},
		{"fatal: tag 'v1.0.0' already exists", ErrTagExists},
	}

	for _, tc := range cases {
		assert.ErrorIs(t, classify(gitError(tc.stderr)), tc.want, tc.stderr)
	}
}

func TestClassify_UnknownPassesThrough(t *testing.T) {
	err := classify(gitError("fatal: repository not found"))

	var execErr *execx.ExecError
	assert.True(t, errors.As(err, &execErr))
}

func TestPushWithRebaseRetry_RecoversOnce(t *testing.T) {
	pushes := 0
	runner := &fakeRunner{handler: func(call string) (string, error) {
		if strings.HasPrefix(call, "git push") {
			pushes++
			if pushes == 1 {
				return "", gitError("! [rejected] main -> main (non-fast-forward)")
			}

			return "", nil
		}

		return "", nil
	}}

	err := newTestClient(runner).PushWithRebaseRetry(context.Background(), "/repo", "main")
	require.NoError(t, err)

	// Exactly one rebase pull between the two pushes.
	assert.Equal(t, []string{
		"git push origin main",
		"git pull --rebase origin main",
		"git push origin main",
	}, runner.calls)
}

func TestPushWithRebaseRetry_ReportsRetryError(t *testing.T) {
	runner := &fakeRunner{handler: func(call string) (string, error) {
		if strings.HasPrefix(call, "git push") {
			return "", gitError("! [rejected] main -> main (non-fast-forward)")
		}

		return "", nil
	}}

	err := newTestClient(runner).PushWithRebaseRetry(context.Background(), "/repo", "main")
	require.Error(t, err)
	// The failure of the retried push, not the original rejection.
	assert.ErrorIs(t, err, ErrPushRejected)
	assert.Len(t, runner.calls, 3)
}

func TestPushWithRebaseRetry_OtherErrorsNotRetried(t *testing.T) {
	runner := &fakeRunner{handler: func(call string) (string, error) {
		return "", gitError("fatal: unable to access remote")
	}}

	err := newTestClient(runner).PushWithRebaseRetry(context.Background(), "/repo", "main")
	require.Error(t, err)
	assert.Len(t, runner.calls, 1)
}

func TestSyncAndPush_ForceWithLeaseFallback(t *testing.T) {
	runner := &fakeRunner{handler: func(call string) (string, error) {
		if call == "git push origin main" {
			return "", gitError("! [rejected] main -> main (non-fast-forward)")
		}

		return "", nil
	}}

	err := newTestClient(runner).SyncAndPush(context.Background(), "/repo", "main")
	require.NoError(t, err)
	assert.Contains(t, runner.calls, "git push --force-with-lease origin main")
}

func TestSyncAndPush_ConflictAbortsAndSurfaces(t *testing.T) {
	runner := &fakeRunner{handler: func(call string) (string, error) {
		if strings.HasPrefix(call, "git pull --rebase") {
			return "", gitError("CONFLICT (content): Merge conflict in main.go")
		}

		return "", nil
	}}

	err := newTestClient(runner).SyncAndPush(context.Background(), "/repo", "main")
	assert.ErrorIs(t, err, ErrMergeConflict)
	assert.Contains(t, runner.calls, "git rebase --abort")
	assert.NotContains(t, runner.calls, "git push origin main")
}

func TestCheckout_CreatesTrackingBranchOnMiss(t *testing.T) {
	runner := &fakeRunner{handler: func(call string) (string, error) {
		if call == "git checkout feature" {
			return "", gitError("error: pathspec 'feature' did not match any file(s)")
		}

		return "", nil
	}}

	err := newTestClient(runner).Checkout(context.Background(), "/repo", "feature")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"git checkout feature",
		"git fetch origin feature",
		"git checkout -b feature origin/feature",
	}, runner.calls)
}

func TestCommitAll_NothingToCommit(t *testing.T) {
	runner := &fakeRunner{handler: func(call string) (string, error) {
		if strings.HasPrefix(call, "git commit") {
			return "", gitError("nothing to commit, working tree clean")
		}

		return "", nil
	}}

	err := newTestClient(runner).CommitAll(context.Background(), "/repo", "chore: release")
	assert.ErrorIs(t, err, ErrNothingToCommit)
}

func TestPull_FetchThenHardReset(t *testing.T) {
	runner := &fakeRunner{}

	err := newTestClient(runner).Pull(context.Background(), "/repo", "main")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"git fetch origin main",
		"git reset --hard origin/main",
	}, runner.calls)
}
