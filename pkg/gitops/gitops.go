// Package gitops wraps the git command line with the recovery
// patterns the workflow steps rely on: rebase-then-retry on rejected
// pushes, safe force-push fallback, and tolerance for benign outcomes
// like "nothing to commit".
package gitops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/buildforge/buildforge/pkg/execx"
)

// Classified git failures. The non-fatal ones (ErrNothingToCommit,
// ErrTagExists) are absorbed by their callers as warnings.
var (
	ErrPushRejected          = errors.New("push rejected: remote has diverged")
	ErrMergeConflict         = errors.New("merge conflict")
	ErrNothingToCommit       = errors.New("nothing to commit")
	ErrIdentityNotConfigured = errors.New("git author identity not configured")
	ErrTagExists             = errors.New("tag already exists")
)

// Client executes git operations through the command launcher.
type Client struct {
	runner execx.Runner
	logger *slog.Logger
}

// NewClient returns a git client backed by the given runner.
func NewClient(runner execx.Runner, logger *slog.Logger) *Client {
	return &Client{
		runner: runner,
		logger: logger.With("module", "gitops"),
	}
}

func (c *Client) git(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := c.runner.Run(ctx, execx.Command{Name: "git", Args: args, Dir: dir})
	if err != nil {
		return out, classify(err)
	}

	return out, nil
}

// classify maps the launcher's structured error onto the git error
// taxonomy. This is the single place that inspects git's output text;
// everything upstream tests sentinels.
func classify(err error) error {
	var execErr *execx.ExecError
	if !errors.As(err, &execErr) {
		return err
	}

	stderr := strings.ToLower(execErr.Stderr)

	switch {
	case strings.Contains(stderr, "non-fast-forward"),
		strings.Contains(stderr, "fetch first"),
		strings.Contains(stderr, "[rejected]"):
		return fmt.Errorf("%w: %v", ErrPushRejected, err)
	case strings.Contains(stderr, "conflict"),
		strings.Contains(stderr, "could not apply"):
		return fmt.Errorf("%w: %v", ErrMergeConflict, err)
	case strings.Contains(stderr, "nothing to commit"),
		strings.Contains(stderr, "working tree clean"):
		return ErrNothingToCommit
	case strings.Contains(stderr, "please tell me who you are"),
		strings.Contains(stderr, "user.email"),
		strings.Contains(stderr, "user.name"):
		return fmt.Errorf("%w: %v", ErrIdentityNotConfigured, err)
	case strings.Contains(stderr, "already exists"):
		return fmt.Errorf("%w: %v", ErrTagExists, err)
	default:
		return err
	}
}

// Clone clones url into a fresh temporary directory and returns it.
// The caller owns cleanup.
func (c *Client) Clone(ctx context.Context, url string) (string, error) {
	dir, err := os.MkdirTemp("", "buildforge-clone-")
	if err != nil {
		return "", fmt.Errorf("create clone dir: %w", err)
	}

	if _, err := c.git(ctx, "", "clone", url, dir); err != nil {
		_ = os.RemoveAll(dir)

		return "", fmt.Errorf("clone %s: %w", url, err)
	}

	c.logger.Info("cloned repository", "url", url, "dir", dir)

	return dir, nil
}

// Pull fetches the branch and hard-resets the working tree to the
// fetched ref. Destructive by design: local changes are discarded.
func (c *Client) Pull(ctx context.Context, dir, branch string) error {
	if _, err := c.git(ctx, dir, "fetch", "origin", branch); err != nil {
		return fmt.Errorf("fetch origin %s: %w", branch, err)
	}

	if _, err := c.git(ctx, dir, "reset", "--hard", "origin/"+branch); err != nil {
		return fmt.Errorf("reset to origin/%s: %w", branch, err)
	}

	return nil
}

// PullRebase replays local commits on top of the remote branch.
// "already up to date" is success; a conflict aborts the in-progress
// rebase and surfaces ErrMergeConflict.
func (c *Client) PullRebase(ctx context.Context, dir, branch string) error {
	_, err := c.git(ctx, dir, "pull", "--rebase", "origin", branch)
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrMergeConflict) {
		// Leave the tree usable for the next run.
		if _, abortErr := c.git(ctx, dir, "rebase", "--abort"); abortErr != nil {
			c.logger.Warn("rebase abort failed", "error", abortErr)
		}
	}

	return fmt.Errorf("pull --rebase origin %s: %w", branch, err)
}

// Push pushes the branch without any recovery.
func (c *Client) Push(ctx context.Context, dir, branch string) error {
	if _, err := c.git(ctx, dir, "push", "origin", branch); err != nil {
		return fmt.Errorf("push origin %s: %w", branch, err)
	}

	return nil
}

// ForcePushWithLease overwrites remote history only if the remote has
// not moved since last observed.
func (c *Client) ForcePushWithLease(ctx context.Context, dir, branch string) error {
	if _, err := c.git(ctx, dir, "push", "--force-with-lease", "origin", branch); err != nil {
		return fmt.Errorf("force-with-lease push origin %s: %w", branch, err)
	}

	return nil
}

// PushWithRebaseRetry pushes, and on a non-fast-forward rejection
// rebases once onto the remote and retries exactly once. When the
// retry also fails its error is reported, not the original rejection.
func (c *Client) PushWithRebaseRetry(ctx context.Context, dir, branch string) error {
	err := c.Push(ctx, dir, branch)
	if err == nil || !errors.Is(err, ErrPushRejected) {
		return err
	}

	c.logger.Warn("push rejected, rebasing and retrying once", "branch", branch)

	if err := c.PullRebase(ctx, dir, branch); err != nil {
		return err
	}

	return c.Push(ctx, dir, branch)
}

// SyncAndPush rebases onto the remote (merge conflicts abort), then
// pushes, retrying once with force-with-lease if the push is rejected.
func (c *Client) SyncAndPush(ctx context.Context, dir, branch string) error {
	if err := c.PullRebase(ctx, dir, branch); err != nil {
		return err
	}

	err := c.Push(ctx, dir, branch)
	if err == nil || !errors.Is(err, ErrPushRejected) {
		return err
	}

	c.logger.Warn("push rejected after rebase, falling back to force-with-lease", "branch", branch)

	return c.ForcePushWithLease(ctx, dir, branch)
}

// Checkout switches to the branch, creating a local tracking branch
// from the remote when it does not exist locally.
func (c *Client) Checkout(ctx context.Context, dir, branch string) error {
	_, err := c.git(ctx, dir, "checkout", branch)
	if err == nil {
		return nil
	}

	if _, err := c.git(ctx, dir, "fetch", "origin", branch); err != nil {
		return fmt.Errorf("fetch origin %s: %w", branch, err)
	}

	if _, err := c.git(ctx, dir, "checkout", "-b", branch, "origin/"+branch); err != nil {
		return fmt.Errorf("checkout tracking branch %s: %w", branch, err)
	}

	return nil
}

// CommitAll stages everything and commits. ErrNothingToCommit and
// ErrIdentityNotConfigured pass through classified for the caller to
// absorb or surface.
func (c *Client) CommitAll(ctx context.Context, dir, message string) error {
	if _, err := c.git(ctx, dir, "add", "-A"); err != nil {
		return fmt.Errorf("stage changes: %w", err)
	}

	if _, err := c.git(ctx, dir, "commit", "-m", message); err != nil {
		if errors.Is(err, ErrNothingToCommit) || errors.Is(err, ErrIdentityNotConfigured) {
			return err
		}

		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// CreateAnnotatedTag creates an annotated tag; ErrTagExists passes
// through for the caller to tolerate.
func (c *Client) CreateAnnotatedTag(ctx context.Context, dir, tag, message string) error {
	if _, err := c.git(ctx, dir, "tag", "-a", tag, "-m", message); err != nil {
		if errors.Is(err, ErrTagExists) {
			return err
		}

		return fmt.Errorf("create tag %s: %w", tag, err)
	}

	return nil
}

// PushTag pushes a single tag ref. An existing remote tag is
// tolerated.
func (c *Client) PushTag(ctx context.Context, dir, tag string) error {
	_, err := c.git(ctx, dir, "push", "origin", "refs/tags/"+tag)
	if err != nil && !errors.Is(err, ErrTagExists) {
		return fmt.Errorf("push tag %s: %w", tag, err)
	}

	return nil
}

// CurrentBranch returns the checked-out branch name.
func (c *Client) CurrentBranch(ctx context.Context, dir string) (string, error) {
	out, err := c.git(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve current branch: %w", err)
	}

	return strings.TrimSpace(out), nil
}
