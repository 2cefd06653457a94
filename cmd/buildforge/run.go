package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/buildforge/buildforge/pkg/cmd"
	"github.com/buildforge/buildforge/pkg/log"
	"github.com/buildforge/buildforge/pkg/models"
	"github.com/buildforge/buildforge/pkg/persistence"
	"github.com/buildforge/buildforge/pkg/runner"
)

var errRunFailed = errors.New("run did not succeed")

func runWorkflow(ctx context.Context, command *cli.Command) error {
	workflowID := command.Args().First()
	if workflowID == "" {
		return errors.New("workflow id is required")
	}

	logger := log.WithModule("buildforge")

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	workflow, err := store.WorkflowByID(ctx, workflowID)
	if err != nil {
		return err
	}

	var repo *models.Repository
	if workflow.RepoID != "" {
		repo, err = store.RepositoryByID(ctx, workflow.RepoID)
		if err != nil {
			return err
		}
	}

	engine := newEngine(command, logger, store)

	run, err := engine.Start(ctx, workflow, repo, map[string]any{"source": "cli"})
	if err != nil {
		return err
	}

	return streamRun(ctx, run)
}

func newEngine(command *cli.Command, logger *slog.Logger, store persistence.Persistence) *runner.Runner {
	reg := cmd.NewRegistry(logger)

	deps := cmd.NewDependencies(logger, cmd.DepsConfig{
		HostingToken: command.String("hosting-token"),
		ShareRoot:    command.String("share-root"),
		Actions:      store,
		Confirm:      confirmFunc(command),
	})

	return runner.NewRunner(reg, deps, store, logger)
}

func streamRun(ctx context.Context, run *models.Run) error {
	printed := 0
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		entries := run.Entries()
		for ; printed < len(entries); printed++ {
			entry := entries[printed]
			fmt.Printf("%s [%s] %s\n", entry.Timestamp.Format(time.TimeOnly), entry.Level, entry.Message)
		}

		status := run.CurrentStatus()
		if status != models.RunStatusRunning {
			if status != models.RunStatusSuccess {
				return fmt.Errorf("%w: %s", errRunFailed, status)
			}

			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func confirmFunc(command *cli.Command) func(ctx context.Context, question string) bool {
	if command.Bool("yes") {
		return func(context.Context, string) bool { return true }
	}

	reader := bufio.NewReader(os.Stdin)

	return func(_ context.Context, question string) bool {
		fmt.Printf("%s [y/N]: ", question)

		answer, err := reader.ReadString('\n')
		if err != nil {
			return false
		}

		answer = strings.ToLower(strings.TrimSpace(answer))

		return answer == "y" || answer == "yes"
	}
}
