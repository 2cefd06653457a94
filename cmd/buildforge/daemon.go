package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/buildforge/buildforge/pkg/cmd"
	"github.com/buildforge/buildforge/pkg/log"
	"github.com/buildforge/buildforge/pkg/otelhelper"
	"github.com/buildforge/buildforge/pkg/runner"
	"github.com/buildforge/buildforge/pkg/trigger"
)

func runDaemon(ctx context.Context, command *cli.Command) error {
	logger := log.WithModule("buildforge-daemon")

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	bus, err := cmd.NewEventBus(command.String("event-bus"), "buildforge-daemon", logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := bus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	reg := cmd.NewRegistry(logger)
	deps := cmd.NewDependencies(logger, cmd.DepsConfig{
		HostingToken: command.String("hosting-token"),
		ShareRoot:    command.String("share-root"),
		Actions:      store,
	})

	engineOpts := []runner.Option{runner.WithEventBus(bus)}

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		tracer, err := otelhelper.NewTracer(ctx, "buildforge-daemon")
		if err != nil {
			return err
		}

		engineOpts = append(engineOpts, runner.WithTracer(tracer))
	}

	engine := runner.NewRunner(reg, deps, store, logger, engineOpts...)
	callback := cmd.NewRunCallback(store, engine)

	scheduler := trigger.NewScheduler(callback, logger)
	defer scheduler.ClearAll()

	workflows, err := store.Workflows(ctx)
	if err != nil {
		return err
	}

	for _, workflow := range workflows {
		scheduler.SyncWorkflow(ctx, workflow)
	}

	logger.InfoContext(ctx, "Trigger schedules loaded",
		"workflows", len(workflows), "schedules", scheduler.Count())

	if queue := command.String("queue"); queue != "" {
		factory := trigger.NewQueueSourceFactory()

		source, err := factory.Create(map[string]any{
			"queue":      queue,
			"connection": map[string]any{"addr": command.String("redis-addr")},
		}, logger)
		if err != nil {
			return err
		}

		if err := source.Start(ctx, callback); err != nil {
			return err
		}

		defer func() {
			if err := source.Stop(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to stop queue source", "error", err)
			}
		}()
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		logger.InfoContext(ctx, "Received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	return nil
}
