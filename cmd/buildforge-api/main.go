package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/buildforge/buildforge/pkg/cmd"
	"github.com/buildforge/buildforge/pkg/log"
	"github.com/buildforge/buildforge/pkg/otelhelper"
	"github.com/buildforge/buildforge/pkg/runner"
	"github.com/buildforge/buildforge/pkg/trigger"
)

const defaultPort = 9190

func main() {
	app := &cli.Command{
		Name:                  "buildforge-api",
		Usage:                 "Serve the workflow management REST API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Persistence URL (file path or postgres://)",
				Value:   "./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "hosting-token",
				Usage:   "Code hosting API token for release publishing",
				Sources: cli.EnvVars("BUILDFORGE_HOSTING_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "share-root",
				Usage:   "Host directory mounted into the shared build container",
				Sources: cli.EnvVars("BUILDFORGE_SHARE_ROOT"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing buildforge API")

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			bus, err := cmd.NewEventBus(command.String("event-bus"), "buildforge-api", logger)
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
				tracer, err := otelhelper.NewTracer(ctx, "buildforge-api")
				if err != nil {
					return err
				}

				engineOpts = append(engineOpts, runner.WithTracer(tracer))
			}

			engine := runner.NewRunner(reg, deps, store, logger, engineOpts...)
			scheduler := trigger.NewScheduler(cmd.NewRunCallback(store, engine), logger)

			defer scheduler.ClearAll()

			workflows, err := store.Workflows(ctx)
			if err != nil {
				return err
			}

			for _, workflow := range workflows {
				scheduler.SyncWorkflow(ctx, workflow)
			}

			api := NewAPI(logger, store, reg, engine, scheduler)

			return api.Start(command.Int("port"))
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.WithModule("api").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
