package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/buildforge/buildforge/pkg/log"
)

func main() {
	app := &cli.Command{
		Name:                  "buildforge",
		Usage:                 "Run build and release workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Aliases:   []string{"r"},
				Usage:     "Execute one workflow and wait for it to finish",
				ArgsUsage: "<workflow-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Answer yes to every question, e.g. tool installs",
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"))

					return runWorkflow(ctx, command)
				},
			},
			{
				Name:    "daemon",
				Aliases: []string{"d"},
				Usage:   "Watch trigger schedules and the run queue",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "queue",
						Usage:   "Redis list to consume remote run requests from",
						Sources: cli.EnvVars("BUILDFORGE_QUEUE"),
					},
					&cli.StringFlag{
						Name:    "redis-addr",
						Usage:   "Redis address for the run queue",
						Value:   "localhost:6379",
						Sources: cli.EnvVars("REDIS_ADDR"),
					},
					&cli.StringFlag{
						Name:    "event-bus",
						Usage:   "Event bus provider (gochannel, kafka)",
						Value:   "gochannel",
						Sources: cli.EnvVars("EVENT_BUS_TYPE"),
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"))

					return runDaemon(ctx, command)
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.WithModule("buildforge").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
