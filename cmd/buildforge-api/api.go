// Package main provides the buildforge API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/buildforge/buildforge/pkg/persistence"
	"github.com/buildforge/buildforge/pkg/registry"
	"github.com/buildforge/buildforge/pkg/runner"
	"github.com/buildforge/buildforge/pkg/web"
)

type API struct {
	logger    *slog.Logger
	store     persistence.Persistence
	registry  *registry.Registry
	engine    *runner.Runner
	scheduler web.WorkflowSyncer
}

func NewAPI(
	log *slog.Logger,
	store persistence.Persistence,
	reg *registry.Registry,
	engine *runner.Runner,
	scheduler web.WorkflowSyncer,
) *API {
	return &API{
		logger:    log,
		store:     store,
		registry:  reg,
		engine:    engine,
		scheduler: scheduler,
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.store, a.registry, a.engine, a.scheduler)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("buildforge API")
	})

	handlers.RegisterRoutes(app)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
