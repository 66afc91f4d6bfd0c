// Package main provides the Taskflow API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/agencyops/taskflow/pkg/cmd"
	"github.com/agencyops/taskflow/pkg/metrics"
	"github.com/agencyops/taskflow/pkg/persistence"
	"github.com/agencyops/taskflow/pkg/services"
	"github.com/agencyops/taskflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	rules       persistence.RuleRepository
	engine      *cmd.Engine
	gatherer    prometheus.Gatherer
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	rules persistence.RuleRepository,
	engine *cmd.Engine,
	gatherer prometheus.Gatherer,
) *API {
	if rules == nil {
		rules = persistence.RuleRepository()
	}

	return &API{
		logger:      logger,
		persistence: persistence,
		rules:       rules,
		engine:      engine,
		gatherer:    gatherer,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	taskService := services.NewTask(a.persistence, a.engine.Machine)
	timerService := services.NewTimer(a.engine.Timers)
	ruleService := services.NewRule(a.rules, nil)

	handlers := web.NewAPIHandlers(taskService, timerService, ruleService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Taskflow API")
	})

	app.Get("/health", handlers.HealthCheck)

	if a.gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(a.gatherer)))
	}

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	a.logger.Info("Starting Taskflow API", "port", port)

	return app.Listen(":" + strconv.Itoa(port))
}
