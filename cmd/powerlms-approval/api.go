// Package main provides the PowerLms approval workflow API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/ourworldcn/powerlms-workflow/pkg/eventbus"
	"github.com/ourworldcn/powerlms-workflow/pkg/persistence"
	"github.com/ourworldcn/powerlms-workflow/pkg/services"
	"github.com/ourworldcn/powerlms-workflow/pkg/web"
	"github.com/ourworldcn/powerlms-workflow/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	engine := workflow.NewEngine(a.persistence, a.eventBus, a.logger)
	templateService := services.NewTemplate(a.persistence)
	approvalService := services.NewApproval(a.persistence, engine)

	handlers := web.NewAPIHandlers(templateService, approvalService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("PowerLms Approval API")
	})

	t := app.Group("/templates")
	t.Get("/", handlers.GetTemplates)
	t.Post("/", handlers.CreateTemplate)
	t.Get("/:id", handlers.GetTemplate)
	t.Patch("/:id", handlers.UpdateTemplate)
	t.Delete("/:id", handlers.DeleteTemplate)

	w := app.Group("/workflows")
	w.Post("/send", handlers.SendWorkflow)
	w.Get("/by-document/:docId", handlers.GetInstancesByDocument)
	w.Get("/by-operator/:operatorId", handlers.GetInstancesByOperator)
	w.Get("/:id", handlers.GetInstance)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
