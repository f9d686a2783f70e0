package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tourney-service/middleware"
	"tourney-service/services"
)

// AppDeps wires the HTTP surface.
type AppDeps struct {
	ServiceToken string
	Tournaments  *services.TournamentService
	Games        *services.GameService
	Reconciler   Reconciler
	Gatherer     prometheus.Gatherer // nil disables /metrics
	Logger       *zap.Logger
}

// NewApp builds the fiber app. /healthz, /metrics and the provider callback
// are public; everything else requires the service token.
func NewApp(deps AppDeps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "tourney-service",
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: jsonErrorHandler,
	})
	app.Use(recover.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	SetupCallbackRoutes(app, deps.Games, deps.Reconciler, deps.Logger)

	// 🔐 everything below needs the service token
	app.Use(middleware.GatewayAuthMiddleware(deps.ServiceToken, deps.Logger))
	SetupTournamentRoutes(app, deps.Tournaments, deps.Games, deps.Logger)
	SetupGameRoutes(app, deps.Games, deps.Reconciler, deps.Logger)

	return app
}

func jsonErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
