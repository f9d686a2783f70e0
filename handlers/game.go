package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"tourney-service/middleware"
	"tourney-service/models"
	"tourney-service/services"
)

// Reconciler runs an on-demand reconcile of one game. The poller implements
// it so manual and callback reconciles never race the periodic one.
type Reconciler interface {
	Reconcile(ctx context.Context, gameID string) (services.Transition, error)
}

type gameResponse struct {
	*models.GameInstance
	Status  models.GameStatus `json:"status"`
	MapName string            `json:"map_name"`
}

func newGameResponse(game *models.GameInstance) gameResponse {
	return gameResponse{
		GameInstance: game,
		Status:       game.Status(),
		MapName:      models.MapDisplayName(game.MapID),
	}
}

type gameHandler struct {
	games      *services.GameService
	reconciler Reconciler
}

func SetupGameRoutes(app fiber.Router, games *services.GameService, reconciler Reconciler, logger *zap.Logger) {
	h := &gameHandler{games: games, reconciler: reconciler}

	app.Get("/games/:id", h.getGame)
	app.Get("/games/:id/participants", h.participants)
	app.Post("/games/:id/reconcile", h.reconcile)
	app.Post("/games/:id/join", middleware.UserContextMiddleware(logger), h.join)
}

func (h *gameHandler) getGame(c *fiber.Ctx) error {
	game, err := h.games.GetGame(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newGameResponse(game))
}

func (h *gameHandler) join(c *fiber.Ctx) error {
	joined, err := h.games.JoinGame(c.UserContext(), c.Params("id"), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	status := fiber.StatusOK
	if joined {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"joined": joined})
}

func (h *gameHandler) participants(c *fiber.Ctx) error {
	participants, err := h.games.Participants(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"participants": participants})
}

func (h *gameHandler) reconcile(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")
	if _, err := h.games.GetGame(ctx, id); err != nil {
		return respondError(c, err)
	}

	tr, err := h.reconciler.Reconcile(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	game, err := h.games.GetGame(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"transition": tr, "game": newGameResponse(game)})
}
