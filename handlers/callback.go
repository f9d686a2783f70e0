package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"tourney-service/services"
)

// callbackPayload is the subset of the provider's game-end push we read.
type callbackPayload struct {
	ShortCode string `json:"shortCode"`
	GameID    int64  `json:"gameId"`
	Region    string `json:"region"`
	MetaData  string `json:"metaData"`
}

// SetupCallbackRoutes registers the provider push endpoint. The push only
// triggers a reconcile of the game; state is read back from the provider.
func SetupCallbackRoutes(app fiber.Router, games *services.GameService, reconciler Reconciler, logger *zap.Logger) {
	log := logger.Named("callback")

	app.Post("/callback/result", func(c *fiber.Ctx) error {
		var payload callbackPayload
		if err := c.BodyParser(&payload); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
		code := strings.TrimSpace(payload.ShortCode)
		if code == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "shortCode is required"})
		}

		ctx := c.UserContext()
		game, err := games.GetGameByCode(ctx, code)
		if err != nil {
			if errors.Is(err, services.ErrGameNotFound) {
				log.Warn("callback for unknown code", zap.String("join_code", code))
				return c.JSON(fiber.Map{"status": "ignored"})
			}
			return respondError(c, err)
		}

		tr, err := reconciler.Reconcile(ctx, game.ID)
		if err != nil {
			log.Warn("callback reconcile failed",
				zap.String("game_id", game.ID),
				zap.String("join_code", code),
				zap.Error(err),
			)
			return respondError(c, err)
		}

		log.Info("callback processed",
			zap.String("game_id", game.ID),
			zap.String("join_code", code),
			zap.Int64("provider_game_id", payload.GameID),
			zap.Bool("finished", tr.Finished),
		)
		return c.JSON(fiber.Map{"status": "ok", "transition": tr})
	})
}
