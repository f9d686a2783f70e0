package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"tourney-service/middleware"
	"tourney-service/models"
	"tourney-service/services"
)

type tournamentHandler struct {
	tournaments *services.TournamentService
	games       *services.GameService
}

// SetupTournamentRoutes registers the registry routes and the per-tournament
// game routes. All of them sit behind the gateway middleware installed by
// the caller.
func SetupTournamentRoutes(app fiber.Router, tournaments *services.TournamentService, games *services.GameService, logger *zap.Logger) {
	h := &tournamentHandler{tournaments: tournaments, games: games}

	app.Post("/tournaments", h.startTournament)
	app.Get("/tournaments/active", h.listActive)
	app.Get("/tournaments/:id", h.getTournament)
	app.Post("/tournaments/:id/complete", h.completeTournament)
	app.Get("/tournaments/:id/games", h.listGames)

	// 🔐 creating a game needs the creator identity
	app.Post("/tournaments/:id/games", middleware.UserContextMiddleware(logger), h.createGame)
}

func (h *tournamentHandler) startTournament(c *fiber.Ctx) error {
	type Req struct {
		Name     string `json:"name"`
		Metadata string `json:"metadata"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}

	tournament, err := h.tournaments.StartTournament(c.UserContext(), services.StartTournamentCommand{
		Name:     req.Name,
		Metadata: req.Metadata,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(tournament)
}

func (h *tournamentHandler) listActive(c *fiber.Ctx) error {
	tournaments, err := h.tournaments.ListActive(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"tournaments": tournaments})
}

func (h *tournamentHandler) getTournament(c *fiber.Ctx) error {
	tournament, err := h.tournaments.GetTournament(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(tournament)
}

func (h *tournamentHandler) completeTournament(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")
	if err := h.tournaments.CompleteTournament(ctx, id); err != nil {
		return respondError(c, err)
	}
	tournament, err := h.tournaments.GetTournament(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(tournament)
}

func (h *tournamentHandler) createGame(c *fiber.Ctx) error {
	type Req struct {
		MapID    string `json:"map_id"`
		TeamSize int    `json:"team_size"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}

	game, err := h.games.CreateGame(c.UserContext(), services.CreateGameCommand{
		TournamentID: c.Params("id"),
		CreatorID:    middleware.UserID(c),
		MapID:        req.MapID,
		TeamSize:     req.TeamSize,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(newGameResponse(game))
}

// listGames filters by ?status=open|active|finished; without a filter every
// game of the tournament is returned.
func (h *tournamentHandler) listGames(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")
	if _, err := h.tournaments.GetTournament(ctx, id); err != nil {
		return respondError(c, err)
	}

	statuses := []models.GameStatus{models.GameStatusOpen, models.GameStatusActive, models.GameStatusFinished}
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseGameStatus(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		statuses = []models.GameStatus{status}
	}

	out := make([]gameResponse, 0)
	for _, status := range statuses {
		games, err := h.games.GamesByStatus(ctx, id, status)
		if err != nil {
			return respondError(c, err)
		}
		for i := range games {
			out = append(out, newGameResponse(&games[i]))
		}
	}
	return c.JSON(fiber.Map{"games": out})
}
