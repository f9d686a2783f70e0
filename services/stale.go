package services

import (
	"context"
	"time"

	"tourney-service/models"

	"go.uber.org/zap"
)

// StalePolicy decides whether a pending game should be abandoned.
type StalePolicy interface {
	IsStale(game *models.GameInstance, now time.Time) bool
}

// NeverStale keeps every game until the provider reports a result.
type NeverStale struct{}

func (NeverStale) IsStale(*models.GameInstance, time.Time) bool { return false }

// OpenTimeout treats a game as stale when its lobby never started within the
// timeout. Active games are never stale.
type OpenTimeout time.Duration

func (d OpenTimeout) IsStale(game *models.GameInstance, now time.Time) bool {
	if d <= 0 || game.Status() != models.GameStatusOpen {
		return false
	}
	return now.Sub(game.CreatedAt) >= time.Duration(d)
}

// SweepStaleGames force-finishes every pending game the policy flags and
// returns how many were finished.
func (s *GameService) SweepStaleGames(ctx context.Context) (int, error) {
	if s.Stale == nil {
		return 0, nil
	}
	if _, ok := s.Stale.(NeverStale); ok {
		return 0, nil
	}

	games, err := s.PendingGames(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	swept := 0
	for i := range games {
		game := &games[i]
		if !s.Stale.IsStale(game, now) {
			continue
		}
		if err := s.ForceFinish(ctx, game.ID); err != nil {
			return swept, err
		}
		swept++
		s.Log.Info("stale game swept",
			zap.String("game_id", game.ID),
			zap.String("join_code", game.JoinCode),
			zap.Time("created_at", game.CreatedAt),
		)
	}
	return swept, nil
}
