package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tourney-service/models"
	"tourney-service/provider"
	"tourney-service/services"
)

var epoch = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

type fixture struct {
	db          *gorm.DB
	provider    *provider.Memory
	clock       *clockwork.FakeClock
	tournaments *services.TournamentService
	games       *services.GameService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps every session on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.Migrate(db))

	mem := provider.NewMemory()
	clock := clockwork.NewFakeClockAt(epoch)
	logger := zap.NewNop()

	ts := services.NewTournamentService(db, mem, 7, logger)
	ts.Clock = clock
	gs := services.NewGameService(db, mem, logger)
	gs.Clock = clock

	return &fixture{db: db, provider: mem, clock: clock, tournaments: ts, games: gs}
}

func (f *fixture) startTournament(t *testing.T, name string) *models.Tournament {
	t.Helper()
	tournament, err := f.tournaments.StartTournament(context.Background(), services.StartTournamentCommand{Name: name})
	require.NoError(t, err)
	return tournament
}

func (f *fixture) createGame(t *testing.T, tournamentID, mapID string) *models.GameInstance {
	t.Helper()
	game, err := f.games.CreateGame(context.Background(), services.CreateGameCommand{
		TournamentID: tournamentID,
		CreatorID:    "captain-1",
		MapID:        mapID,
	})
	require.NoError(t, err)
	return game
}

func (f *fixture) countGames(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.GameInstance{}).Count(&n).Error)
	return n
}
