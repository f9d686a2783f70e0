package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tourney-service/models"
	"tourney-service/provider"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TournamentService is the tournament registry. It keeps at most one
// tournament active and completes tournaments together with their games.
type TournamentService struct {
	DB         *gorm.DB
	Provider   provider.Provider
	ProviderID int64 // provider registration the tournaments are created under
	Clock      clockwork.Clock
	Log        *zap.Logger
}

func NewTournamentService(db *gorm.DB, p provider.Provider, providerID int64, logger *zap.Logger) *TournamentService {
	return &TournamentService{
		DB:         db,
		Provider:   p,
		ProviderID: providerID,
		Clock:      clockwork.NewRealClock(),
		Log:        logger.Named("registry"),
	}
}

// StartTournamentCommand contains parameters for starting a tournament.
type StartTournamentCommand struct {
	Name     string
	Metadata string
}

// StartTournament reserves the single active slot, allocates the provider
// tournament and persists both in one transaction. A provider failure rolls
// the reservation back.
func (s *TournamentService) StartTournament(ctx context.Context, cmd StartTournamentCommand) (*models.Tournament, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	now := s.Clock.Now().UTC()
	tournament := &models.Tournament{
		ID:         uuid.NewString(),
		Name:       name,
		Slug:       slug.Make(name),
		Metadata:   cmd.Metadata,
		ProviderID: s.ProviderID,
		Timestamps: models.Timestamps{CreatedAt: now, UpdatedAt: now},
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&models.Tournament{}).Where("completed = ?", false).Count(&active).Error; err != nil {
			return fmt.Errorf("count active tournaments: %w", err)
		}
		if active > 0 {
			return ErrAlreadyActive
		}

		// The insert holds the single-active index entry until commit, so a
		// concurrent caller blocks here and then fails on the index.
		if err := tx.Create(tournament).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyActive
			}
			return fmt.Errorf("insert tournament: %w", err)
		}

		providerTournamentID, err := s.Provider.CreateTournament(ctx, name, s.ProviderID)
		if err != nil {
			return fmt.Errorf("allocate provider tournament: %w", err)
		}
		tournament.ProviderTournamentID = providerTournamentID

		if err := tx.Model(tournament).UpdateColumn("provider_tournament_id", providerTournamentID).Error; err != nil {
			return fmt.Errorf("store provider tournament id: %w", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrAlreadyActive) {
			s.Log.Error("failed to start tournament", zap.String("name", name), zap.Error(err))
		}
		return nil, err
	}

	s.Log.Info("tournament started",
		zap.String("tournament_id", tournament.ID),
		zap.String("name", tournament.Name),
		zap.Int64("provider_tournament_id", tournament.ProviderTournamentID),
	)
	return tournament, nil
}

// ListActive returns every tournament that is not completed. The index keeps
// this at zero or one row; a slice is returned so a broken database is
// visible instead of hidden.
func (s *TournamentService) ListActive(ctx context.Context) ([]models.Tournament, error) {
	var tournaments []models.Tournament
	if err := s.DB.WithContext(ctx).
		Where("completed = ?", false).
		Order("created_at ASC").
		Find(&tournaments).Error; err != nil {
		return nil, fmt.Errorf("list active tournaments: %w", err)
	}
	return tournaments, nil
}

// GetTournament retrieves a tournament by ID.
func (s *TournamentService) GetTournament(ctx context.Context, id string) (*models.Tournament, error) {
	var tournament models.Tournament
	if err := s.DB.WithContext(ctx).First(&tournament, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("get tournament %s: %w", id, err)
	}
	return &tournament, nil
}

// CompleteTournament force-finishes every unfinished game of the tournament
// and marks it completed, atomically. Completing twice is a no-op.
func (s *TournamentService) CompleteTournament(ctx context.Context, id string) error {
	now := s.Clock.Now().UTC()
	var finished int64

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tournament models.Tournament
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&tournament, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTournamentNotFound
			}
			return fmt.Errorf("lock tournament: %w", err)
		}
		if tournament.Completed {
			return nil
		}

		n, err := finishPendingGames(tx, id, now)
		if err != nil {
			return err
		}
		finished = n

		if err := tx.Model(&tournament).Update("completed", true).Error; err != nil {
			return fmt.Errorf("mark tournament completed: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Log.Info("tournament completed",
		zap.String("tournament_id", id),
		zap.Int64("games_force_finished", finished),
	)
	return nil
}

// finishPendingGames moves every unfinished game of a tournament to
// Finished, synthesizing started_at where the start was never observed.
// Each game is clamped so finished_at never precedes its own timestamps.
func finishPendingGames(tx *gorm.DB, tournamentID string, now time.Time) (int64, error) {
	var games []models.GameInstance
	if err := tx.Where("tournament_id = ?", tournamentID).
		Scopes(models.Pending).
		Find(&games).Error; err != nil {
		return 0, fmt.Errorf("load pending games: %w", err)
	}

	var finished int64
	for _, game := range games {
		at := notBefore(now, game.CreatedAt)
		if game.StartedAt != nil {
			at = notBefore(at, *game.StartedAt)
		}
		res := tx.Model(&models.GameInstance{}).
			Where("id = ? AND finished_at IS NULL", game.ID).
			Updates(map[string]interface{}{
				"finished_at": at,
				"started_at":  gorm.Expr("COALESCE(started_at, ?)", at),
			})
		if res.Error != nil {
			return finished, fmt.Errorf("finish game %s: %w", game.ID, res.Error)
		}
		finished += res.RowsAffected
	}
	return finished, nil
}
