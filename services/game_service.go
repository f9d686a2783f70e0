package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tourney-service/models"
	"tourney-service/provider"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultTeamSize = 5

// ResultArchiver keeps a copy of an end-of-game payload and returns where it
// was stored.
type ResultArchiver interface {
	ArchiveResult(ctx context.Context, game *models.GameInstance, payload []byte) (string, error)
}

// GameService is the game lifecycle engine: it creates games, folds provider
// lobby events and results into them and force-finishes them.
type GameService struct {
	DB       *gorm.DB
	Provider provider.Provider
	Archive  ResultArchiver // optional
	Stale    StalePolicy
	Clock    clockwork.Clock
	Log      *zap.Logger
}

func NewGameService(db *gorm.DB, p provider.Provider, logger *zap.Logger) *GameService {
	return &GameService{
		DB:       db,
		Provider: p,
		Stale:    NeverStale{},
		Clock:    clockwork.NewRealClock(),
		Log:      logger.Named("games"),
	}
}

// Transition reports what a reconcile pass changed.
type Transition struct {
	Started  bool `json:"started"`
	Finished bool `json:"finished"`
}

func (t Transition) Changed() bool { return t.Started || t.Finished }

// CreateGameCommand contains parameters for creating a game.
type CreateGameCommand struct {
	TournamentID string
	CreatorID    string
	MapID        string
	TeamSize     int // 0 means 5
}

// CreateGame opens a game on a map of an active tournament. The join code is
// requested while the tournament row is locked and the game is inserted in
// the same transaction, so a game is never visible without its code.
func (s *GameService) CreateGame(ctx context.Context, cmd CreateGameCommand) (*models.GameInstance, error) {
	mapID := strings.ToUpper(strings.TrimSpace(cmd.MapID))
	if !models.IsSupportedMap(mapID) {
		return nil, ErrInvalidMap
	}
	teamSize := cmd.TeamSize
	if teamSize == 0 {
		teamSize = defaultTeamSize
	}
	if teamSize < 1 || teamSize > 5 {
		return nil, ErrInvalidTeamSize
	}
	creator := strings.TrimSpace(cmd.CreatorID)
	if creator == "" {
		return nil, ErrIdentityRequired
	}

	game := &models.GameInstance{
		ID:           uuid.NewString(),
		TournamentID: cmd.TournamentID,
		MapID:        mapID,
		TeamSize:     teamSize,
		CreatorID:    creator,
		CreatedAt:    s.now(),
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tournament models.Tournament
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&tournament, "id = ?", cmd.TournamentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTournamentNotFound
			}
			return fmt.Errorf("lock tournament: %w", err)
		}
		if tournament.Completed {
			return ErrTournamentCompleted
		}

		var pending int64
		if err := tx.Model(&models.GameInstance{}).
			Where("tournament_id = ? AND map_id = ?", tournament.ID, mapID).
			Scopes(models.Pending).
			Count(&pending).Error; err != nil {
			return fmt.Errorf("count pending games: %w", err)
		}
		if pending > 0 {
			return ErrDuplicateActiveGame
		}

		metadata, err := json.Marshal(map[string]string{
			"game_id":    game.ID,
			"tournament": tournament.Slug,
		})
		if err != nil {
			return fmt.Errorf("encode code metadata: %w", err)
		}
		codes, err := s.Provider.CreateMatchCodes(ctx, provider.CodeRequest{
			TournamentID: tournament.ProviderTournamentID,
			Count:        1,
			MapType:      mapID,
			TeamSize:     teamSize,
			Metadata:     string(metadata),
		})
		if err != nil {
			return fmt.Errorf("allocate join code: %w", err)
		}
		if len(codes) == 0 {
			return fmt.Errorf("allocate join code: %w", &provider.Error{Op: provider.OpCreateMatchCodes, Err: errors.New("no code issued")})
		}
		game.JoinCode = codes[0]

		if err := tx.Create(game).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateActiveGame
			}
			return fmt.Errorf("insert game: %w", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrNotFound) {
			s.Log.Error("failed to create game",
				zap.String("tournament_id", cmd.TournamentID),
				zap.String("map_id", mapID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.Log.Info("game created",
		zap.String("game_id", game.ID),
		zap.String("tournament_id", game.TournamentID),
		zap.String("map_id", game.MapID),
		zap.String("join_code", game.JoinCode),
	)
	return game, nil
}

// PollLobbyStatus moves an Open game to Active once the provider reports the
// lobby was allocated. It returns true only when this call made the
// transition.
func (s *GameService) PollLobbyStatus(ctx context.Context, gameID string) (bool, error) {
	game, err := s.GetGame(ctx, gameID)
	if err != nil {
		return false, err
	}
	if game.Status() != models.GameStatusOpen {
		return false, nil
	}

	events, err := s.Provider.LobbyEvents(ctx, game.JoinCode)
	if err != nil {
		return false, fmt.Errorf("lobby events for game %s: %w", gameID, err)
	}
	if !provider.HasStartEvent(events) {
		return false, nil
	}

	startedAt := notBefore(s.now(), game.CreatedAt)
	res := s.DB.WithContext(ctx).Model(&models.GameInstance{}).
		Where("id = ? AND started_at IS NULL AND finished_at IS NULL", gameID).
		Update("started_at", startedAt)
	if res.Error != nil {
		return false, fmt.Errorf("mark game %s started: %w", gameID, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	s.Log.Info("game started",
		zap.String("game_id", gameID),
		zap.String("join_code", game.JoinCode),
	)
	return true, nil
}

// PollMatchResult finishes a game once the provider has a result for the
// first match played with its join code. Finished games and games without a
// result yet are left untouched.
func (s *GameService) PollMatchResult(ctx context.Context, gameID string) (bool, error) {
	game, err := s.GetGame(ctx, gameID)
	if err != nil {
		return false, err
	}
	if game.Status() == models.GameStatusFinished {
		return false, nil
	}

	matchIDs, err := s.Provider.MatchIDs(ctx, game.JoinCode)
	if err != nil {
		return false, fmt.Errorf("match ids for game %s: %w", gameID, err)
	}
	if len(matchIDs) == 0 {
		return false, nil
	}

	payload, err := s.Provider.MatchResult(ctx, matchIDs[0], game.JoinCode)
	if err != nil {
		return false, fmt.Errorf("match result for game %s: %w", gameID, err)
	}
	if payload == nil {
		return false, nil
	}

	finishedAt := notBefore(s.now(), game.CreatedAt)
	if game.StartedAt != nil {
		finishedAt = notBefore(finishedAt, *game.StartedAt)
	}
	res := s.DB.WithContext(ctx).Model(&models.GameInstance{}).
		Where("id = ? AND finished_at IS NULL", gameID).
		Updates(map[string]interface{}{
			"finished_at": finishedAt,
			"started_at":  gorm.Expr("COALESCE(started_at, ?)", finishedAt),
			"match_id":    matchIDs[0],
			"result":      string(payload),
		})
	if res.Error != nil {
		return false, fmt.Errorf("mark game %s finished: %w", gameID, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	s.Log.Info("game finished",
		zap.String("game_id", gameID),
		zap.String("join_code", game.JoinCode),
		zap.String("match_id", matchIDs[0]),
	)
	game.MatchID = matchIDs[0]
	game.FinishedAt = &finishedAt
	s.archiveResult(ctx, game, payload)
	return true, nil
}

// archiveResult is best effort: the game is already finished in the store.
func (s *GameService) archiveResult(ctx context.Context, game *models.GameInstance, payload []byte) {
	if s.Archive == nil {
		return
	}
	url, err := s.Archive.ArchiveResult(ctx, game, payload)
	if err != nil {
		s.Log.Warn("failed to archive game result", zap.String("game_id", game.ID), zap.Error(err))
		return
	}
	if err := s.DB.WithContext(ctx).Model(&models.GameInstance{}).
		Where("id = ?", game.ID).
		Update("archive_url", url).Error; err != nil {
		s.Log.Warn("failed to store archive url", zap.String("game_id", game.ID), zap.Error(err))
	}
}

// Reconcile folds the provider's view of one game into the store: lobby
// first, then result. The result poll runs even when the lobby poll failed,
// so a game can go straight from Open to Finished.
func (s *GameService) Reconcile(ctx context.Context, gameID string) (Transition, error) {
	var tr Transition

	started, lobbyErr := s.PollLobbyStatus(ctx, gameID)
	if errors.Is(lobbyErr, ErrGameNotFound) {
		return tr, lobbyErr
	}
	tr.Started = started

	finished, resultErr := s.PollMatchResult(ctx, gameID)
	tr.Finished = finished

	return tr, errors.Join(lobbyErr, resultErr)
}

// ForceFinish finishes a game without a result. No-op on finished games.
func (s *GameService) ForceFinish(ctx context.Context, gameID string) error {
	game, err := s.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	if game.Status() == models.GameStatusFinished {
		return nil
	}

	now := notBefore(s.now(), game.CreatedAt)
	res := s.DB.WithContext(ctx).Model(&models.GameInstance{}).
		Where("id = ? AND finished_at IS NULL", gameID).
		Updates(map[string]interface{}{
			"finished_at": now,
			"started_at":  gorm.Expr("COALESCE(started_at, ?)", now),
		})
	if res.Error != nil {
		return fmt.Errorf("force finish game %s: %w", gameID, res.Error)
	}
	if res.RowsAffected > 0 {
		s.Log.Info("game force-finished", zap.String("game_id", gameID))
	}
	return nil
}

// GetGame retrieves a game by ID.
func (s *GameService) GetGame(ctx context.Context, id string) (*models.GameInstance, error) {
	var game models.GameInstance
	if err := s.DB.WithContext(ctx).First(&game, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("get game %s: %w", id, err)
	}
	return &game, nil
}

// GetGameByCode retrieves a game by its provider join code.
func (s *GameService) GetGameByCode(ctx context.Context, code string) (*models.GameInstance, error) {
	var game models.GameInstance
	if err := s.DB.WithContext(ctx).First(&game, "join_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("get game by code %s: %w", code, err)
	}
	return &game, nil
}

func (s *GameService) OpenGames(ctx context.Context, tournamentID string) ([]models.GameInstance, error) {
	return s.GamesByStatus(ctx, tournamentID, models.GameStatusOpen)
}

func (s *GameService) ActiveGames(ctx context.Context, tournamentID string) ([]models.GameInstance, error) {
	return s.GamesByStatus(ctx, tournamentID, models.GameStatusActive)
}

func (s *GameService) FinishedGames(ctx context.Context, tournamentID string) ([]models.GameInstance, error) {
	return s.GamesByStatus(ctx, tournamentID, models.GameStatusFinished)
}

// GamesByStatus lists the games of a tournament in the given state, oldest
// first.
func (s *GameService) GamesByStatus(ctx context.Context, tournamentID string, status models.GameStatus) ([]models.GameInstance, error) {
	var games []models.GameInstance
	if err := s.DB.WithContext(ctx).
		Where("tournament_id = ?", tournamentID).
		Scopes(models.WithStatus(status)).
		Order("created_at ASC").
		Find(&games).Error; err != nil {
		return nil, fmt.Errorf("list %s games: %w", status, err)
	}
	return games, nil
}

// PendingGames lists every open or active game across all tournaments.
func (s *GameService) PendingGames(ctx context.Context) ([]models.GameInstance, error) {
	var games []models.GameInstance
	if err := s.DB.WithContext(ctx).
		Scopes(models.Pending).
		Order("created_at ASC").
		Find(&games).Error; err != nil {
		return nil, fmt.Errorf("list pending games: %w", err)
	}
	return games, nil
}

// JoinGame adds identity to the game. Joining twice is not an error; joined
// reports whether a row was written.
func (s *GameService) JoinGame(ctx context.Context, gameID, identity string) (joined bool, err error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return false, ErrIdentityRequired
	}
	game, err := s.GetGame(ctx, gameID)
	if err != nil {
		return false, err
	}
	if game.Status() == models.GameStatusFinished {
		return false, ErrGameFinished
	}

	participant := models.Participant{
		ID:             uuid.NewString(),
		GameInstanceID: gameID,
		Identity:       identity,
		JoinedAt:       s.now(),
	}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "game_instance_id"}, {Name: "identity"}},
		DoNothing: true,
	}).Create(&participant)
	if res.Error != nil {
		return false, fmt.Errorf("join game %s: %w", gameID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Participants lists the identities that joined a game, in join order.
func (s *GameService) Participants(ctx context.Context, gameID string) ([]models.Participant, error) {
	if _, err := s.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	var participants []models.Participant
	if err := s.DB.WithContext(ctx).
		Where("game_instance_id = ?", gameID).
		Order("joined_at ASC").
		Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return participants, nil
}

func (s *GameService) now() time.Time {
	return s.Clock.Now().UTC()
}

// notBefore keeps timestamps of a game monotonic under clock skew.
func notBefore(t, floor time.Time) time.Time {
	if t.Before(floor) {
		return floor
	}
	return t
}
