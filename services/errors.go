package services

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Error classes. Every error below wraps exactly one of them so callers can
// branch with errors.Is without knowing the specific cause.
var (
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)

var (
	// conflicts: an invariant would break, nothing was written
	ErrAlreadyActive       = fmt.Errorf("%w: a tournament is already active", ErrConflict)
	ErrDuplicateActiveGame = fmt.Errorf("%w: a game on this map is already open or active", ErrConflict)
	ErrTournamentCompleted = fmt.Errorf("%w: tournament is completed", ErrConflict)
	ErrGameFinished        = fmt.Errorf("%w: game is finished", ErrConflict)

	ErrTournamentNotFound = fmt.Errorf("%w: tournament", ErrNotFound)
	ErrGameNotFound       = fmt.Errorf("%w: game", ErrNotFound)

	ErrInvalidMap       = fmt.Errorf("%w: unsupported map", ErrValidation)
	ErrInvalidTeamSize  = fmt.Errorf("%w: team size must be between 1 and 5", ErrValidation)
	ErrNameRequired     = fmt.Errorf("%w: name is required", ErrValidation)
	ErrIdentityRequired = fmt.Errorf("%w: identity is required", ErrValidation)
)

// isUniqueViolation recognises a unique index rejection from either dialect.
// gorm.ErrDuplicatedKey requires TranslateError on the handle.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
