package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// GameStatus is the lifecycle state of a GameInstance. It is never stored;
// DeriveStatus computes it from started_at / finished_at.
type GameStatus string

const (
	GameStatusOpen     GameStatus = "open"     // waiting for the provider lobby
	GameStatusActive   GameStatus = "active"   // players in lobby or game running
	GameStatusFinished GameStatus = "finished" // concluded, result may be missing
)

// DeriveStatus maps the game timestamps onto the state machine.
func DeriveStatus(startedAt, finishedAt *time.Time) GameStatus {
	switch {
	case finishedAt != nil:
		return GameStatusFinished
	case startedAt != nil:
		return GameStatusActive
	default:
		return GameStatusOpen
	}
}

// ParseGameStatus accepts the lowercase names used by the HTTP surface.
func ParseGameStatus(s string) (GameStatus, error) {
	switch st := GameStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case GameStatusOpen, GameStatusActive, GameStatusFinished:
		return st, nil
	default:
		return "", fmt.Errorf("unknown game status %q", s)
	}
}

// WithStatus is the SQL form of DeriveStatus, for use with db.Scopes.
func WithStatus(status GameStatus) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch status {
		case GameStatusOpen:
			return db.Where("started_at IS NULL AND finished_at IS NULL")
		case GameStatusActive:
			return db.Where("started_at IS NOT NULL AND finished_at IS NULL")
		case GameStatusFinished:
			return db.Where("finished_at IS NOT NULL")
		default:
			_ = db.AddError(fmt.Errorf("unknown game status %q", status))
			return db
		}
	}
}

// Pending selects games that are not finished yet (open or active).
func Pending(db *gorm.DB) *gorm.DB {
	return db.Where("finished_at IS NULL")
}
