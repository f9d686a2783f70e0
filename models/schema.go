package models

import (
	"fmt"

	"gorm.io/gorm"
)

// Partial unique indexes carrying the two global invariants. Both dialects we
// run on (PostgreSQL, SQLite) accept this syntax.
var invariantIndexes = []string{
	// at most one tournament with completed = false
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_tournaments_single_active
		ON tournaments (completed) WHERE completed = false`,
	// at most one unfinished game per map inside a tournament
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_game_instances_pending_map
		ON game_instances (tournament_id, map_id) WHERE finished_at IS NULL`,
}

// Migrate creates or updates the tables and the invariant indexes.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Tournament{},
		&GameInstance{},
		&Participant{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	for _, stmt := range invariantIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create invariant index: %w", err)
		}
	}
	return nil
}
