package models

import "time"

// Participant is one identity's membership in a GameInstance. Membership is
// append-only and unique per (game, identity).
type Participant struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	GameInstanceID string    `gorm:"not null;uniqueIndex:idx_participants_game_identity" json:"game_instance_id"`
	Identity       string    `gorm:"not null;uniqueIndex:idx_participants_game_identity" json:"identity"`
	JoinedAt       time.Time `gorm:"not null" json:"joined_at"`
}
