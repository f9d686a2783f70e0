package models

import (
	"time"
)

// GameInstance records one scheduled match hosted by the provider and
// identified by its join code. Status is derived from the timestamps, see
// DeriveStatus.
type GameInstance struct {
	ID           string `gorm:"primaryKey" json:"id"`
	TournamentID string `gorm:"index;not null" json:"tournament_id"`
	MapID        string `gorm:"type:varchar(32);not null" json:"map_id"`
	TeamSize     int    `gorm:"not null;default:5" json:"team_size"`
	CreatorID    string `gorm:"not null" json:"creator_id"`
	JoinCode     string `gorm:"uniqueIndex;not null" json:"join_code"`

	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `gorm:"index" json:"finished_at,omitempty"`

	// Game outcome
	MatchID    string `json:"match_id,omitempty"`
	Result     string `gorm:"type:text" json:"result,omitempty"` // raw end-of-game payload
	ArchiveURL string `json:"archive_url,omitempty"`

	Participants []Participant `gorm:"foreignKey:GameInstanceID" json:"participants,omitempty"`
}

// Status of the game derived from its timestamps.
func (g *GameInstance) Status() GameStatus {
	return DeriveStatus(g.StartedAt, g.FinishedAt)
}
