package models

import (
	"time"
)

// Tournament is one competitive event window. At most one row may have
// Completed == false at any time (see Migrate).
type Tournament struct {
	ID                   string `json:"id" gorm:"primaryKey"`
	ProviderTournamentID int64  `json:"provider_tournament_id" gorm:"not null;default:0"`
	ProviderID           int64  `json:"provider_id" gorm:"not null"`
	Name                 string `json:"name" gorm:"not null"`
	Slug                 string `json:"slug" gorm:"index"`
	Metadata             string `json:"metadata" gorm:"type:text"`
	Completed            bool   `json:"completed" gorm:"not null;default:false"`

	// Relationships
	Games []GameInstance `json:"games,omitempty" gorm:"foreignKey:TournamentID"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
