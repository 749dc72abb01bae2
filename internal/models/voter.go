package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Voter is one row of the imported voter roll used to verify accounts.
type Voter struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	VoterID   string    `json:"voter_id" gorm:"size:64;uniqueIndex;not null"`
	Name      string    `json:"name" gorm:"size:255;not null"`
	Zone      *Zone     `json:"zone"`
	CreatedAt time.Time `json:"created_at"`
}

func (v *Voter) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

// VoterMatch is the outcome of matching an account name against the roll.
type VoterMatch struct {
	Matched bool   `json:"matched"`
	Score   int    `json:"score"`
	Voter   *Voter `json:"voter,omitempty"`
}
