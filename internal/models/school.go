package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DateLayout = "2006-01-02"

type School struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	Name         string    `json:"name" gorm:"size:255;not null"`
	NCESSchoolID int64     `json:"nces_school_id" gorm:"uniqueIndex"`
	Phone        string    `json:"phone" gorm:"size:30"`
	IsCharter    bool      `json:"is_charter"`
	IsMagnet     bool      `json:"is_magnet"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *School) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

func (s *School) Validate() map[string]string {
	errors := make(map[string]string)

	if strings.TrimSpace(s.Name) == "" {
		errors["name"] = "School name is required"
	}
	if s.NCESSchoolID <= 0 {
		errors["nces_school_id"] = "NCES school id is required"
	}
	if s.Latitude < -90 || s.Latitude > 90 {
		errors["latitude"] = "Latitude is out of range"
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		errors["longitude"] = "Longitude is out of range"
	}

	return errors
}

// Assignment pairs an account with a school on a date (a sign-up sheet entry).
type Assignment struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	AccountID string    `json:"account_id" gorm:"size:36;not null;uniqueIndex:idx_assignment_slot"`
	SchoolID  string    `json:"school_id" gorm:"size:36;not null;uniqueIndex:idx_assignment_slot"`
	Date      time.Time `json:"date" gorm:"not null;uniqueIndex:idx_assignment_slot"`
	CreatedAt time.Time `json:"created_at"`

	Account *Account `json:"account,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	School  *School  `json:"school,omitempty" gorm:"constraint:OnDelete:CASCADE"`
}

func (a *Assignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

type CreateAssignmentRequest struct {
	SchoolID string `json:"school_id"`
	Date     string `json:"date"`
}

// Validate checks the request and returns the parsed date on success.
func (r *CreateAssignmentRequest) Validate() (time.Time, map[string]string) {
	errors := make(map[string]string)

	if strings.TrimSpace(r.SchoolID) == "" {
		errors["school_id"] = "School is required"
	}
	date, err := time.Parse(DateLayout, strings.TrimSpace(r.Date))
	if err != nil {
		errors["date"] = "Date must be formatted YYYY-MM-DD"
	}

	return date, errors
}
