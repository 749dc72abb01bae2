package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Event struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	Name        string    `json:"name" gorm:"size:255;not null"`
	Description string    `json:"description" gorm:"size:2000"`
	Location    string    `json:"location" gorm:"size:255"`
	Date        time.Time `json:"date" gorm:"index"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Attendees []Attendee `json:"attendees,omitempty" gorm:"constraint:OnDelete:CASCADE"`
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// Attendee is an RSVP of an account to an event.
type Attendee struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	EventID   string    `json:"event_id" gorm:"size:36;not null;uniqueIndex:idx_attendee_event_account"`
	AccountID string    `json:"account_id" gorm:"size:36;not null;uniqueIndex:idx_attendee_event_account"`
	CreatedAt time.Time `json:"created_at"`

	Account *Account `json:"account,omitempty" gorm:"constraint:OnDelete:CASCADE"`
}

func (a *Attendee) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// EventDetail is an event plus the caller's RSVP state.
type EventDetail struct {
	Event
	AttendeeCount int64 `json:"attendee_count"`
	Attending     bool  `json:"attending"`
}

type EventRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Date        time.Time `json:"date"`
	IsActive    bool      `json:"is_active"`
}

func (r *EventRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if strings.TrimSpace(r.Name) == "" {
		errors["name"] = "Event name is required"
	}
	if r.Date.IsZero() {
		errors["date"] = "Event date is required"
	}
	if len(r.Description) > MaxFreeTextLength {
		errors["description"] = "Description is too long"
	}

	return errors
}

func (r *EventRequest) Apply(e *Event) {
	e.Name = strings.TrimSpace(r.Name)
	e.Description = strings.TrimSpace(r.Description)
	e.Location = strings.TrimSpace(r.Location)
	e.Date = r.Date.UTC()
	e.IsActive = r.IsActive
}
