package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/civicvoice/backend/internal/models"
)

type EventService struct {
	db        *gorm.DB
	revisions *Revisions
}

func NewEventService(db *gorm.DB, revisions *Revisions) *EventService {
	return &EventService{db: db, revisions: revisions}
}

// List returns events in date order with attendee counts and the RSVP state
// of accountID (which may be empty).
func (s *EventService) List(ctx context.Context, accountID string, includeInactive bool) ([]models.EventDetail, error) {
	db := s.db.WithContext(ctx)

	q := db.Order("date")
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	var events []models.Event
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}

	var counts []struct {
		EventID string
		Total   int64
	}
	err := db.Model(&models.Attendee{}).Select("event_id, COUNT(*) AS total").Group("event_id").Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	countByEvent := make(map[string]int64, len(counts))
	for _, c := range counts {
		countByEvent[c.EventID] = c.Total
	}

	attending := map[string]bool{}
	if accountID != "" {
		var ids []string
		if err := db.Model(&models.Attendee{}).Where("account_id = ?", accountID).Pluck("event_id", &ids).Error; err != nil {
			return nil, err
		}
		for _, id := range ids {
			attending[id] = true
		}
	}

	out := make([]models.EventDetail, 0, len(events))
	for _, e := range events {
		out = append(out, models.EventDetail{
			Event:         e,
			AttendeeCount: countByEvent[e.ID],
			Attending:     attending[e.ID],
		})
	}
	return out, nil
}

func (s *EventService) Get(ctx context.Context, id, accountID string, includeInactive bool) (*models.EventDetail, error) {
	db := s.db.WithContext(ctx)

	var e models.Event
	if err := db.First(&e, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	if !e.IsActive && !includeInactive {
		return nil, ErrNotFound
	}

	detail := &models.EventDetail{Event: e}
	if err := db.Model(&models.Attendee{}).Where("event_id = ?", id).Count(&detail.AttendeeCount).Error; err != nil {
		return nil, err
	}
	if accountID != "" {
		var n int64
		if err := db.Model(&models.Attendee{}).Where("event_id = ? AND account_id = ?", id, accountID).Count(&n).Error; err != nil {
			return nil, err
		}
		detail.Attending = n > 0
	}
	return detail, nil
}

func (s *EventService) Create(ctx context.Context, actorID string, req *models.EventRequest) (*models.Event, error) {
	e := &models.Event{}
	req.Apply(e)
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	s.revisions.Record(ctx, KindEvent, e.ID, actorID, "created", e)
	return e, nil
}

func (s *EventService) Update(ctx context.Context, actorID, id string, req *models.EventRequest) (*models.Event, error) {
	var e models.Event
	db := s.db.WithContext(ctx)
	if err := db.First(&e, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	req.Apply(&e)
	if err := db.Omit("Attendees").Save(&e).Error; err != nil {
		return nil, err
	}
	s.revisions.Record(ctx, KindEvent, e.ID, actorID, "updated", &e)
	return &e, nil
}

// Delete removes the event and its RSVPs; comments about it are kept and
// detached.
func (s *EventService) Delete(ctx context.Context, actorID, id string) error {
	var e models.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&e, "id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", id).Delete(&models.Attendee{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Comment{}).Where("event_id = ?", id).UpdateColumn("event_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Event{}, "id = ?", id).Error
	})
	if err != nil {
		return translate(err)
	}
	s.revisions.Record(ctx, KindEvent, e.ID, actorID, "deleted", &e)
	return nil
}

// RSVP records attendance. Repeating an RSVP is a no-op.
func (s *EventService) RSVP(ctx context.Context, eventID, accountID string) (*models.EventDetail, error) {
	db := s.db.WithContext(ctx)

	var e models.Event
	if err := db.First(&e, "id = ?", eventID).Error; err != nil {
		return nil, translate(err)
	}
	if !e.IsActive {
		return nil, ErrNotFound
	}

	var att models.Attendee
	err := db.Where(models.Attendee{EventID: eventID, AccountID: accountID}).FirstOrCreate(&att).Error
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, eventID, accountID, false)
}

func (s *EventService) CancelRSVP(ctx context.Context, eventID, accountID string) error {
	res := s.db.WithContext(ctx).Where("event_id = ? AND account_id = ?", eventID, accountID).Delete(&models.Attendee{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *EventService) Attendees(ctx context.Context, eventID string) ([]models.Attendee, error) {
	db := s.db.WithContext(ctx)
	if err := db.First(&models.Event{}, "id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	attendees := []models.Attendee{}
	if err := db.Preload("Account").Where("event_id = ?", eventID).Order("created_at").Find(&attendees).Error; err != nil {
		return nil, err
	}
	return attendees, nil
}
