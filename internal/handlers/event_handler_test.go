package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicvoice/backend/internal/models"
)

func TestEventsAndRSVP(t *testing.T) {
	e := newEnv(t)
	admin := e.createAdmin()
	user := e.createUser("u", "Rita Rsvp", "rita@example.com")

	rec := e.do(http.MethodPost, "/api/admin/events", models.EventRequest{Name: ""}, admin)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec, nil).Errors, "name")

	rec = e.do(http.MethodPost, "/api/admin/events", models.EventRequest{
		Name:     "Board meeting",
		Location: "District office",
		Date:     time.Now().Add(72 * time.Hour),
		IsActive: true,
	}, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var event models.Event
	decode(t, rec, &event)

	rec = e.do(http.MethodPost, "/api/admin/events", models.EventRequest{
		Name: "Draft", Date: time.Now().Add(96 * time.Hour),
	}, admin)
	require.Equal(t, http.StatusCreated, rec.Code)
	var draft models.Event
	decode(t, rec, &draft)

	var events []models.EventDetail
	decode(t, e.do(http.MethodGet, "/api/events", nil, nil), &events)
	require.Len(t, events, 1)
	assert.Equal(t, "Board meeting", events[0].Name)

	decode(t, e.do(http.MethodGet, "/api/admin/events", nil, admin), &events)
	assert.Len(t, events, 2)

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/events/"+draft.ID, nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/api/events/"+draft.ID+"/rsvp", nil, user).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/api/events/"+event.ID+"/rsvp", nil, nil).Code)

	rec = e.do(http.MethodPost, "/api/events/"+event.ID+"/rsvp", nil, user)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var detail models.EventDetail
	decode(t, rec, &detail)
	assert.True(t, detail.Attending)
	assert.EqualValues(t, 1, detail.AttendeeCount)

	// RSVPing twice is a no-op.
	decode(t, e.do(http.MethodPost, "/api/events/"+event.ID+"/rsvp", nil, user), &detail)
	assert.EqualValues(t, 1, detail.AttendeeCount)

	var attendees []models.Attendee
	decode(t, e.do(http.MethodGet, "/api/admin/events/"+event.ID+"/attendees", nil, admin), &attendees)
	require.Len(t, attendees, 1)
	assert.Equal(t, user.Account.ID, attendees[0].AccountID)

	require.Equal(t, http.StatusOK, e.do(http.MethodDelete, "/api/events/"+event.ID+"/rsvp", nil, user).Code)
	decode(t, e.do(http.MethodGet, "/api/events/"+event.ID, nil, user), &detail)
	assert.False(t, detail.Attending)
	assert.Zero(t, detail.AttendeeCount)
}

func TestAdminUpdateAndDeleteEvent(t *testing.T) {
	e := newEnv(t)
	admin := e.createAdmin()

	rec := e.do(http.MethodPost, "/api/admin/events", models.EventRequest{Name: "Town hall", Date: time.Now(), IsActive: true}, admin)
	require.Equal(t, http.StatusCreated, rec.Code)
	var event models.Event
	decode(t, rec, &event)

	rec = e.do(http.MethodPut, "/api/admin/events/"+event.ID, models.EventRequest{Name: "Town hall (moved)", Date: time.Now(), IsActive: false}, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &event)
	assert.Equal(t, "Town hall (moved)", event.Name)
	assert.False(t, event.IsActive)

	assert.Equal(t, http.StatusOK, e.do(http.MethodDelete, "/api/admin/events/"+event.ID, nil, admin).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/api/admin/events/"+event.ID, nil, admin).Code)

	var revs []models.Revision
	decode(t, e.do(http.MethodGet, "/api/admin/revisions/event/"+event.ID, nil, admin), &revs)
	assert.NotEmpty(t, revs)
}
