package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/services"
	"github.com/civicvoice/backend/internal/testutil"
)

func TestRSVPFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, e.db, "alice", "Alice A", "alice@example.com")
	bob := testutil.CreateUser(t, e.db, "bob", "Bob B", "bob@example.com")

	event, err := e.events.Create(ctx, "admin", &models.EventRequest{
		Name:     " Board meeting ",
		Date:     mustDate(t, "2030-05-01"),
		IsActive: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Board meeting", event.Name)

	detail, err := e.events.RSVP(ctx, event.ID, alice.Account.ID)
	require.NoError(t, err)
	assert.True(t, detail.Attending)
	assert.Equal(t, int64(1), detail.AttendeeCount)

	// Repeating an RSVP does not double count.
	detail, err = e.events.RSVP(ctx, event.ID, alice.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), detail.AttendeeCount)

	_, err = e.events.RSVP(ctx, event.ID, bob.Account.ID)
	require.NoError(t, err)

	list, err := e.events.List(ctx, alice.Account.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].AttendeeCount)
	assert.True(t, list[0].Attending)

	attendees, err := e.events.Attendees(ctx, event.ID)
	require.NoError(t, err)
	assert.Len(t, attendees, 2)

	require.NoError(t, e.events.CancelRSVP(ctx, event.ID, alice.Account.ID))
	assert.ErrorIs(t, e.events.CancelRSVP(ctx, event.ID, alice.Account.ID), services.ErrNotFound)

	detail, err = e.events.Get(ctx, event.ID, alice.Account.ID, false)
	require.NoError(t, err)
	assert.False(t, detail.Attending)
	assert.Equal(t, int64(1), detail.AttendeeCount)
}

func TestInactiveEventsHidden(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, e.db, "u", "Us Er", "u@example.com")

	event, err := e.events.Create(ctx, "admin", &models.EventRequest{Name: "Draft", Date: mustDate(t, "2030-05-01")})
	require.NoError(t, err)

	list, err := e.events.List(ctx, "", false)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = e.events.List(ctx, "", true)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = e.events.Get(ctx, event.ID, "", false)
	assert.ErrorIs(t, err, services.ErrNotFound)
	_, err = e.events.RSVP(ctx, event.ID, user.Account.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestDeleteEventDetachesComments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, e.db, "u", "Us Er", "u@example.com")

	event, err := e.events.Create(ctx, "admin", &models.EventRequest{Name: "Forum", Date: mustDate(t, "2030-05-01"), IsActive: true})
	require.NoError(t, err)
	_, err = e.events.RSVP(ctx, event.ID, user.Account.ID)
	require.NoError(t, err)
	c, err := e.comments.Create(ctx, user.Account, &models.CreateCommentRequest{Text: "see you there", EventID: &event.ID})
	require.NoError(t, err)

	require.NoError(t, e.events.Delete(ctx, "admin", event.ID))

	kept, err := e.comments.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, kept.EventID)

	var n int64
	require.NoError(t, e.db.Model(&models.Attendee{}).Count(&n).Error)
	assert.Zero(t, n)
	assert.ErrorIs(t, e.events.Delete(ctx, "admin", event.ID), services.ErrNotFound)
}
