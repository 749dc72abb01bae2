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

func TestLoginFromProfileCreatesUserAndAccount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	profile := &models.IdentityProfile{
		Subject: "fb|123",
		Name:    "Jane Doe",
		Email:   "jane@example.com",
		Raw:     map[string]interface{}{"name": "Jane Doe"},
	}
	user, created, err := e.users.LoginFromProfile(ctx, profile)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, user.IsActive)
	require.NotNil(t, user.LastLogin)
	require.NotNil(t, user.Account)
	assert.Equal(t, "Jane Doe", user.Account.Name)
	assert.Equal(t, "jane@example.com", user.Account.Email)

	var count int64
	require.NoError(t, e.db.Model(&models.Account{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, []string{services.JobEmailWelcome, services.JobMailingListUpsert}, e.queue.PendingTypes())

	e.queue.Reset()
	profile.Name = "Jane Q. Doe"
	again, created, err := e.users.LoginFromProfile(ctx, profile)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, "Jane Q. Doe", again.Name)
	assert.Equal(t, []string{services.JobMailingListUpsert}, e.queue.PendingTypes())

	require.NoError(t, e.db.Model(&models.Account{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count, "a second login must not create another account")
}

func TestCreateUserWithoutNameUsesPlaceholder(t *testing.T) {
	e := newEnv(t)

	user, created, err := e.users.CreateFromProvider(context.Background(), "fb|anon", "", "anon@example.com")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.DefaultUserName, user.Name)
	assert.Equal(t, "", user.Account.Name)

	_, created, err = e.users.CreateFromProvider(context.Background(), "fb|anon", "", "anon@example.com")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestDeleteUserCascades(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	user := testutil.CreateUser(t, e.db, "fb|del", "Del Eted", "del@example.com")
	acct := user.Account
	require.NotNil(t, acct)

	event, err := e.events.Create(ctx, "admin", &models.EventRequest{Name: "Town hall", Date: mustDate(t, "2030-01-02"), IsActive: true})
	require.NoError(t, err)
	_, err = e.events.RSVP(ctx, event.ID, acct.ID)
	require.NoError(t, err)
	_, err = e.comments.Create(ctx, acct, &models.CreateCommentRequest{Text: "hello"})
	require.NoError(t, err)
	school := &models.School{Name: "Lincoln", NCESSchoolID: 1}
	require.NoError(t, e.db.Create(school).Error)
	_, err = e.assigns.Create(ctx, acct.ID, school.ID, mustDate(t, "2030-01-03"))
	require.NoError(t, err)
	e.queue.Reset()

	require.NoError(t, e.users.Delete(ctx, user.ID))

	for _, model := range []interface{}{&models.User{}, &models.Account{}, &models.Comment{}, &models.Attendee{}, &models.Assignment{}} {
		var n int64
		require.NoError(t, e.db.Model(model).Count(&n).Error)
		assert.Zero(t, n, "%T rows left behind", model)
	}
	assert.Equal(t,
		[]string{services.JobIdentityDelete, services.JobMailingListDelete, services.JobEmailGoodbye},
		e.queue.PendingTypes())

	assert.ErrorIs(t, e.users.Delete(ctx, user.ID), services.ErrNotFound)
}

func TestDeleteByEmailDomain(t *testing.T) {
	e := newEnv(t)
	testutil.CreateUser(t, e.db, "a", "A One", "a@test.example")
	testutil.CreateUser(t, e.db, "b", "B Two", "B@Test.Example")
	keep := testutil.CreateUser(t, e.db, "c", "C Three", "c@example.com")

	n, err := e.users.DeleteByEmailDomain(context.Background(), "test.example")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = e.users.GetByID(context.Background(), keep.ID)
	assert.NoError(t, err)
}

func TestAdminUpdateAndPromote(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, e.db, "fb|admin", "Ad Min", "admin@example.com")

	yes, no := true, false
	updated, err := e.users.AdminUpdate(ctx, "actor", user.ID, &models.UpdateUserRequest{IsAdmin: &yes, IsActive: &no})
	require.NoError(t, err)
	assert.True(t, updated.IsAdmin)
	assert.False(t, updated.IsActive)

	revs, err := e.revisions.List(ctx, services.KindUser, user.ID)
	require.NoError(t, err)
	assert.Len(t, revs, 1)

	assert.ErrorIs(t, e.users.PromoteAdmin(ctx, "nobody"), services.ErrNotFound)
	require.NoError(t, e.users.PromoteAdmin(ctx, "fb|admin"))
}
