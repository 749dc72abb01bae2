package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/storage"
)

// NewTestDB returns a migrated in-memory SQLite database private to the test.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := storage.OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close(db) })
	return db
}

// CreateUser inserts a user (and, through the model hook, its account).
func CreateUser(t *testing.T, db *gorm.DB, username, name, email string) *models.User {
	t.Helper()

	user := &models.User{
		Username: username,
		Name:     name,
		Email:    email,
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return user
}
