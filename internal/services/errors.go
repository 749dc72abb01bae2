package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/civicvoice/backend/internal/logging"
	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/storage"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("already exists")
	ErrInvalidTransition = errors.New("invalid comment status transition")
	ErrConfirmRequired   = errors.New("deletion must be confirmed")
	ErrNotConfigured     = errors.New("integration not configured")
)

// Revision kinds.
const (
	KindUser    = "user"
	KindAccount = "account"
	KindComment = "comment"
	KindEvent   = "event"
)

// DefaultRequestTimeout bounds a single handler's database work.
func DefaultRequestTimeout() time.Duration {
	return 10 * time.Second
}

// DefaultAccountTimeout bounds account deletion, which touches every table.
func DefaultAccountTimeout() time.Duration {
	return 30 * time.Second
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Revisions appends admin-edit snapshots to the document store. A nil
// Revisions records nothing.
type Revisions struct {
	docs storage.Documents
}

func NewRevisions(docs storage.Documents) *Revisions {
	return &Revisions{docs: docs}
}

func (r *Revisions) Record(ctx context.Context, kind, id, actor, comment string, obj interface{}) {
	if r == nil || r.docs == nil {
		return
	}
	rev := models.Revision{
		Kind:      kind,
		ObjectID:  id,
		Actor:     actor,
		Comment:   comment,
		Snapshot:  snapshot(obj),
		CreatedAt: time.Now().UTC(),
	}
	if err := r.docs.RecordRevision(ctx, rev); err != nil {
		logging.Component("revisions").WithError(err).
			WithField("kind", kind).WithField("id", id).Warn("record revision failed")
	}
}

func (r *Revisions) List(ctx context.Context, kind, id string) ([]models.Revision, error) {
	if r == nil || r.docs == nil {
		return []models.Revision{}, nil
	}
	return r.docs.ListRevisions(ctx, kind, id)
}

func snapshot(obj interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	raw, err := json.Marshal(obj)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}
