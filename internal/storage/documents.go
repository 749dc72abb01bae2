package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/civicvoice/backend/internal/models"
)

// Documents stores semi-structured records that do not belong in the
// relational schema: admin revision snapshots and raw webhook payloads.
type Documents interface {
	RecordRevision(ctx context.Context, rev models.Revision) error
	ListRevisions(ctx context.Context, kind, objectID string) ([]models.Revision, error)
	LogWebhook(ctx context.Context, ev models.WebhookEvent) error
}

// MemoryDocuments is an in-process Documents used when no Mongo URI is
// configured.
type MemoryDocuments struct {
	mu        sync.RWMutex
	revisions []models.Revision
	webhooks  []models.WebhookEvent
}

func NewMemoryDocuments() *MemoryDocuments {
	return &MemoryDocuments{}
}

func (m *MemoryDocuments) RecordRevision(ctx context.Context, rev models.Revision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revisions = append(m.revisions, rev)
	return nil
}

func (m *MemoryDocuments) ListRevisions(ctx context.Context, kind, objectID string) ([]models.Revision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Revision{}
	for _, r := range m.revisions {
		if r.Kind == kind && r.ObjectID == objectID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryDocuments) LogWebhook(ctx context.Context, ev models.WebhookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhooks = append(m.webhooks, ev)
	return nil
}

// Webhooks returns a copy of the logged webhook events.
func (m *MemoryDocuments) Webhooks() []models.WebhookEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.WebhookEvent, len(m.webhooks))
	copy(out, m.webhooks)
	return out
}
