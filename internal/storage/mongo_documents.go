package storage

import (
	"context"
	"crypto/tls"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/civicvoice/backend/internal/models"
)

type MongoDocuments struct {
	client       *mongo.Client
	db           *mongo.Database
	revisionsCol *mongo.Collection
	webhooksCol  *mongo.Collection
}

func NewMongoDocuments(ctx context.Context, mongoURI, dbName string) (*MongoDocuments, error) {
	// Atlas rejects some TLS 1.3 handshakes from Cloud Run; pin 1.2.
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS12,
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI).SetTLSConfig(tlsCfg))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database(dbName)
	revisions := db.Collection("revisions")
	webhooks := db.Collection("webhook_events")

	// Best-effort indexes.
	_, _ = revisions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "kind", Value: 1}, {Key: "object_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	_, _ = webhooks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "source", Value: 1}, {Key: "received_at", Value: -1}}},
		{Keys: bson.D{{Key: "email", Value: 1}}},
	})

	return &MongoDocuments{
		client:       client,
		db:           db,
		revisionsCol: revisions,
		webhooksCol:  webhooks,
	}, nil
}

func (s *MongoDocuments) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoDocuments) RecordRevision(ctx context.Context, rev models.Revision) error {
	if rev.CreatedAt.IsZero() {
		rev.CreatedAt = time.Now().UTC()
	}
	_, err := s.revisionsCol.InsertOne(ctx, rev)
	return err
}

func (s *MongoDocuments) ListRevisions(ctx context.Context, kind, objectID string) ([]models.Revision, error) {
	cur, err := s.revisionsCol.Find(ctx,
		bson.M{"kind": kind, "object_id": objectID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(100),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Revision{}
	for cur.Next(ctx) {
		var rev models.Revision
		if err := cur.Decode(&rev); err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, cur.Err()
}

func (s *MongoDocuments) LogWebhook(ctx context.Context, ev models.WebhookEvent) error {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	_, err := s.webhooksCol.InsertOne(ctx, ev)
	return err
}
