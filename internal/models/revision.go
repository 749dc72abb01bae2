package models

import "time"

// Revision is a point-in-time JSON snapshot of an admin-edited row.
type Revision struct {
	Kind      string                 `json:"kind" bson:"kind"`
	ObjectID  string                 `json:"object_id" bson:"object_id"`
	Actor     string                 `json:"actor" bson:"actor"`
	Comment   string                 `json:"comment,omitempty" bson:"comment,omitempty"`
	Snapshot  map[string]interface{} `json:"snapshot" bson:"snapshot"`
	CreatedAt time.Time              `json:"created_at" bson:"created_at"`
}

// WebhookEvent records one inbound third-party callback as received.
type WebhookEvent struct {
	Source     string                 `json:"source" bson:"source"`
	Type       string                 `json:"type" bson:"type"`
	Email      string                 `json:"email,omitempty" bson:"email,omitempty"`
	Payload    map[string]interface{} `json:"payload" bson:"payload"`
	ReceivedAt time.Time              `json:"received_at" bson:"received_at"`
}
