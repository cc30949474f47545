package domain

import (
	"context"
	"time"
)

// Event types written to the outbox
const (
	EventProfileRegistered = "profile.registered"
	EventProfileDeleted    = "profile.deleted"
	EventRelationLiked     = "relation.liked"
	EventRelationMatched   = "relation.matched"
	EventRelationApproved  = "relation.approved"
	EventRelationRejected  = "relation.rejected"
	EventRelationDeleted   = "relation.deleted"
)

// OutboxEvent is a domain event waiting to be published
type OutboxEvent struct {
	ID          string
	Topic       string
	Key         string
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// OutboxRepository stores events until the outbox worker publishes them
type OutboxRepository interface {
	Add(ctx context.Context, topic, key string, payload []byte) error
	FetchUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkPublished(ctx context.Context, id string) error
}

// EventPublisher delivers events to the message broker
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key, payload []byte) error
}

// RevocationList remembers logged-out session tokens until they expire
type RevocationList interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
