package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/aryan0dhankhar/datingapp/internal/domain"
)

// EventRecorder writes domain events to the outbox. Recording is best effort:
// a failure is logged and never fails the business operation.
type EventRecorder struct {
	outbox domain.OutboxRepository
	logger *slog.Logger
}

// NewEventRecorder creates a recorder; a nil outbox disables recording
func NewEventRecorder(outbox domain.OutboxRepository, logger *slog.Logger) *EventRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventRecorder{outbox: outbox, logger: logger}
}

// ProfileEvent is the payload of profile.* events
type ProfileEvent struct {
	ProfileID int64  `json:"profileId"`
	Name      string `json:"name,omitempty"`
}

// RelationEvent is the payload of relation.* events
type RelationEvent struct {
	RelationID  int64                `json:"relationId"`
	InitiatorID int64                `json:"initiatorId"`
	AimID       int64                `json:"aimId"`
	State       domain.RelationState `json:"state,omitempty"`
}

func (r *EventRecorder) record(ctx context.Context, topic string, key int64, payload any) {
	if r == nil || r.outbox == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("failed to encode event", slog.String("topic", topic), slog.String("error", err.Error()))
		return
	}
	if err := r.outbox.Add(ctx, topic, strconv.FormatInt(key, 10), raw); err != nil {
		r.logger.Error("failed to record event",
			slog.String("topic", topic),
			slog.Int64("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (r *EventRecorder) profile(ctx context.Context, topic string, p *domain.Profile) {
	r.record(ctx, topic, p.ID, ProfileEvent{ProfileID: p.ID, Name: p.Name})
}

func (r *EventRecorder) relation(ctx context.Context, topic string, rel *domain.Relation) {
	r.record(ctx, topic, rel.ID, RelationEvent{
		RelationID:  rel.ID,
		InitiatorID: rel.InitiatorID,
		AimID:       rel.AimID,
		State:       rel.State,
	})
}
