package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RelationState is the lifecycle state of a relation
type RelationState string

const (
	RelationPending  RelationState = "PENDING"
	RelationApproved RelationState = "APPROVED"
	RelationRejected RelationState = "REJECTED"
)

// ParseRelationState parses a state name case-insensitively
func ParseRelationState(s string) (RelationState, error) {
	switch st := RelationState(strings.ToUpper(strings.TrimSpace(s))); st {
	case RelationPending, RelationApproved, RelationRejected:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown relation state %q", ErrValidation, s)
	}
}

// Relation is a directed expression of interest from Initiator toward Aim
type Relation struct {
	ID          int64
	InitiatorID int64
	AimID       int64
	State       RelationState
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Involves reports whether the profile is either participant
func (r *Relation) Involves(profileID int64) bool {
	return r.InitiatorID == profileID || r.AimID == profileID
}

// Counterparty returns the other participant
func (r *Relation) Counterparty(profileID int64) int64 {
	if r.InitiatorID == profileID {
		return r.AimID
	}
	return r.InitiatorID
}

// RelationRepository defines data access for relations.
//
// Create, Transition and DeleteIfState are atomic at the store boundary: Create fails
// with ErrConflict when a relation already exists for the pair in either direction,
// Transition and DeleteIfState report ErrNotFound when the expected state does not hold.
type RelationRepository interface {
	Create(ctx context.Context, relation *Relation) error
	GetByID(ctx context.Context, id int64) (*Relation, error)
	GetByPair(ctx context.Context, initiatorID, aimID int64) (*Relation, error)
	ListByInitiator(ctx context.Context, initiatorID int64) ([]*Relation, error)
	ListByAim(ctx context.Context, aimID int64) ([]*Relation, error)
	Transition(ctx context.Context, id int64, from, to RelationState) error
	DeleteIfState(ctx context.Context, id int64, state RelationState) error
}
