package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aryan0dhankhar/datingapp/internal/domain"
	"github.com/aryan0dhankhar/datingapp/internal/observability/metrics"
	"github.com/aryan0dhankhar/datingapp/internal/observability/tracing"
	"github.com/aryan0dhankhar/datingapp/internal/reliability/retry"
)

// Relation roles used to filter listings
const (
	RoleAny       = ""
	RoleInitiator = "initiator"
	RoleAim       = "aim"
)

// RelationFilter narrows a profile's relation listing
type RelationFilter struct {
	State domain.RelationState // empty means any
	Role  string               // RoleAny, RoleInitiator or RoleAim
}

// ParseRelationFilter builds a filter from query values
func ParseRelationFilter(state, role string) (RelationFilter, error) {
	var f RelationFilter
	if strings.TrimSpace(state) != "" {
		st, err := domain.ParseRelationState(state)
		if err != nil {
			return f, err
		}
		f.State = st
	}
	switch r := strings.ToLower(strings.TrimSpace(role)); r {
	case RoleAny, RoleInitiator, RoleAim:
		f.Role = r
	default:
		return f, fmt.Errorf("%w: unknown role %q", domain.ErrValidation, role)
	}
	return f, nil
}

// RelationView pairs a relation with the profile on the other side
type RelationView struct {
	Relation     *domain.Relation
	Counterparty *domain.Profile
}

// Overview groups a profile's relations the way the profile page shows them
type Overview struct {
	PendingSent     []RelationView
	PendingReceived []RelationView
	Approved        []RelationView
	Rejected        []RelationView
}

// RelationService implements the like/approve/reject state machine
type RelationService struct {
	relations domain.RelationRepository
	profiles  domain.ProfileRepository
	events    *EventRecorder
	retry     *retry.Config
	logger    *slog.Logger
}

// NewRelationService creates a relation service
func NewRelationService(
	relations domain.RelationRepository,
	profiles domain.ProfileRepository,
	events *EventRecorder,
	logger *slog.Logger,
) *RelationService {
	if logger == nil {
		logger = slog.Default()
	}

	return &RelationService{
		relations: relations,
		profiles:  profiles,
		events:    events,
		retry: retry.OnConflict(func(err error) bool {
			if errors.Is(err, domain.ErrConflict) {
				metrics.ObserveLikeRetry()
				return true
			}
			return false
		}),
		logger: logger,
	}
}

// Like records interest of initiator in aim. It returns true when a new pending
// relation was created and false when a reverse relation existed and was approved
// instead (a mutual match).
func (s *RelationService) Like(ctx context.Context, initiatorID, aimID int64) (bool, error) {
	ctx, span := tracing.Start(ctx, "RelationService.Like")
	defer span.End()

	if initiatorID == aimID {
		return false, fmt.Errorf("%w: cannot like yourself", domain.ErrValidation)
	}
	return retry.Do(ctx, s.retry, s.logger, "like", func(ctx context.Context) (bool, error) {
		return s.like(ctx, initiatorID, aimID)
	})
}

func (s *RelationService) like(ctx context.Context, initiatorID, aimID int64) (bool, error) {
	for _, id := range []int64{initiatorID, aimID} {
		ok, err := s.profiles.Exists(ctx, id)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("profile %d: %w", id, domain.ErrNotFound)
		}
	}

	if _, err := s.relations.GetByPair(ctx, initiatorID, aimID); err == nil {
		return false, fmt.Errorf("relation %d->%d: %w", initiatorID, aimID, domain.ErrAlreadyExists)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}

	reverse, err := s.relations.GetByPair(ctx, aimID, initiatorID)
	switch {
	case err == nil:
		return false, s.match(ctx, reverse)
	case !errors.Is(err, domain.ErrNotFound):
		return false, err
	}

	rel := &domain.Relation{InitiatorID: initiatorID, AimID: aimID, State: domain.RelationPending}
	if err := s.relations.Create(ctx, rel); err != nil {
		return false, err
	}
	metrics.ObserveRelationTransition("liked")
	s.events.relation(ctx, domain.EventRelationLiked, rel)
	s.logger.Info("relation created",
		slog.Int64("relation_id", rel.ID),
		slog.Int64("initiator_id", initiatorID),
		slog.Int64("aim_id", aimID),
	)
	return true, nil
}

// match approves the reverse relation whatever its current state. An already
// approved relation is left alone and no event is recorded.
func (s *RelationService) match(ctx context.Context, reverse *domain.Relation) error {
	if reverse.State == domain.RelationApproved {
		return nil
	}
	if err := s.relations.Transition(ctx, reverse.ID, reverse.State, domain.RelationApproved); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("relation %d changed concurrently: %w", reverse.ID, domain.ErrConflict)
		}
		return err
	}
	reverse.State = domain.RelationApproved

	metrics.ObserveRelationTransition("matched")
	s.events.relation(ctx, domain.EventRelationMatched, reverse)
	s.logger.Info("mutual like approved relation", slog.Int64("relation_id", reverse.ID))
	return nil
}

// Approve moves the pending relation initiator->aim to APPROVED
func (s *RelationService) Approve(ctx context.Context, aimID, initiatorID int64) (*domain.Relation, error) {
	return s.decide(ctx, aimID, initiatorID, domain.RelationApproved, domain.EventRelationApproved, "approved")
}

// Reject moves the pending relation initiator->aim to REJECTED
func (s *RelationService) Reject(ctx context.Context, aimID, initiatorID int64) (*domain.Relation, error) {
	return s.decide(ctx, aimID, initiatorID, domain.RelationRejected, domain.EventRelationRejected, "rejected")
}

func (s *RelationService) decide(ctx context.Context, aimID, initiatorID int64, to domain.RelationState, event, kind string) (*domain.Relation, error) {
	ctx, span := tracing.Start(ctx, "RelationService."+kind)
	defer span.End()

	rel, err := s.relations.GetByPair(ctx, initiatorID, aimID)
	if err != nil {
		return nil, err
	}
	if rel.State != domain.RelationPending {
		return nil, fmt.Errorf("no pending relation %d->%d: %w", initiatorID, aimID, domain.ErrNotFound)
	}
	if err := s.relations.Transition(ctx, rel.ID, domain.RelationPending, to); err != nil {
		return nil, err
	}
	rel.State = to

	metrics.ObserveRelationTransition(kind)
	s.events.relation(ctx, event, rel)
	s.logger.Info("relation "+kind,
		slog.Int64("relation_id", rel.ID),
		slog.Int64("aim_id", aimID),
	)
	return rel, nil
}

// Delete removes a rejected relation the requester takes part in. Every other
// case, including a relation in another state, reports ErrNotFound.
func (s *RelationService) Delete(ctx context.Context, requesterID, relationID int64) error {
	ok, err := s.profiles.Exists(ctx, requesterID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("profile %d: %w", requesterID, domain.ErrNotFound)
	}

	rel, err := s.relations.GetByID(ctx, relationID)
	if err != nil {
		return err
	}
	if !rel.Involves(requesterID) {
		return fmt.Errorf("relation %d: %w", relationID, domain.ErrNotFound)
	}
	if err := s.relations.DeleteIfState(ctx, relationID, domain.RelationRejected); err != nil {
		return err
	}

	metrics.ObserveRelationTransition("deleted")
	s.events.relation(ctx, domain.EventRelationDeleted, rel)
	s.logger.Info("relation deleted", slog.Int64("relation_id", relationID))
	return nil
}

// Between returns the relation linking two profiles in either direction
func (s *RelationService) Between(ctx context.Context, a, b int64) (*domain.Relation, error) {
	rel, err := s.relations.GetByPair(ctx, a, b)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return rel, err
	}
	return s.relations.GetByPair(ctx, b, a)
}

// AsInitiator lists relations the profile started
func (s *RelationService) AsInitiator(ctx context.Context, profileID int64) ([]*domain.Relation, error) {
	return s.relations.ListByInitiator(ctx, profileID)
}

// AsAim lists relations aimed at the profile
func (s *RelationService) AsAim(ctx context.Context, profileID int64) ([]*domain.Relation, error) {
	return s.relations.ListByAim(ctx, profileID)
}

// ForProfile lists every relation the profile takes part in, ordered by id
func (s *RelationService) ForProfile(ctx context.Context, profileID int64) ([]*domain.Relation, error) {
	sent, err := s.relations.ListByInitiator(ctx, profileID)
	if err != nil {
		return nil, err
	}
	received, err := s.relations.ListByAim(ctx, profileID)
	if err != nil {
		return nil, err
	}
	all := append(sent, received...)
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

// List returns the profile's relations narrowed by f
func (s *RelationService) List(ctx context.Context, profileID int64, f RelationFilter) ([]*domain.Relation, error) {
	var (
		rels []*domain.Relation
		err  error
	)
	switch f.Role {
	case RoleInitiator:
		rels, err = s.AsInitiator(ctx, profileID)
	case RoleAim:
		rels, err = s.AsAim(ctx, profileID)
	default:
		rels, err = s.ForProfile(ctx, profileID)
	}
	if err != nil {
		return nil, err
	}
	if f.State == "" {
		return rels, nil
	}
	return FilterByState(rels, f.State), nil
}

// FilterByState keeps the relations in the given state
func FilterByState(rels []*domain.Relation, state domain.RelationState) []*domain.Relation {
	out := make([]*domain.Relation, 0, len(rels))
	for _, rel := range rels {
		if rel.State == state {
			out = append(out, rel)
		}
	}
	return out
}

// Overview groups the profile's relations with the counterparty profiles attached
func (s *RelationService) Overview(ctx context.Context, profileID int64) (*Overview, error) {
	rels, err := s.ForProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(rels))
	for _, rel := range rels {
		ids = append(ids, rel.Counterparty(profileID))
	}
	others, err := s.profiles.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*domain.Profile, len(others))
	for _, p := range others {
		byID[p.ID] = p
	}

	ov := &Overview{}
	for _, rel := range rels {
		view := RelationView{Relation: rel, Counterparty: byID[rel.Counterparty(profileID)]}
		switch rel.State {
		case domain.RelationPending:
			if rel.InitiatorID == profileID {
				ov.PendingSent = append(ov.PendingSent, view)
			} else {
				ov.PendingReceived = append(ov.PendingReceived, view)
			}
		case domain.RelationApproved:
			ov.Approved = append(ov.Approved, view)
		case domain.RelationRejected:
			ov.Rejected = append(ov.Rejected, view)
		}
	}
	return ov, nil
}
