package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aryan0dhankhar/datingapp/internal/domain"
	"github.com/google/uuid"
)

// MemoryStore keeps profiles, relations and outbox events in process memory.
// It offers the same atomicity guarantees as the Postgres schema: unique emails,
// one relation per unordered pair, compare-and-swap transitions, and cascading
// deletes of relations when a profile goes away.
type MemoryStore struct {
	mu             sync.RWMutex
	profiles       map[int64]*domain.Profile
	relations      map[int64]*domain.Relation
	outbox         []*domain.OutboxEvent
	nextProfileID  int64
	nextRelationID int64
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:  map[int64]*domain.Profile{},
		relations: map[int64]*domain.Relation{},
	}
}

// Profiles returns the profile repository view of the store
func (s *MemoryStore) Profiles() *MemoryProfileRepository { return &MemoryProfileRepository{s: s} }

// Relations returns the relation repository view of the store
func (s *MemoryStore) Relations() *MemoryRelationRepository { return &MemoryRelationRepository{s: s} }

// Outbox returns the outbox repository view of the store
func (s *MemoryStore) Outbox() *MemoryOutboxRepository { return &MemoryOutboxRepository{s: s} }

// MemoryProfileRepository implements domain.ProfileRepository
type MemoryProfileRepository struct{ s *MemoryStore }

func copyProfile(p *domain.Profile) *domain.Profile {
	c := *p
	return &c
}

func (r *MemoryProfileRepository) emailTaken(email string, except int64) bool {
	for _, p := range r.s.profiles {
		if p.Email == email && p.ID != except {
			return true
		}
	}
	return false
}

func (r *MemoryProfileRepository) Create(_ context.Context, profile *domain.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.emailTaken(profile.Email, 0) {
		return domain.ErrDuplicateEmail
	}
	r.s.nextProfileID++
	now := time.Now()
	profile.ID = r.s.nextProfileID
	profile.CreatedAt = now
	profile.UpdatedAt = now
	r.s.profiles[profile.ID] = copyProfile(profile)
	return nil
}

func (r *MemoryProfileRepository) GetByID(_ context.Context, id int64) (*domain.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile %d: %w", id, domain.ErrNotFound)
	}
	return copyProfile(p), nil
}

func (r *MemoryProfileRepository) GetByIDs(_ context.Context, ids []int64) ([]*domain.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	seen := make(map[int64]bool, len(ids))
	out := []*domain.Profile{}
	for _, id := range ids {
		if p, ok := r.s.profiles[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, copyProfile(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryProfileRepository) GetByEmail(_ context.Context, email string) (*domain.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, p := range r.s.profiles {
		if p.Email == email {
			return copyProfile(p), nil
		}
	}
	return nil, fmt.Errorf("profile with email %q: %w", email, domain.ErrNotFound)
}

func (r *MemoryProfileRepository) Update(_ context.Context, profile *domain.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.profiles[profile.ID]; !ok {
		return fmt.Errorf("profile %d: %w", profile.ID, domain.ErrNotFound)
	}
	if r.emailTaken(profile.Email, profile.ID) {
		return domain.ErrDuplicateEmail
	}
	profile.UpdatedAt = time.Now()
	r.s.profiles[profile.ID] = copyProfile(profile)
	return nil
}

func (r *MemoryProfileRepository) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.profiles[id]; !ok {
		return fmt.Errorf("profile %d: %w", id, domain.ErrNotFound)
	}
	delete(r.s.profiles, id)
	for relID, rel := range r.s.relations {
		if rel.Involves(id) {
			delete(r.s.relations, relID)
		}
	}
	return nil
}

func (r *MemoryProfileRepository) Exists(_ context.Context, id int64) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	_, ok := r.s.profiles[id]
	return ok, nil
}

func (r *MemoryProfileRepository) List(_ context.Context, keyword string, offset, limit int) ([]*domain.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	needle := strings.ToLower(keyword)
	matched := make([]*domain.Profile, 0, len(r.s.profiles))
	for _, p := range r.s.profiles {
		if needle == "" || strings.Contains(strings.ToLower(p.OpenInfo), needle) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	out := []*domain.Profile{}
	if offset >= len(matched) {
		return out, nil
	}
	end := min(offset+limit, len(matched))
	for _, p := range matched[offset:end] {
		out = append(out, copyProfile(p))
	}
	return out, nil
}

func (r *MemoryProfileRepository) Ping(context.Context) error { return nil }

// MemoryRelationRepository implements domain.RelationRepository
type MemoryRelationRepository struct{ s *MemoryStore }

func copyRelation(rel *domain.Relation) *domain.Relation {
	c := *rel
	return &c
}

func (r *MemoryRelationRepository) Create(_ context.Context, relation *domain.Relation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_, okInitiator := r.s.profiles[relation.InitiatorID]
	_, okAim := r.s.profiles[relation.AimID]
	if !okInitiator || !okAim {
		return fmt.Errorf("relation participant: %w", domain.ErrNotFound)
	}
	for _, existing := range r.s.relations {
		if existing.Involves(relation.InitiatorID) && existing.Involves(relation.AimID) {
			return fmt.Errorf("relation %d->%d: %w", relation.InitiatorID, relation.AimID, domain.ErrConflict)
		}
	}

	r.s.nextRelationID++
	now := time.Now()
	relation.ID = r.s.nextRelationID
	relation.CreatedAt = now
	relation.UpdatedAt = now
	r.s.relations[relation.ID] = copyRelation(relation)
	return nil
}

func (r *MemoryRelationRepository) GetByID(_ context.Context, id int64) (*domain.Relation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rel, ok := r.s.relations[id]
	if !ok {
		return nil, fmt.Errorf("relation %d: %w", id, domain.ErrNotFound)
	}
	return copyRelation(rel), nil
}

func (r *MemoryRelationRepository) GetByPair(_ context.Context, initiatorID, aimID int64) (*domain.Relation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, rel := range r.s.relations {
		if rel.InitiatorID == initiatorID && rel.AimID == aimID {
			return copyRelation(rel), nil
		}
	}
	return nil, fmt.Errorf("relation %d->%d: %w", initiatorID, aimID, domain.ErrNotFound)
}

func (r *MemoryRelationRepository) ListByInitiator(_ context.Context, initiatorID int64) ([]*domain.Relation, error) {
	return r.filter(func(rel *domain.Relation) bool { return rel.InitiatorID == initiatorID }), nil
}

func (r *MemoryRelationRepository) ListByAim(_ context.Context, aimID int64) ([]*domain.Relation, error) {
	return r.filter(func(rel *domain.Relation) bool { return rel.AimID == aimID }), nil
}

func (r *MemoryRelationRepository) filter(keep func(*domain.Relation) bool) []*domain.Relation {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*domain.Relation{}
	for _, rel := range r.s.relations {
		if keep(rel) {
			out = append(out, copyRelation(rel))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *MemoryRelationRepository) Transition(_ context.Context, id int64, from, to domain.RelationState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rel, ok := r.s.relations[id]
	if !ok || rel.State != from {
		return fmt.Errorf("%s relation %d: %w", from, id, domain.ErrNotFound)
	}
	rel.State = to
	rel.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRelationRepository) DeleteIfState(_ context.Context, id int64, state domain.RelationState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rel, ok := r.s.relations[id]
	if !ok || rel.State != state {
		return fmt.Errorf("%s relation %d: %w", state, id, domain.ErrNotFound)
	}
	delete(r.s.relations, id)
	return nil
}

// MemoryOutboxRepository implements domain.OutboxRepository
type MemoryOutboxRepository struct{ s *MemoryStore }

func (r *MemoryOutboxRepository) Add(_ context.Context, topic, key string, payload []byte) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.outbox = append(r.s.outbox, &domain.OutboxEvent{
		ID:        uuid.NewString(),
		Topic:     topic,
		Key:       key,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: time.Now(),
	})
	return nil
}

func (r *MemoryOutboxRepository) FetchUnpublished(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.OutboxEvent
	for _, ev := range r.s.outbox {
		if ev.PublishedAt != nil {
			continue
		}
		c := *ev
		out = append(out, &c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryOutboxRepository) MarkPublished(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, ev := range r.s.outbox {
		if ev.ID == id {
			now := time.Now()
			ev.PublishedAt = &now
			return nil
		}
	}
	return fmt.Errorf("outbox event %s: %w", id, domain.ErrNotFound)
}
