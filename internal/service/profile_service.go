package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aryan0dhankhar/datingapp/internal/domain"
	"github.com/aryan0dhankhar/datingapp/internal/observability/metrics"
	"github.com/aryan0dhankhar/datingapp/internal/observability/tracing"
	"github.com/aryan0dhankhar/datingapp/internal/security/auth"
	"github.com/go-playground/validator/v10"
)

// RegisterInput carries the fields of a new profile
type RegisterInput struct {
	Name       string `json:"name" validate:"required,max=100"`
	Email      string `json:"email" validate:"required,email,max=254"`
	Password   string `json:"password" validate:"required,password"`
	OpenInfo   string `json:"openInfo" validate:"max=2000"`
	ClosedInfo string `json:"closedInfo" validate:"max=2000"`
}

// profileFields holds the non-secret profile fields for validation
type profileFields struct {
	Name       string `json:"name" validate:"required,max=100"`
	Email      string `json:"email" validate:"required,email,max=254"`
	OpenInfo   string `json:"openInfo" validate:"max=2000"`
	ClosedInfo string `json:"closedInfo" validate:"max=2000"`
}

// ProfileUpdate is a partial update. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Password   *string `json:"password,omitempty"`
	OpenInfo   *string `json:"openInfo,omitempty"`
	ClosedInfo *string `json:"closedInfo,omitempty"`
}

// Empty reports whether the update changes nothing
func (u ProfileUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil && u.Password == nil && u.OpenInfo == nil && u.ClosedInfo == nil
}

// ProfileService implements profile registration, credentials and queries
type ProfileService struct {
	profiles domain.ProfileRepository
	cache    domain.ProfileCache
	events   *EventRecorder
	hasher   *auth.Hasher
	validate *validator.Validate
	logger   *slog.Logger
}

// NewProfileService creates a profile service. cache may be nil.
func NewProfileService(
	profiles domain.ProfileRepository,
	cache domain.ProfileCache,
	events *EventRecorder,
	hasher *auth.Hasher,
	logger *slog.Logger,
) *ProfileService {
	if logger == nil {
		logger = slog.Default()
	}
	if hasher == nil {
		hasher = auth.NewHasher(0)
	}

	return &ProfileService{
		profiles: profiles,
		cache:    cache,
		events:   events,
		hasher:   hasher,
		validate: newValidator(),
		logger:   logger,
	}
}

// Register creates a profile after checking the email is free
func (s *ProfileService) Register(ctx context.Context, in RegisterInput) (*domain.Profile, error) {
	ctx, span := tracing.Start(ctx, "ProfileService.Register")
	defer span.End()

	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		metrics.ObserveRegistration("invalid")
		return nil, toValidationError(err)
	}

	if _, err := s.profiles.GetByEmail(ctx, in.Email); err == nil {
		metrics.ObserveRegistration("duplicate")
		return nil, domain.ErrDuplicateEmail
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	profile := &domain.Profile{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		OpenInfo:     in.OpenInfo,
		ClosedInfo:   in.ClosedInfo,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			metrics.ObserveRegistration("duplicate")
		}
		return nil, err
	}

	metrics.ObserveRegistration("success")
	s.events.profile(ctx, domain.EventProfileRegistered, profile)
	s.logger.Info("profile registered", slog.Int64("profile_id", profile.ID))
	return profile, nil
}

// Login checks credentials. Unknown emails yield ErrNotFound, wrong passwords ErrInvalidCredential.
func (s *ProfileService) Login(ctx context.Context, email, password string) (*domain.Profile, error) {
	ctx, span := tracing.Start(ctx, "ProfileService.Login")
	defer span.End()

	email = normalizeEmail(email)
	missing := map[string]string{}
	if email == "" {
		missing["email"] = "is required"
	}
	if password == "" {
		missing["password"] = "is required"
	}
	if len(missing) > 0 {
		metrics.ObserveLogin("invalid")
		return nil, &domain.ValidationError{Fields: missing}
	}

	profile, err := s.profiles.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.ObserveLogin("unknown_email")
			s.logger.Info("login attempt with unknown email")
		}
		return nil, err
	}

	if !s.hasher.Compare(profile.PasswordHash, password) {
		metrics.ObserveLogin("wrong_password")
		s.logger.Info("login failed with wrong password", slog.Int64("profile_id", profile.ID))
		return nil, domain.ErrInvalidCredential
	}

	metrics.ObserveLogin("success")
	return profile, nil
}

// Get returns a profile by id, reading through the cache. Cached profiles carry
// no password hash.
func (s *ProfileService) Get(ctx context.Context, id int64) (*domain.Profile, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, domain.ErrCacheMiss) {
			s.logger.Warn("profile cache unavailable", slog.String("error", err.Error()))
		}
	}

	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, profile)
	return profile, nil
}

// Exists reports whether a profile exists
func (s *ProfileService) Exists(ctx context.Context, id int64) (bool, error) {
	return s.profiles.Exists(ctx, id)
}

// Update applies a partial update. Every provided field is validated before any
// is applied; a single failure leaves the profile untouched.
func (s *ProfileService) Update(ctx context.Context, id int64, upd ProfileUpdate) (*domain.Profile, error) {
	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	candidate := profileFields{
		Name:       profile.Name,
		Email:      profile.Email,
		OpenInfo:   profile.OpenInfo,
		ClosedInfo: profile.ClosedInfo,
	}
	if upd.Name != nil {
		candidate.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Email != nil {
		candidate.Email = normalizeEmail(*upd.Email)
	}
	if upd.OpenInfo != nil {
		candidate.OpenInfo = *upd.OpenInfo
	}
	if upd.ClosedInfo != nil {
		candidate.ClosedInfo = *upd.ClosedInfo
	}

	fields := map[string]string{}
	if err := s.validate.Struct(candidate); err != nil {
		var verr *domain.ValidationError
		if !errors.As(toValidationError(err), &verr) {
			return nil, toValidationError(err)
		}
		fields = verr.Fields
	}
	if upd.Password != nil {
		if err := s.validate.Var(*upd.Password, "password"); err != nil {
			fields["password"] = passwordRule
		}
	}
	if len(fields) > 0 {
		return nil, &domain.ValidationError{Fields: fields}
	}

	if candidate.Email != profile.Email {
		owner, err := s.profiles.GetByEmail(ctx, candidate.Email)
		if err == nil && owner.ID != profile.ID {
			return nil, domain.ErrDuplicateEmail
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	updated := *profile
	updated.Name = candidate.Name
	updated.Email = candidate.Email
	updated.OpenInfo = candidate.OpenInfo
	updated.ClosedInfo = candidate.ClosedInfo
	if upd.Password != nil {
		hash, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return nil, err
		}
		updated.PasswordHash = hash
	}

	if err := s.profiles.Update(ctx, &updated); err != nil {
		return nil, err
	}
	s.cacheDelete(ctx, id)
	s.logger.Info("profile updated", slog.Int64("profile_id", id))
	return &updated, nil
}

// Delete removes the profile and its relations once the password is confirmed
func (s *ProfileService) Delete(ctx context.Context, id int64, password string) error {
	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.hasher.Compare(profile.PasswordHash, password) {
		return fmt.Errorf("password confirmation failed: %w", domain.ErrForbidden)
	}

	if err := s.profiles.Delete(ctx, id); err != nil {
		return err
	}
	s.cacheDelete(ctx, id)
	s.events.profile(ctx, domain.EventProfileDeleted, profile)
	s.logger.Info("profile deleted", slog.Int64("profile_id", id))
	return nil
}

// ListPaged returns profiles [offset, offset+limit) ordered by id, optionally
// restricted to those whose open info contains keyword (case-insensitive)
func (s *ProfileService) ListPaged(ctx context.Context, offset, limit int, keyword string) ([]*domain.Profile, error) {
	if offset < 0 {
		return nil, &domain.ValidationError{Fields: map[string]string{"page": "must not be negative"}}
	}
	if limit <= 0 {
		return nil, &domain.ValidationError{Fields: map[string]string{"size": "must be positive"}}
	}
	return s.profiles.List(ctx, strings.TrimSpace(keyword), offset, limit)
}

// ApprovedContacts returns the counterparty of every approved relation
func (s *ProfileService) ApprovedContacts(ctx context.Context, profileID int64, relations []*domain.Relation) ([]*domain.Profile, error) {
	ids := make([]int64, 0, len(relations))
	for _, rel := range relations {
		if rel.State == domain.RelationApproved && rel.Involves(profileID) {
			ids = append(ids, rel.Counterparty(profileID))
		}
	}
	if len(ids) == 0 {
		return []*domain.Profile{}, nil
	}
	return s.profiles.GetByIDs(ctx, ids)
}

// FilterBrowsable drops the viewer and anyone the viewer already has a relation with
func (s *ProfileService) FilterBrowsable(profiles []*domain.Profile, viewerID int64, relations []*domain.Relation) []*domain.Profile {
	hidden := map[int64]bool{viewerID: true}
	for _, rel := range relations {
		if rel.Involves(viewerID) {
			hidden[rel.Counterparty(viewerID)] = true
		}
	}
	out := make([]*domain.Profile, 0, len(profiles))
	for _, p := range profiles {
		if !hidden[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

// Ready checks the backing store
func (s *ProfileService) Ready(ctx context.Context) error {
	return s.profiles.Ping(ctx)
}

func (s *ProfileService) cacheSet(ctx context.Context, p *domain.Profile) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, p); err != nil {
		s.logger.Warn("failed to cache profile", slog.Int64("profile_id", p.ID), slog.String("error", err.Error()))
	}
}

func (s *ProfileService) cacheDelete(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, id); err != nil {
		s.logger.Warn("failed to evict cached profile", slog.Int64("profile_id", id), slog.String("error", err.Error()))
	}
}
