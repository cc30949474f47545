package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/aryan0dhankhar/datingapp/internal/domain"
	"github.com/aryan0dhankhar/datingapp/internal/security/middleware"
	"github.com/aryan0dhankhar/datingapp/internal/service"
)

// Paging holds the page size bounds for listings
type Paging struct {
	DefaultSize int
	MaxSize     int
}

// ProfileHandler serves the profile REST endpoints
type ProfileHandler struct {
	profiles  *service.ProfileService
	relations *service.RelationService
	sessions  *Sessions
	paging    Paging
	logger    *slog.Logger
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(
	profiles *service.ProfileService,
	relations *service.RelationService,
	sessions *Sessions,
	paging Paging,
	logger *slog.Logger,
) *ProfileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if paging.DefaultSize <= 0 {
		paging.DefaultSize = 10
	}
	if paging.MaxSize < paging.DefaultSize {
		paging.MaxSize = paging.DefaultSize
	}

	return &ProfileHandler{
		profiles:  profiles,
		relations: relations,
		sessions:  sessions,
		paging:    paging,
		logger:    logger,
	}
}

// LoginRequest carries login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// DeleteRequest confirms a profile deletion
type DeleteRequest struct {
	Password string `json:"password"`
}

var updatableFields = map[string]bool{
	"name": true, "email": true, "password": true, "openInfo": true, "closedInfo": true,
}

// Register handles POST /api/profiles/register
func (h *ProfileHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	profile, err := h.profiles.Register(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.sessions.Start(w, profile.ID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, profileView(profile, VisibilityOwner))
}

// Login handles POST /api/profiles/login
func (h *ProfileHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	profile, err := h.profiles.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidCredential) {
		writeError(w, h.logger, fmt.Errorf("%w: invalid email or password", domain.ErrUnauthorized))
		return
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.sessions.Start(w, profile.ID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profileView(profile, VisibilityOwner))
}

// Logout handles POST /api/profiles/logout
func (h *ProfileHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Present(r) {
		writeError(w, h.logger, fmt.Errorf("no session to end: %w", domain.ErrNotFound))
		return
	}
	h.sessions.End(r.Context(), w)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/profiles/me
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ProfileIDFromContext(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	profile, err := h.profiles.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profileView(profile, VisibilityOwner))
}

// Update handles POST /api/profiles/update. Unknown keys are ignored.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ProfileIDFromContext(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var raw map[string]json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		writeError(w, h.logger, err)
		return
	}
	var ignored []string
	for key := range raw {
		if !updatableFields[key] {
			ignored = append(ignored, key)
			delete(raw, key)
		}
	}
	if len(ignored) > 0 {
		h.logger.Debug("ignoring unknown update fields", slog.String("fields", strings.Join(ignored, ",")))
	}

	var upd service.ProfileUpdate
	body, _ := json.Marshal(raw)
	if err := json.Unmarshal(body, &upd); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err))
		return
	}

	profile, err := h.profiles.Update(r.Context(), id, upd)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profileView(profile, VisibilityOwner))
}

// Delete handles DELETE and POST /api/profiles/delete
func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ProfileIDFromContext(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req DeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.profiles.Delete(r.Context(), id, req.Password); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.sessions.End(r.Context(), w)
	w.WriteHeader(http.StatusNoContent)
}

// All handles GET /api/profiles/all?page=&size=&keyword=
func (h *ProfileHandler) All(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := h.paging.parse(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	profiles, err := h.profiles.ListPaged(r.Context(), offset, limit, r.URL.Query().Get("keyword"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if len(profiles) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, profileViews(profiles, VisibilityPublic))
}

// Approved handles GET /api/profiles/all/approved
func (h *ProfileHandler) Approved(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ProfileIDFromContext(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	rels, err := h.relations.ForProfile(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	contacts, err := h.profiles.ApprovedContacts(r.Context(), id, rels)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if len(contacts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, profileViews(contacts, VisibilityContact))
}

// Get handles GET /api/profiles/{id}. Approved contacts also see closed info.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	profile, err := h.profiles.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	visibility := VisibilityPublic
	if viewer, err := middleware.ProfileIDFromContext(r.Context()); err == nil {
		visibility = visibilityFor(r, h.relations, viewer, id)
	}
	writeJSON(w, http.StatusOK, profileView(profile, visibility))
}

func visibilityFor(r *http.Request, relations *service.RelationService, viewer, target int64) Visibility {
	if viewer == target {
		return VisibilityOwner
	}
	rel, err := relations.Between(r.Context(), viewer, target)
	if err == nil && rel.State == domain.RelationApproved {
		return VisibilityContact
	}
	return VisibilityPublic
}

// parse reads page and size query values. Page is zero-based; size above the
// maximum is clamped.
func (p Paging) parse(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	page, size := 0, p.DefaultSize
	fields := map[string]string{}

	if raw := q.Get("page"); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil {
			fields["page"] = "must be an integer"
		}
	}
	if raw := q.Get("size"); raw != "" {
		if size, err = strconv.Atoi(raw); err != nil {
			fields["size"] = "must be an integer"
		}
	}
	if len(fields) > 0 {
		return 0, 0, &domain.ValidationError{Fields: fields}
	}
	if size > p.MaxSize {
		size = p.MaxSize
	}
	switch {
	case size <= 0:
		fields["size"] = "must be positive"
	case page < 0:
		fields["page"] = "must not be negative"
	case page > math.MaxInt/size:
		fields["page"] = "is too large"
	}
	if len(fields) > 0 {
		return 0, 0, &domain.ValidationError{Fields: fields}
	}
	return page * size, size, nil
}
