package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/datingapp/internal/domain"
	"github.com/aryan0dhankhar/datingapp/internal/security/middleware"
	"github.com/aryan0dhankhar/datingapp/internal/service"
)

// RelationHandler serves the relation REST endpoints
type RelationHandler struct {
	relations *service.RelationService
	logger    *slog.Logger
}

// NewRelationHandler creates a new relation handler
func NewRelationHandler(relations *service.RelationService, logger *slog.Logger) *RelationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelationHandler{relations: relations, logger: logger}
}

// LikeResponse reports whether a like opened a new relation or matched an existing one
type LikeResponse struct {
	Created bool `json:"created"`
}

// Like handles POST /api/relations/like/{aimId}
func (h *RelationHandler) Like(w http.ResponseWriter, r *http.Request) {
	initiator, aim, ok := h.pair(w, r, "aimId")
	if !ok {
		return
	}

	created, err := h.relations.Like(r.Context(), initiator, aim)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, LikeResponse{Created: created})
}

// Approve handles POST /api/relations/approve/{initiatorId}
func (h *RelationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.relations.Approve)
}

// Reject handles POST /api/relations/reject/{initiatorId}
func (h *RelationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.relations.Reject)
}

func (h *RelationHandler) decide(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, aimID, initiatorID int64) (*domain.Relation, error)) {
	aim, initiator, ok := h.pair(w, r, "initiatorId")
	if !ok {
		return
	}

	rel, err := fn(r.Context(), aim, initiator)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, relationView(rel))
}

// Delete handles DELETE /api/relations/delete/{relationId}
func (h *RelationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	requester, relationID, ok := h.pair(w, r, "relationId")
	if !ok {
		return
	}

	if err := h.relations.Delete(r.Context(), requester, relationID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// All handles GET /api/relations/all?state=&role=
func (h *RelationHandler) All(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ProfileIDFromContext(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	filter, err := service.ParseRelationFilter(r.URL.Query().Get("state"), r.URL.Query().Get("role"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	rels, err := h.relations.List(r.Context(), id, filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if len(rels) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, relationViews(rels))
}

// Overview handles GET /api/relations/overview
func (h *RelationHandler) Overview(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ProfileIDFromContext(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ov, err := h.relations.Overview(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, overviewView(ov))
}

// pair resolves the session profile and a path id. On failure the error
// response is already written.
func (h *RelationHandler) pair(w http.ResponseWriter, r *http.Request, param string) (int64, int64, bool) {
	self, err := middleware.ProfileIDFromContext(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return 0, 0, false
	}
	other, err := pathID(r, param)
	if err != nil {
		writeError(w, h.logger, err)
		return 0, 0, false
	}
	return self, other, true
}
