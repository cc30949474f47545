package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/datingapp/internal/featureflags"
	"github.com/aryan0dhankhar/datingapp/internal/observability/metrics"
	"github.com/aryan0dhankhar/datingapp/internal/security/audit"
	"github.com/aryan0dhankhar/datingapp/internal/security/middleware"
	"github.com/aryan0dhankhar/datingapp/internal/security/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps collects what the HTTP surface needs
type RouterDeps struct {
	Profiles  *ProfileHandler
	Relations *RelationHandler
	Web       *WebHandler // nil disables the HTML pages
	Health    *HealthHandler
	Sessions  *Sessions

	Limiter        *ratelimit.Limiter
	LoginPerMinute int
	Audit          *audit.Logger
	CORSOrigins    []string
	Logger         *slog.Logger
}

// NewRouter registers every route and wraps the mux in the middleware chain:
// request ID -> recovery -> CORS -> session -> rate limit -> audit -> content type -> metrics -> mux
func NewRouter(d RouterDeps) http.Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	mux := http.NewServeMux()

	// REST: profiles
	mux.HandleFunc("POST /api/profiles/register", d.Profiles.Register)
	mux.HandleFunc("POST /api/profiles/login", d.Profiles.Login)
	mux.HandleFunc("POST /api/profiles/logout", d.Profiles.Logout)
	mux.HandleFunc("POST /api/profiles/update", d.Profiles.Update)
	mux.HandleFunc("DELETE /api/profiles/delete", d.Profiles.Delete)
	mux.HandleFunc("POST /api/profiles/delete", d.Profiles.Delete)
	mux.HandleFunc("GET /api/profiles/all", d.Profiles.All)
	mux.HandleFunc("GET /api/profiles/all/approved", d.Profiles.Approved)
	mux.HandleFunc("GET /api/profiles/me", d.Profiles.Me)
	mux.HandleFunc("GET /api/profiles/{id}", d.Profiles.Get)

	// REST: relations
	mux.HandleFunc("POST /api/relations/like/{aimId}", d.Relations.Like)
	mux.HandleFunc("POST /api/relations/approve/{initiatorId}", d.Relations.Approve)
	mux.HandleFunc("POST /api/relations/reject/{initiatorId}", d.Relations.Reject)
	mux.HandleFunc("DELETE /api/relations/delete/{relationId}", d.Relations.Delete)
	mux.HandleFunc("GET /api/relations/all", d.Relations.All)
	mux.HandleFunc("GET /api/relations/overview", d.Relations.Overview)

	// Ops
	mux.HandleFunc("GET /healthz", d.Health.Health)
	mux.HandleFunc("GET /readyz", d.Health.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	if d.Web != nil && !featureflags.Enabled(featureflags.WebUIDisabled) {
		mux.HandleFunc("GET /{$}", d.Web.Index)
		mux.HandleFunc("GET /register", d.Web.RegisterForm)
		mux.HandleFunc("POST /register", d.Web.Register)
		mux.HandleFunc("POST /login", d.Web.Login)
		mux.HandleFunc("POST /logout", d.Web.Logout)
		mux.HandleFunc("GET /profiles", d.Web.Browse)
		mux.HandleFunc("GET /profiles/me", d.Web.Me)
		mux.HandleFunc("GET /profiles/me/edit", d.Web.EditForm)
		mux.HandleFunc("POST /profiles/me/edit", d.Web.Edit)
		mux.HandleFunc("POST /profiles/me/delete", d.Web.Delete)
		mux.HandleFunc("GET /profiles/{id}", d.Web.Profile)
		mux.HandleFunc("POST /profiles/{id}/like", d.Web.Like)
		mux.HandleFunc("POST /profiles/relations/{initiatorId}/approve", d.Web.Approve)
		mux.HandleFunc("POST /profiles/relations/{initiatorId}/reject", d.Web.Reject)
		mux.HandleFunc("POST /profiles/relations/{relationId}/delete", d.Web.DeleteRelation)
	} else {
		log.Info("web UI disabled")
	}

	var h http.Handler = metrics.HTTPMetricsMiddleware(mux)
	h = middleware.ValidateJSONContentType("/api/", log)(h)
	h = middleware.AuditMiddleware(d.Audit)(h)
	h = middleware.RateLimitMiddleware(d.Limiter, d.LoginPerMinute, d.Audit, log)(h)
	h = middleware.SessionMiddleware(d.Sessions.tokens, d.Sessions.revoked, d.Sessions.cookieName, log)(h)
	h = middleware.CORS(d.CORSOrigins)(h)
	h = middleware.Recovery(log)(h)
	h = middleware.RequestID(log)(h)
	return h
}
