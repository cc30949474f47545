package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/aryan0dhankhar/datingapp/internal/domain"
	"github.com/aryan0dhankhar/datingapp/internal/observability/requestid"
	"github.com/aryan0dhankhar/datingapp/internal/security/audit"
	"github.com/aryan0dhankhar/datingapp/internal/security/auth"
	"github.com/aryan0dhankhar/datingapp/internal/security/ratelimit"
)

type ProfileIDContextKey struct{}
type ClaimsContextKey struct{}
type sessionErrorContextKey struct{}

func isOpsPath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

// SessionMiddleware resolves the session cookie into a profile id. It never
// rejects a request itself; handlers that need a session call ProfileIDFromContext.
func SessionMiddleware(tm *auth.TokenManager, revoked domain.RevocationList, cookieName string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" || isOpsPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			claims, err := tm.ValidateToken(cookie.Value)
			if err != nil {
				log.Debug("rejected session token", slog.String("error", err.Error()))
				ctx = context.WithValue(ctx, sessionErrorContextKey{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if revoked != nil && claims.ID != "" {
				isRevoked, err := revoked.IsRevoked(ctx, claims.ID)
				if err != nil {
					log.Warn("revocation check failed", slog.String("error", err.Error()))
				}
				if isRevoked || err != nil {
					ctx = context.WithValue(ctx, sessionErrorContextKey{}, fmt.Errorf("%w: session ended", domain.ErrUnauthorized))
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			id, err := claims.ProfileID()
			if err != nil {
				ctx = context.WithValue(ctx, sessionErrorContextKey{}, fmt.Errorf("%w: %v", domain.ErrValidation, err))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			ctx = context.WithValue(ctx, ClaimsContextKey{}, claims)
			ctx = context.WithValue(ctx, ProfileIDContextKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ProfileIDFromContext returns the session's profile id. Without a cookie the
// error wraps domain.ErrUnauthorized; a token with a non-numeric subject wraps
// domain.ErrValidation.
func ProfileIDFromContext(ctx context.Context) (int64, error) {
	if id, ok := ctx.Value(ProfileIDContextKey{}).(int64); ok {
		return id, nil
	}
	if err, ok := ctx.Value(sessionErrorContextKey{}).(error); ok {
		return 0, err
	}
	return 0, fmt.Errorf("%w: no session", domain.ErrUnauthorized)
}

func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	if c, ok := ctx.Value(ClaimsContextKey{}).(*auth.Claims); ok {
		return c
	}
	return nil
}

// RateLimitMiddleware limits callers by profile id, or by client IP when anonymous.
// Login endpoints get a stricter per-IP budget.
func RateLimitMiddleware(limiter *ratelimit.Limiter, loginPerMinute int, auditLog *audit.Logger, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isOpsPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			if r.Method == http.MethodPost && (r.URL.Path == "/api/profiles/login" || r.URL.Path == "/login") {
				if d := limiter.TakeStrict("login:"+ip, loginPerMinute, time.Minute); !d.Allowed {
					auditLog.LogDenied(r.Context(), 0, r.URL.Path, "login rate limit exceeded")
					writeTooMany(w, d)
					return
				}
			}

			key := "ip:" + ip
			profileID, err := ProfileIDFromContext(r.Context())
			if err == nil {
				key = "profile:" + strconv.FormatInt(profileID, 10)
			}
			d := limiter.Take(key)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				log.Warn("rate limit exceeded", slog.String("key", key), slog.String("path", r.URL.Path))
				auditLog.LogDenied(r.Context(), profileID, r.URL.Path, "rate limit exceeded")
				writeTooMany(w, d)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeTooMany(w http.ResponseWriter, d ratelimit.Decision) {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// AuditMiddleware records every state-changing request with its outcome
func AuditMiddleware(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			profileID, _ := ProfileIDFromContext(r.Context())
			status := "success"
			if sw.status >= http.StatusBadRequest {
				status = "failed"
			}
			auditLog.LogAction(r.Context(), profileID, r.Method, r.URL.Path, status, strconv.Itoa(sw.status))
		})
	}
}

// RequestID attaches a request ID to the context and response headers and logs
// one line per completed request
func RequestID(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestid.Header)
			if reqID == "" || len(reqID) > 64 {
				reqID = requestid.New()
			}
			w.Header().Set(requestid.Header, reqID)

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(sw, r.WithContext(requestid.WithID(r.Context(), reqID)))

			log.Info("request completed",
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.status),
				slog.Duration("duration_ms", time.Since(start)),
			)
		})
	}
}

// Recovery turns a panic in a handler into a 500 response
func Recovery(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
						panic(rec)
					}
					log.Error("panic recovered",
						slog.Any("panic", rec),
						slog.String("path", r.URL.Path),
						slog.String("request_id", requestid.FromContext(r.Context())),
						slog.String("stack", string(debug.Stack())),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORS honors the configured origins
func CORS(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if originAllowed(allowed, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
