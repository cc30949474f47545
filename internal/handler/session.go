package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/datingapp/internal/domain"
	"github.com/aryan0dhankhar/datingapp/internal/security/auth"
	"github.com/aryan0dhankhar/datingapp/internal/security/middleware"
)

// Sessions issues and clears the identity cookie
type Sessions struct {
	tokens     *auth.TokenManager
	revoked    domain.RevocationList
	cookieName string
	secure     bool
	logger     *slog.Logger
}

func NewSessions(tokens *auth.TokenManager, revoked domain.RevocationList, cookieName string, secure bool, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{tokens: tokens, revoked: revoked, cookieName: cookieName, secure: secure, logger: logger}
}

// CookieName returns the identity cookie name
func (s *Sessions) CookieName() string {
	return s.cookieName
}

// Start sets a fresh session cookie for the profile
func (s *Sessions) Start(w http.ResponseWriter, profileID int64) error {
	token, err := s.tokens.GenerateToken(profileID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// End revokes the current token, if any verified, and clears the cookie
func (s *Sessions) End(ctx context.Context, w http.ResponseWriter) {
	if claims := middleware.GetClaimsFromContext(ctx); claims != nil && s.revoked != nil {
		if err := s.revoked.Revoke(ctx, claims.ID, s.tokens.Remaining(claims)); err != nil {
			s.logger.Warn("failed to revoke session", slog.String("error", err.Error()))
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Present reports whether the request carried the identity cookie
func (s *Sessions) Present(r *http.Request) bool {
	c, err := r.Cookie(s.cookieName)
	return err == nil && c.Value != ""
}
