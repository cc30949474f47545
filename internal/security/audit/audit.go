package audit

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/aryan0dhankhar/datingapp/internal/observability/requestid"
)

// Logger writes audit records for state-changing requests
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(slog.String("log_type", "audit"))}
}

// LogAction records who did what to which resource. profileID 0 means anonymous.
func (al *Logger) LogAction(ctx context.Context, profileID int64, action, resource, status, details string) {
	actor := "anonymous"
	if profileID > 0 {
		actor = strconv.FormatInt(profileID, 10)
	}

	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("profile_id", actor),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", requestid.FromContext(ctx)),
		slog.Time("timestamp", time.Now()),
	)
}

func (al *Logger) LogDenied(ctx context.Context, profileID int64, resource, reason string) {
	al.LogAction(ctx, profileID, "access_denied", resource, "denied", reason)
}
