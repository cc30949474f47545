package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aryan0dhankhar/datingapp/internal/domain"
)

// DemoProfiles are registered when the seed_demo flag is on
var DemoProfiles = []RegisterInput{
	{Name: "Demo Alice", Email: "alice@example.com", Password: "demo123", OpenInfo: "Hiking, coffee and long walks", ClosedInfo: "Call me on weekends"},
	{Name: "Demo Bob", Email: "bob@example.com", Password: "demo123", OpenInfo: "Board games and hiking", ClosedInfo: "Telegram: @bob"},
	{Name: "Demo Carol", Email: "carol@example.com", Password: "demo123", OpenInfo: "Jazz, cooking and books", ClosedInfo: "Phone after 6pm"},
}

// SeedDemo registers the demo profiles, skipping those already present
func SeedDemo(ctx context.Context, profiles *ProfileService, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	created := 0
	for _, in := range DemoProfiles {
		if _, err := profiles.Register(ctx, in); err != nil {
			if errors.Is(err, domain.ErrDuplicateEmail) {
				continue
			}
			return err
		}
		created++
	}
	logger.Info("demo profiles seeded", slog.Int("created", created))
	return nil
}
