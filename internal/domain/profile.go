package domain

import (
	"context"
	"time"
)

// Profile represents a registered user of the dating service
type Profile struct {
	ID           int64  // Generated by the store, immutable
	Name         string // Display name
	Email        string // Unique, normalized to lower case
	PasswordHash string // Bcrypt hash (never serialized)
	OpenInfo     string // Public biography, searchable
	ClosedInfo   string // Private biography, visible to the owner and approved contacts
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProfileRepository defines data access for profiles
type ProfileRepository interface {
	Create(ctx context.Context, profile *Profile) error
	GetByID(ctx context.Context, id int64) (*Profile, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*Profile, error)
	GetByEmail(ctx context.Context, email string) (*Profile, error)
	Update(ctx context.Context, profile *Profile) error
	Delete(ctx context.Context, id int64) error
	Exists(ctx context.Context, id int64) (bool, error)
	// List returns profiles ordered by id. An empty keyword matches every profile,
	// otherwise OpenInfo must contain it (case-insensitive).
	List(ctx context.Context, keyword string, offset, limit int) ([]*Profile, error)
	Ping(ctx context.Context) error
}

// ProfileCache is a read-through cache in front of ProfileRepository.GetByID
type ProfileCache interface {
	Get(ctx context.Context, id int64) (*Profile, error) // ErrCacheMiss when absent
	Set(ctx context.Context, profile *Profile) error
	Delete(ctx context.Context, id int64) error
}
