package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/datingapp/internal/domain"
)

const relationColumns = `id, initiator_id, aim_id, state, created_at, updated_at`

// PostgresRelationRepository implements domain.RelationRepository using PostgreSQL.
// Pair uniqueness is enforced by unique indexes on (initiator_id, aim_id) and on the
// unordered pair, see pkg/database/schema.sql.
type PostgresRelationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRelationRepository creates a new relation repository
func NewPostgresRelationRepository(db *sql.DB, logger *slog.Logger) *PostgresRelationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRelationRepository{db: db, logger: logger}
}

func scanRelation(row rowScanner) (*domain.Relation, error) {
	rel := &domain.Relation{}
	var state string
	err := row.Scan(&rel.ID, &rel.InitiatorID, &rel.AimID, &state, &rel.CreatedAt, &rel.UpdatedAt)
	rel.State = domain.RelationState(state)
	return rel, err
}

// Create inserts the relation unless one already exists for the pair in either direction
func (r *PostgresRelationRepository) Create(ctx context.Context, relation *domain.Relation) error {
	query := `
		INSERT INTO relations (initiator_id, aim_id, state)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query, relation.InitiatorID, relation.AimID, string(relation.State)).
		Scan(&relation.ID, &relation.CreatedAt, &relation.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("relation %d->%d: %w", relation.InitiatorID, relation.AimID, domain.ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("relation participant: %w", domain.ErrNotFound)
		}
		r.logger.Error("failed to create relation",
			slog.Int64("initiator_id", relation.InitiatorID),
			slog.Int64("aim_id", relation.AimID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create relation: %w", err)
	}
	return nil
}

// GetByID retrieves a relation by ID
func (r *PostgresRelationRepository) GetByID(ctx context.Context, id int64) (*domain.Relation, error) {
	query := `SELECT ` + relationColumns + ` FROM relations WHERE id = $1`
	rel, err := scanRelation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("relation %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get relation: %w", err)
	}
	return rel, nil
}

// GetByPair retrieves the relation for the exact ordered pair
func (r *PostgresRelationRepository) GetByPair(ctx context.Context, initiatorID, aimID int64) (*domain.Relation, error) {
	query := `SELECT ` + relationColumns + ` FROM relations WHERE initiator_id = $1 AND aim_id = $2`
	rel, err := scanRelation(r.db.QueryRowContext(ctx, query, initiatorID, aimID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("relation %d->%d: %w", initiatorID, aimID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get relation by pair: %w", err)
	}
	return rel, nil
}

// ListByInitiator lists relations where the profile is the initiator
func (r *PostgresRelationRepository) ListByInitiator(ctx context.Context, initiatorID int64) ([]*domain.Relation, error) {
	return r.list(ctx, `SELECT `+relationColumns+` FROM relations WHERE initiator_id = $1 ORDER BY id`, initiatorID)
}

// ListByAim lists relations where the profile is the aim
func (r *PostgresRelationRepository) ListByAim(ctx context.Context, aimID int64) ([]*domain.Relation, error) {
	return r.list(ctx, `SELECT `+relationColumns+` FROM relations WHERE aim_id = $1 ORDER BY id`, aimID)
}

func (r *PostgresRelationRepository) list(ctx context.Context, query string, id int64) ([]*domain.Relation, error) {
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		r.logger.Error("failed to list relations",
			slog.Int64("profile_id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to list relations: %w", err)
	}
	defer rows.Close()

	out := []*domain.Relation{}
	for rows.Next() {
		rel, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

// Transition moves a relation from one state to another, compare-and-swap style
func (r *PostgresRelationRepository) Transition(ctx context.Context, id int64, from, to domain.RelationState) error {
	query := `
		UPDATE relations
		SET state = $1, updated_at = NOW()
		WHERE id = $2 AND state = $3
	`
	res, err := r.db.ExecContext(ctx, query, string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update relation state: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s relation %d: %w", from, id, domain.ErrNotFound)
	}
	return nil
}

// DeleteIfState removes a relation only while it is in the given state
func (r *PostgresRelationRepository) DeleteIfState(ctx context.Context, id int64, state domain.RelationState) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM relations WHERE id = $1 AND state = $2`, id, string(state))
	if err != nil {
		return fmt.Errorf("failed to delete relation: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s relation %d: %w", state, id, domain.ErrNotFound)
	}
	return nil
}
