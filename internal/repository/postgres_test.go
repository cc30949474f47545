package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aryan0dhankhar/datingapp/internal/domain"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

var profileRowColumns = []string{"id", "name", "email", "password_hash", "open_info", "closed_info", "created_at", "updated_at"}

func TestPostgresProfiles_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresProfileRepository(db, nil)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO profiles")).
		WithArgs("Alice", "a@x.com", "hash", "open", "closed").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(1, now, now))

	p := &domain.Profile{Name: "Alice", Email: "a@x.com", PasswordHash: "hash", OpenInfo: "open", ClosedInfo: "closed"}
	require.NoError(t, repo.Create(context.Background(), p))
	assert.Equal(t, int64(1), p.ID)
}

func TestPostgresProfiles_CreateDuplicateEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresProfileRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO profiles")).
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	err := repo.Create(context.Background(), &domain.Profile{Email: "a@x.com"})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)
}

func TestPostgresProfiles_GetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresProfileRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM profiles WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresProfiles_ListEscapesKeyword(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresProfileRepository(db, nil)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("open_info ILIKE")).
		WithArgs(`100\%`, 10, 20).
		WillReturnRows(sqlmock.NewRows(profileRowColumns).
			AddRow(3, "Bob", "b@x.com", "hash", "100% fun", "", now, now))

	page, err := repo.List(context.Background(), "100%", 20, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Bob", page[0].Name)
}

func TestPostgresProfiles_GetByIDsEmptySkipsQuery(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewPostgresProfileRepository(db, nil)

	out, err := repo.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPostgresProfiles_DeleteMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresProfileRepository(db, nil)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM profiles")).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), 4), domain.ErrNotFound)
}

func TestPostgresRelations_CreateConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRelationRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT DO NOTHING")).
		WithArgs(int64(1), int64(2), "PENDING").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}))

	err := repo.Create(context.Background(), &domain.Relation{InitiatorID: 1, AimID: 2, State: domain.RelationPending})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestPostgresRelations_CreateMissingParticipant(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRelationRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO relations")).
		WillReturnError(&pq.Error{Code: pqForeignKeyViolation})

	err := repo.Create(context.Background(), &domain.Relation{InitiatorID: 1, AimID: 9, State: domain.RelationPending})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresRelations_TransitionStateMismatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRelationRepository(db, nil)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE relations")).
		WithArgs("APPROVED", int64(5), "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Transition(context.Background(), 5, domain.RelationPending, domain.RelationApproved)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresRelations_ListByAim(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRelationRepository(db, nil)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE aim_id = $1")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "initiator_id", "aim_id", "state", "created_at", "updated_at"}).
			AddRow(1, 1, 2, "PENDING", now, now).
			AddRow(2, 3, 2, "REJECTED", now, now))

	rels, err := repo.ListByAim(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.Equal(t, domain.RelationRejected, rels[1].State)
}

func TestPostgresRelations_DeleteIfState(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRelationRepository(db, nil)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM relations")).
		WithArgs(int64(3), "REJECTED").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.DeleteIfState(context.Background(), 3, domain.RelationRejected))
}

func TestPostgresOutbox_FetchUnpublished(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresOutboxRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE published_at IS NULL")).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "topic", "key", "payload", "created_at"}).
			AddRow("ev-1", "relation.liked", "1", []byte(`{}`), now))

	events, err := repo.FetchUnpublished(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ev-1", events[0].ID)
}
