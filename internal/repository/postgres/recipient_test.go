package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/dispatch/internal/domain"
	"github.com/ignite/dispatch/internal/service/recipient"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var recipientCols = []string{"id", "email", "first_name", "last_name", "is_subscribed", "created_at", "updated_at"}

func TestRecipientRepo_Get(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRecipientRepo(db)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("SELECT .+ FROM recipients WHERE id = \\$1").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(recipientCols).
			AddRow(7, "ann@example.com", "Ann", "Lee", true, created, created))

	r, err := repo.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), r.ID)
	assert.Equal(t, "ann@example.com", r.Email)
	assert.Equal(t, "Ann", r.FirstName)
	assert.True(t, r.IsSubscribed)
	assert.Equal(t, created, r.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecipientRepo_GetNotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRecipientRepo(db)

	mock.ExpectQuery("FROM recipients WHERE email = \\$1").
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	assert.True(t, errors.Is(err, recipient.ErrNotFound))
}

func TestRecipientRepo_Create(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRecipientRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO recipients").
		WithArgs("ann@example.com", "Ann", "", true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(3, now, now))

	r := &domain.Recipient{Email: "ann@example.com", FirstName: "Ann", IsSubscribed: true}
	require.NoError(t, repo.Create(context.Background(), r))
	assert.Equal(t, int64(3), r.ID)
	assert.Equal(t, now, r.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecipientRepo_CreateDuplicate(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRecipientRepo(db)

	mock.ExpectQuery("INSERT INTO recipients").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "recipients_email_key"})

	err := repo.Create(context.Background(), &domain.Recipient{Email: "ann@example.com"})
	assert.ErrorIs(t, err, domain.ErrStorageConflict)
}

func TestRecipientRepo_UpdateKeepsCreatedAt(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRecipientRepo(db)
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	updated := time.Now().UTC()

	mock.ExpectQuery("UPDATE recipients\\s+SET first_name = \\$2, last_name = \\$3, is_subscribed = \\$4, updated_at = NOW\\(\\)").
		WithArgs(int64(3), "Ann", "Lee", false).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(updated))

	r := &domain.Recipient{ID: 3, FirstName: "Ann", LastName: "Lee", CreatedAt: created}
	require.NoError(t, repo.Update(context.Background(), r))
	assert.Equal(t, created, r.CreatedAt)
	assert.Equal(t, updated, r.UpdatedAt)
}

func TestRecipientRepo_AddToListMissingList(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRecipientRepo(db)

	mock.ExpectExec("INSERT INTO recipient_lists").
		WithArgs(int64(9), int64(1)).
		WillReturnError(&pq.Error{Code: "23503", Constraint: "recipient_lists_list_id_fkey"})

	err := repo.AddToList(context.Background(), 9, 1)
	assert.ErrorIs(t, err, recipient.ErrListNotFound)
}

func TestRecipientRepo_ListMembersSubscribedOnly(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRecipientRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("JOIN recipient_lists .+ AND r.is_subscribed = true ORDER BY r.id").
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows(recipientCols).
			AddRow(1, "a@example.com", "", "", true, now, now).
			AddRow(2, "b@example.com", "", "", true, now, now))

	members, err := repo.ListMembers(context.Background(), 4, true)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, int64(2), members[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
