package user

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foothill/blog/internal/database"
)

var userColumns = []string{"id", "username", "email", "password_hash", "image_file", "created_at", "updated_at"}

func newRepoWithMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return NewRepository(database.NewBunDB(sqlDB)), mock
}

func TestGetByEmail_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM "users" AS "u" WHERE \("email" = 'a@x\.com'\)`).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(id.String(), "alice", "a@x.com", "$argon2id$hash", "default.jpg", now, now))

	got, err := repo.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "default.jpg", got.ImageFile)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByUsername_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT .+ FROM "users" AS "u" WHERE \("username" = 'ghost'\)`).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreate_DuplicateTranslated(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{constraint: database.UsersEmailKey, want: ErrDuplicateEmail},
		{constraint: database.UsersUsernameKey, want: ErrDuplicateUsername},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			repo, mock := newRepoWithMock(t)

			mock.ExpectQuery(`INSERT INTO "users"`).
				WillReturnError(&pq.Error{Code: "23505", Constraint: tt.constraint})

			_, err := repo.Create(context.Background(), "alice", "a@x.com", "hash")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreate_OtherErrorWrapped(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT INTO "users"`).
		WillReturnError(&pq.Error{Code: "08006"})

	_, err := repo.Create(context.Background(), "alice", "a@x.com", "hash")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateEmail)
	assert.Contains(t, err.Error(), "failed to create user")
}

func TestUpdatePassword_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`UPDATE "users".*SET password_hash = '\$argon2id\$new'`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdatePassword(context.Background(), uuid.New(), "$argon2id$new")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePassword_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`UPDATE "users"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdatePassword(context.Background(), uuid.New(), "hash"))
	require.NoError(t, mock.ExpectationsWereMet())
}
