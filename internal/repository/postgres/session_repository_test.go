package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"leadership-portal/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionColumns = []string{
	"id", "user_id", "token", "csrf_token", "csrf_issued_at", "last_activity_at", "expires_at", "created_at",
}

func setupSessionRepositoryMocks(mock sqlmock.Sqlmock) {
	for _, q := range []string{
		createSessionSQL,
		getSessionByTokenSQL,
		touchSessionSQL,
		updateCSRFTokenSQL,
		consumeCSRFTokenSQL,
		deleteSessionSQL,
		deleteExpiredSQL,
	} {
		mock.ExpectPrepare(regexp.QuoteMeta(q))
	}
}

func newSessionRepo(t *testing.T) (*SessionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	setupSessionRepositoryMocks(mock)
	repo, err := NewSessionRepository(db)
	require.NoError(t, err)
	return repo, mock
}

func TestNewSessionRepository(t *testing.T) {
	t.Run("successful_creation", func(t *testing.T) {
		repo, mock := newSessionRepo(t)
		assert.NotNil(t, repo)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fails_when_prepare_touch_fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPrepare(regexp.QuoteMeta(createSessionSQL))
		mock.ExpectPrepare(regexp.QuoteMeta(getSessionByTokenSQL))
		mock.ExpectPrepare(regexp.QuoteMeta(touchSessionSQL)).WillReturnError(errors.New("prepare failed"))

		repo, err := NewSessionRepository(db)
		require.Error(t, err)
		assert.Nil(t, repo)
		assert.Contains(t, err.Error(), "failed to prepare touch statement")
	})
}

func TestSessionRepository_Create(t *testing.T) {
	t.Run("successful_creation", func(t *testing.T) {
		repo, mock := newSessionRepo(t)

		createdAt := time.Now()
		expiresAt := createdAt.Add(30 * time.Minute)
		mock.ExpectQuery(regexp.QuoteMeta(createSessionSQL)).
			WithArgs("user-123", "token123", "", sqlmock.AnyArg(), sqlmock.AnyArg(), expiresAt).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
				AddRow("550e8400-e29b-41d4-a716-446655440000", createdAt))

		session := &domain.Session{UserID: "user-123", Token: "token123", ExpiresAt: expiresAt}
		err := repo.Create(context.Background(), session)

		require.NoError(t, err)
		assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", session.ID)
		assert.Equal(t, createdAt, session.CreatedAt)
		assert.False(t, session.LastActivityAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database_error", func(t *testing.T) {
		repo, mock := newSessionRepo(t)

		mock.ExpectQuery(regexp.QuoteMeta(createSessionSQL)).WillReturnError(errors.New("database error"))

		err := repo.Create(context.Background(), &domain.Session{UserID: "user-123", Token: "token123"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create session")
	})
}

func TestSessionRepository_GetByToken(t *testing.T) {
	t.Run("returns_expired_sessions", func(t *testing.T) {
		repo, mock := newSessionRepo(t)

		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(getSessionByTokenSQL)).
			WithArgs("token123").
			WillReturnRows(sqlmock.NewRows(sessionColumns).
				AddRow("s-1", "user-123", "token123", "csrf", now.Add(-time.Hour), now.Add(-time.Hour), now.Add(-time.Minute), now.Add(-2*time.Hour)))

		session, err := repo.GetByToken(context.Background(), "token123")

		require.NoError(t, err)
		assert.Equal(t, "user-123", session.UserID)
		assert.Equal(t, "csrf", session.CSRFToken)
		assert.True(t, session.Expired(now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("null_csrf_issued_at", func(t *testing.T) {
		repo, mock := newSessionRepo(t)

		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(getSessionByTokenSQL)).
			WithArgs("token123").
			WillReturnRows(sqlmock.NewRows(sessionColumns).
				AddRow("s-1", "user-123", "token123", "", nil, now, now.Add(time.Hour), now))

		session, err := repo.GetByToken(context.Background(), "token123")
		require.NoError(t, err)
		assert.True(t, session.CSRFIssuedAt.IsZero())
	})

	t.Run("not_found", func(t *testing.T) {
		repo, mock := newSessionRepo(t)

		mock.ExpectQuery(regexp.QuoteMeta(getSessionByTokenSQL)).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByToken(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("database_error", func(t *testing.T) {
		repo, mock := newSessionRepo(t)

		mock.ExpectQuery(regexp.QuoteMeta(getSessionByTokenSQL)).
			WillReturnError(errors.New("connection refused"))

		_, err := repo.GetByToken(context.Background(), "token123")
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrSessionNotFound)
		assert.Contains(t, err.Error(), "failed to get session by token")
	})
}

func TestSessionRepository_Touch(t *testing.T) {
	t.Run("returns_stored_expiry", func(t *testing.T) {
		repo, mock := newSessionRepo(t)

		now := time.Now()
		proposed := now.Add(30 * time.Minute)
		stored := now.Add(time.Hour)
		mock.ExpectQuery(regexp.QuoteMeta(touchSessionSQL)).
			WithArgs("token123", now, proposed).
			WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(stored))

		got, err := repo.Touch(context.Background(), "token123", now, proposed)

		require.NoError(t, err)
		assert.Equal(t, stored, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not_found", func(t *testing.T) {
		repo, mock := newSessionRepo(t)

		mock.ExpectQuery(regexp.QuoteMeta(touchSessionSQL)).WillReturnError(sql.ErrNoRows)

		_, err := repo.Touch(context.Background(), "gone", time.Now(), time.Now())
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

func TestSessionRepository_UpdateCSRFToken(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		repo, mock := newSessionRepo(t)

		issuedAt := time.Now()
		mock.ExpectExec(regexp.QuoteMeta(updateCSRFTokenSQL)).
			WithArgs("token123", "csrf-new", issuedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.UpdateCSRFToken(context.Background(), "token123", "csrf-new", issuedAt))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("session_missing", func(t *testing.T) {
		repo, mock := newSessionRepo(t)

		mock.ExpectExec(regexp.QuoteMeta(updateCSRFTokenSQL)).WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateCSRFToken(context.Background(), "gone", "csrf", time.Now())
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

func TestSessionRepository_ConsumeCSRFToken(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"first_use_consumes", 1, true},
		{"already_consumed", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newSessionRepo(t)

			mock.ExpectExec(regexp.QuoteMeta(consumeCSRFTokenSQL)).
				WithArgs("token123", "csrf").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			got, err := repo.ConsumeCSRFToken(context.Background(), "token123", "csrf")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("database_error", func(t *testing.T) {
		repo, mock := newSessionRepo(t)

		mock.ExpectExec(regexp.QuoteMeta(consumeCSRFTokenSQL)).WillReturnError(errors.New("timeout"))

		_, err := repo.ConsumeCSRFToken(context.Background(), "token123", "csrf")
		assert.Error(t, err)
	})
}

func TestSessionRepository_Delete(t *testing.T) {
	repo, mock := newSessionRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(deleteSessionSQL)).
		WithArgs("token123").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "token123"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	t.Run("returns_count", func(t *testing.T) {
		repo, mock := newSessionRepo(t)

		mock.ExpectExec(regexp.QuoteMeta(deleteExpiredSQL)).
			WithArgs(sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 5))

		count, err := repo.DeleteExpired(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(5), count)
	})

	t.Run("database_error", func(t *testing.T) {
		repo, mock := newSessionRepo(t)

		mock.ExpectExec(regexp.QuoteMeta(deleteExpiredSQL)).WillReturnError(errors.New("database error"))

		_, err := repo.DeleteExpired(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to delete expired sessions")
	})
}
