package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
	"github.com/aussiebroadwan/sessionauth/internal/auth/lockout"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, store.Users) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)
	return mock, NewStoreWithPool(mock, "").Users()
}

func TestUsers_SwapRefreshTokenID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "matching id is swapped",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE users SET refresh_token_id`).
					WithArgs("u1", "old", "new", pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
		},
		{
			name: "stale id is a conflict",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE users SET refresh_token_id`).
					WithArgs("u1", "old", "new", pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
				mock.ExpectQuery(`SELECT 1 FROM users`).
					WithArgs("u1").
					WillReturnRows(pgxmock.NewRows([]string{"one"}).AddRow(1))
			},
			wantErr: store.ErrConflict,
		},
		{
			name: "missing user",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE users SET refresh_token_id`).
					WithArgs("u1", "old", "new", pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
				mock.ExpectQuery(`SELECT 1 FROM users`).
					WithArgs("u1").
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: store.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, users := newMock(t)
			tt.setupMock(mock)

			err := users.SwapRefreshTokenID(context.Background(), "u1", "old", "new", epoch)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUsers_CreateUser(t *testing.T) {
	t.Parallel()

	u := domain.User{
		ID:           "u1",
		Email:        "A@X.com",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		PasswordHash: "hash",
		CreatedAt:    epoch,
		UpdatedAt:    epoch,
	}

	t.Run("unique violation", func(t *testing.T) {
		mock, users := newMock(t)
		mock.ExpectExec(`INSERT INTO users`).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

		err := users.CreateUser(context.Background(), u)
		require.ErrorIs(t, err, store.ErrAlreadyExists)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver error is wrapped", func(t *testing.T) {
		mock, users := newMock(t)
		boom := errors.New("connection refused")
		mock.ExpectExec(`INSERT INTO users`).WillReturnError(boom)

		err := users.CreateUser(context.Background(), u)
		require.ErrorIs(t, err, boom)
		require.NotErrorIs(t, err, store.ErrAlreadyExists)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("email is normalised", func(t *testing.T) {
		mock, users := newMock(t)
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(
				"u1", "a@x.com", "Ada", "Lovelace", "hash", false,
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				0, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, users.CreateUser(context.Background(), u))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUsers_RecordFailedLogin(t *testing.T) {
	t.Parallel()
	policy := lockout.DefaultPolicy()

	t.Run("returns the new state", func(t *testing.T) {
		mock, users := newMock(t)
		until := epoch.Add(policy.Duration)
		mock.ExpectQuery(`UPDATE users SET`).
			WithArgs("u1", pgxmock.AnyArg(), policy.Threshold, pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"login_attempts", "lock_until"}).AddRow(5, &until))

		st, err := users.RecordFailedLogin(context.Background(), "u1", policy, epoch)
		require.NoError(t, err)
		require.Equal(t, 5, st.Attempts)
		require.NotNil(t, st.LockUntil)
		require.True(t, until.Equal(*st.LockUntil))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("open state", func(t *testing.T) {
		mock, users := newMock(t)
		mock.ExpectQuery(`UPDATE users SET`).
			WithArgs("u1", pgxmock.AnyArg(), policy.Threshold, pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"login_attempts", "lock_until"}).AddRow(2, (*time.Time)(nil)))

		st, err := users.RecordFailedLogin(context.Background(), "u1", policy, epoch)
		require.NoError(t, err)
		require.Equal(t, 2, st.Attempts)
		require.Nil(t, st.LockUntil)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		mock, users := newMock(t)
		mock.ExpectQuery(`UPDATE users SET`).WillReturnError(pgx.ErrNoRows)

		_, err := users.RecordFailedLogin(context.Background(), "u1", policy, epoch)
		require.ErrorIs(t, err, store.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUsers_ConsumeVerificationTokenMiss(t *testing.T) {
	t.Parallel()
	mock, users := newMock(t)
	mock.ExpectQuery(`UPDATE users SET`).
		WithArgs("fp", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err := users.ConsumeVerificationToken(context.Background(), "fp", epoch)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsers_SetResetToken(t *testing.T) {
	t.Parallel()

	t.Run("stored", func(t *testing.T) {
		mock, users := newMock(t)
		mock.ExpectExec(`UPDATE users SET reset_token`).
			WithArgs("u1", "fp", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, users.SetResetToken(context.Background(), "u1", "fp", epoch.Add(15*time.Minute), epoch))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing user", func(t *testing.T) {
		mock, users := newMock(t)
		mock.ExpectExec(`UPDATE users SET reset_token`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := users.SetResetToken(context.Background(), "u1", "fp", epoch, epoch)
		require.ErrorIs(t, err, store.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUsers_ClearExpiredTokens(t *testing.T) {
	t.Parallel()
	mock, users := newMock(t)
	mock.ExpectExec(`UPDATE users SET`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := users.ClearExpiredTokens(context.Background(), epoch)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationURL(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"postgres://u:p@h:5432/db?sslmode=disable", "pgx5://u:p@h:5432/db?sslmode=disable"},
		{"postgresql://u:p@h:5432/db?sslmode=disable", "pgx5://u:p@h:5432/db?sslmode=disable"},
		{"pgx5://u:p@h/db", "pgx5://u:p@h/db"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, migrationURL(tt.in))
	}
}
