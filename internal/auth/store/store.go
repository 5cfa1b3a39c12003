package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
	"github.com/aussiebroadwan/sessionauth/internal/auth/lockout"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict is returned when a conditional update matched the row but
	// its guard did not hold (stale refresh token id, live lock).
	ErrConflict = errors.New("store: conflict")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this and expose sub-repositories.
//
// There is no transaction API: every state transition on an identity is a
// single conditional statement, so the database's row-level atomicity is the
// only concurrency control.
type Store interface {
	Users() Users

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail looks a user up by normalised email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user. A taken email yields ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// RecordFailedLogin applies policy.Fail to the stored lockout state in one
	// statement and returns the resulting state.
	RecordFailedLogin(ctx context.Context, userID string, policy lockout.Policy, now time.Time) (lockout.Status, error)

	// ResetLockout zeroes the attempt counter and clears the lock window.
	ResetLockout(ctx context.Context, userID string, now time.Time) error

	// RecordSuccessfulLogin resets lockout, sets last_login and installs a new
	// refresh token id. It returns ErrConflict if a lock became active since
	// the caller read the record.
	RecordSuccessfulLogin(ctx context.Context, userID, refreshTokenID string, now time.Time) (domain.User, error)

	// SetRefreshTokenID installs a refresh token id unconditionally.
	SetRefreshTokenID(ctx context.Context, userID, refreshTokenID string, now time.Time) error

	// SwapRefreshTokenID replaces expected with next. It returns ErrConflict
	// when the stored id is not expected, so of two racing callers presenting
	// the same id exactly one wins.
	SwapRefreshTokenID(ctx context.Context, userID, expected, next string, now time.Time) error

	// ClearRefreshTokenID forgets the current refresh lineage.
	ClearRefreshTokenID(ctx context.Context, userID string, now time.Time) error

	// ConsumeVerificationToken marks the owner of an unexpired verification
	// token fingerprint as verified and clears the token in the same statement.
	ConsumeVerificationToken(ctx context.Context, fingerprint string, now time.Time) (domain.User, error)

	// SetResetToken stores a reset token fingerprint, replacing any previous one.
	SetResetToken(ctx context.Context, userID, fingerprint string, expiry, now time.Time) error

	// ConsumeResetToken swaps in the new password hash for the owner of an
	// unexpired reset token fingerprint, clearing the token, the refresh token
	// id and the lockout state in the same statement.
	ConsumeResetToken(ctx context.Context, fingerprint, passwordHash string, now time.Time) (domain.User, error)

	// ClearExpiredTokens nulls out lapsed verification and reset tokens and
	// lapsed lock windows. It returns the number of rows touched.
	ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}
