package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
	"github.com/aussiebroadwan/sessionauth/internal/auth/lockout"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store"
)

const userColumns = `id, email, first_name, last_name, password_hash, is_verified,
	verification_token, verification_expiry, reset_token, reset_expiry,
	login_attempts, lock_until, refresh_token_id, last_login, created_at, updated_at`

type usersRepo struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u                               domain.User
		verificationToken, resetToken   sql.NullString
		refreshTokenID                  sql.NullString
		verificationExpiry, resetExpiry sql.NullInt64
		lockUntil, lastLogin            sql.NullInt64
		createdAt, updatedAt            int64
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.IsVerified,
		&verificationToken, &verificationExpiry, &resetToken, &resetExpiry,
		&u.LoginAttempts, &lockUntil, &refreshTokenID, &lastLogin, &createdAt, &updatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.VerificationToken = mapNullString(verificationToken)
	u.VerificationExpiry = mapNullTime(verificationExpiry)
	u.ResetToken = mapNullString(resetToken)
	u.ResetExpiry = mapNullTime(resetExpiry)
	u.LockUntil = mapNullTime(lockUntil)
	u.RefreshTokenID = mapNullString(refreshTokenID)
	u.LastLogin = mapNullTime(lastLogin)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?1`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?1`, domain.NormalizeEmail(email)))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12, ?13, ?14, ?15, ?16)`,
		u.ID, domain.NormalizeEmail(u.Email), u.FirstName, u.LastName, u.PasswordHash, u.IsVerified,
		mapOptionalString(u.VerificationToken), mapOptionalTime(u.VerificationExpiry),
		mapOptionalString(u.ResetToken), mapOptionalTime(u.ResetExpiry),
		u.LoginAttempts, mapOptionalTime(u.LockUntil), mapOptionalString(u.RefreshTokenID),
		mapOptionalTime(u.LastLogin), toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	return mapUniqueViolation(err)
}

// RecordFailedLogin mirrors lockout.Policy.Fail in SQL. The right-hand sides
// all read the pre-update row.
func (r *usersRepo) RecordFailedLogin(
	ctx context.Context,
	userID string,
	policy lockout.Policy,
	now time.Time,
) (lockout.Status, error) {
	policy = policy.Normalize()

	var (
		attempts  int
		lockUntil sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		UPDATE users SET
			login_attempts = CASE
				WHEN lock_until IS NOT NULL AND lock_until > ?2 THEN login_attempts
				WHEN lock_until IS NOT NULL THEN 1
				ELSE login_attempts + 1
			END,
			lock_until = CASE
				WHEN lock_until IS NOT NULL AND lock_until > ?2 THEN lock_until
				WHEN lock_until IS NOT NULL THEN NULL
				WHEN login_attempts + 1 >= ?3 THEN ?4
				ELSE NULL
			END,
			updated_at = ?2
		WHERE id = ?1
		RETURNING login_attempts, lock_until`,
		userID, toMillis(now), policy.Threshold, toMillis(now.Add(policy.Duration)),
	).Scan(&attempts, &lockUntil)
	if err != nil {
		return lockout.Status{}, mapNotFound(err)
	}
	return lockout.Status{Attempts: attempts, LockUntil: mapNullTime(lockUntil)}, nil
}

func (r *usersRepo) ResetLockout(ctx context.Context, userID string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET login_attempts = 0, lock_until = NULL, updated_at = ?2
		WHERE id = ?1`,
		userID, toMillis(now),
	)
	return requireRow(res, err, store.ErrNotFound)
}

func (r *usersRepo) RecordSuccessfulLogin(
	ctx context.Context,
	userID, refreshTokenID string,
	now time.Time,
) (domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users SET
			login_attempts = 0,
			lock_until = NULL,
			last_login = ?2,
			refresh_token_id = ?3,
			updated_at = ?2
		WHERE id = ?1 AND (lock_until IS NULL OR lock_until <= ?2)
		RETURNING `+userColumns,
		userID, toMillis(now), refreshTokenID,
	))
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, r.conflictOrMissing(ctx, userID)
	}
	return u, err
}

func (r *usersRepo) SetRefreshTokenID(ctx context.Context, userID, refreshTokenID string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET refresh_token_id = ?2, updated_at = ?3
		WHERE id = ?1`,
		userID, refreshTokenID, toMillis(now),
	)
	return requireRow(res, err, store.ErrNotFound)
}

func (r *usersRepo) SwapRefreshTokenID(ctx context.Context, userID, expected, next string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET refresh_token_id = ?3, updated_at = ?4
		WHERE id = ?1 AND refresh_token_id = ?2`,
		userID, expected, next, toMillis(now),
	)
	err = requireRow(res, err, store.ErrNotFound)
	if errors.Is(err, store.ErrNotFound) {
		return r.conflictOrMissing(ctx, userID)
	}
	return err
}

func (r *usersRepo) ClearRefreshTokenID(ctx context.Context, userID string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET refresh_token_id = NULL, updated_at = ?2
		WHERE id = ?1`,
		userID, toMillis(now),
	)
	return requireRow(res, err, store.ErrNotFound)
}

func (r *usersRepo) ConsumeVerificationToken(ctx context.Context, fingerprint string, now time.Time) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users SET
			is_verified = 1,
			verification_token = NULL,
			verification_expiry = NULL,
			updated_at = ?2
		WHERE verification_token = ?1 AND verification_expiry > ?2
		RETURNING `+userColumns,
		fingerprint, toMillis(now),
	))
}

func (r *usersRepo) SetResetToken(
	ctx context.Context,
	userID, fingerprint string,
	expiry, now time.Time,
) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET reset_token = ?2, reset_expiry = ?3, updated_at = ?4
		WHERE id = ?1`,
		userID, fingerprint, toMillis(expiry), toMillis(now),
	)
	return requireRow(res, err, store.ErrNotFound)
}

func (r *usersRepo) ConsumeResetToken(
	ctx context.Context,
	fingerprint, passwordHash string,
	now time.Time,
) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users SET
			password_hash = ?2,
			reset_token = NULL,
			reset_expiry = NULL,
			refresh_token_id = NULL,
			login_attempts = 0,
			lock_until = NULL,
			updated_at = ?3
		WHERE reset_token = ?1 AND reset_expiry > ?3
		RETURNING `+userColumns,
		fingerprint, passwordHash, toMillis(now),
	))
}

func (r *usersRepo) ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			verification_token  = CASE WHEN verification_expiry <= ?1 THEN NULL ELSE verification_token END,
			verification_expiry = CASE WHEN verification_expiry <= ?1 THEN NULL ELSE verification_expiry END,
			reset_token         = CASE WHEN reset_expiry <= ?1 THEN NULL ELSE reset_token END,
			reset_expiry        = CASE WHEN reset_expiry <= ?1 THEN NULL ELSE reset_expiry END,
			login_attempts      = CASE WHEN lock_until <= ?1 THEN 0 ELSE login_attempts END,
			lock_until          = CASE WHEN lock_until <= ?1 THEN NULL ELSE lock_until END,
			updated_at          = ?1
		WHERE verification_expiry <= ?1 OR reset_expiry <= ?1 OR lock_until <= ?1`,
		toMillis(now),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// conflictOrMissing tells a failed guard apart from a missing row.
func (r *usersRepo) conflictOrMissing(ctx context.Context, userID string) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?1`, userID).Scan(&one)
	if err != nil {
		return mapNotFound(err)
	}
	return store.ErrConflict
}

func requireRow(res sql.Result, err error, missing error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
