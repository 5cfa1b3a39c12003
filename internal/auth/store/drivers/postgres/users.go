package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
	"github.com/aussiebroadwan/sessionauth/internal/auth/lockout"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

const userColumns = `id, email, first_name, last_name, password_hash, is_verified,
	verification_token, verification_expiry, reset_token, reset_expiry,
	login_attempts, lock_until, refresh_token_id, last_login, created_at, updated_at`

type usersRepo struct {
	pool pool
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.IsVerified,
		&u.VerificationToken, &u.VerificationExpiry, &u.ResetToken, &u.ResetExpiry,
		&u.LoginAttempts, &u.LockUntil, &u.RefreshTokenID, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	for _, t := range []*time.Time{u.VerificationExpiry, u.ResetExpiry, u.LockUntil, u.LastLogin} {
		if t != nil {
			*t = t.UTC()
		}
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, domain.NormalizeEmail(email)))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		u.ID, domain.NormalizeEmail(u.Email), u.FirstName, u.LastName, u.PasswordHash, u.IsVerified,
		u.VerificationToken, u.VerificationExpiry, u.ResetToken, u.ResetExpiry,
		u.LoginAttempts, u.LockUntil, u.RefreshTokenID, u.LastLogin, u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	if err != nil {
		if err := mapUniqueViolation(err); errors.Is(err, store.ErrAlreadyExists) {
			return err
		}
		return oops.With("operation", "create user").Wrap(err)
	}
	return nil
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

	var st lockout.Status
	err := r.pool.QueryRow(ctx, `
		UPDATE users SET
			login_attempts = CASE
				WHEN lock_until IS NOT NULL AND lock_until > $2 THEN login_attempts
				WHEN lock_until IS NOT NULL THEN 1
				ELSE login_attempts + 1
			END,
			lock_until = CASE
				WHEN lock_until IS NOT NULL AND lock_until > $2 THEN lock_until
				WHEN lock_until IS NOT NULL THEN NULL
				WHEN login_attempts + 1 >= $3 THEN $4
				ELSE NULL
			END,
			updated_at = $2
		WHERE id = $1
		RETURNING login_attempts, lock_until`,
		userID, now.UTC(), policy.Threshold, now.Add(policy.Duration).UTC(),
	).Scan(&st.Attempts, &st.LockUntil)
	if err != nil {
		return lockout.Status{}, r.wrap("record failed login", mapNotFound(err))
	}
	if st.LockUntil != nil {
		*st.LockUntil = st.LockUntil.UTC()
	}
	return st, nil
}

func (r *usersRepo) ResetLockout(ctx context.Context, userID string, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET login_attempts = 0, lock_until = NULL, updated_at = $2
		WHERE id = $1`,
		userID, now.UTC(),
	)
	return r.wrap("reset lockout", requireRow(tag, err))
}

func (r *usersRepo) RecordSuccessfulLogin(
	ctx context.Context,
	userID, refreshTokenID string,
	now time.Time,
) (domain.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `
		UPDATE users SET
			login_attempts = 0,
			lock_until = NULL,
			last_login = $2,
			refresh_token_id = $3,
			updated_at = $2
		WHERE id = $1 AND (lock_until IS NULL OR lock_until <= $2)
		RETURNING `+userColumns,
		userID, now.UTC(), refreshTokenID,
	))
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, r.conflictOrMissing(ctx, userID)
	}
	return u, r.wrap("record successful login", err)
}

func (r *usersRepo) SetRefreshTokenID(ctx context.Context, userID, refreshTokenID string, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET refresh_token_id = $2, updated_at = $3
		WHERE id = $1`,
		userID, refreshTokenID, now.UTC(),
	)
	return r.wrap("set refresh token id", requireRow(tag, err))
}

func (r *usersRepo) SwapRefreshTokenID(ctx context.Context, userID, expected, next string, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET refresh_token_id = $3, updated_at = $4
		WHERE id = $1 AND refresh_token_id = $2`,
		userID, expected, next, now.UTC(),
	)
	err = requireRow(tag, err)
	if errors.Is(err, store.ErrNotFound) {
		return r.conflictOrMissing(ctx, userID)
	}
	return r.wrap("swap refresh token id", err)
}

func (r *usersRepo) ClearRefreshTokenID(ctx context.Context, userID string, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET refresh_token_id = NULL, updated_at = $2
		WHERE id = $1`,
		userID, now.UTC(),
	)
	return r.wrap("clear refresh token id", requireRow(tag, err))
}

func (r *usersRepo) ConsumeVerificationToken(ctx context.Context, fingerprint string, now time.Time) (domain.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `
		UPDATE users SET
			is_verified = TRUE,
			verification_token = NULL,
			verification_expiry = NULL,
			updated_at = $2
		WHERE verification_token = $1 AND verification_expiry > $2
		RETURNING `+userColumns,
		fingerprint, now.UTC(),
	))
	return u, r.wrap("consume verification token", err)
}

func (r *usersRepo) SetResetToken(
	ctx context.Context,
	userID, fingerprint string,
	expiry, now time.Time,
) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET reset_token = $2, reset_expiry = $3, updated_at = $4
		WHERE id = $1`,
		userID, fingerprint, expiry.UTC(), now.UTC(),
	)
	return r.wrap("set reset token", requireRow(tag, err))
}

func (r *usersRepo) ConsumeResetToken(
	ctx context.Context,
	fingerprint, passwordHash string,
	now time.Time,
) (domain.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `
		UPDATE users SET
			password_hash = $2,
			reset_token = NULL,
			reset_expiry = NULL,
			refresh_token_id = NULL,
			login_attempts = 0,
			lock_until = NULL,
			updated_at = $3
		WHERE reset_token = $1 AND reset_expiry > $3
		RETURNING `+userColumns,
		fingerprint, passwordHash, now.UTC(),
	))
	return u, r.wrap("consume reset token", err)
}

func (r *usersRepo) ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET
			verification_token  = CASE WHEN verification_expiry <= $1 THEN NULL ELSE verification_token END,
			verification_expiry = CASE WHEN verification_expiry <= $1 THEN NULL ELSE verification_expiry END,
			reset_token         = CASE WHEN reset_expiry <= $1 THEN NULL ELSE reset_token END,
			reset_expiry        = CASE WHEN reset_expiry <= $1 THEN NULL ELSE reset_expiry END,
			login_attempts      = CASE WHEN lock_until <= $1 THEN 0 ELSE login_attempts END,
			lock_until          = CASE WHEN lock_until <= $1 THEN NULL ELSE lock_until END,
			updated_at          = $1
		WHERE verification_expiry <= $1 OR reset_expiry <= $1 OR lock_until <= $1`,
		now.UTC(),
	)
	if err != nil {
		return 0, r.wrap("clear expired tokens", err)
	}
	return tag.RowsAffected(), nil
}

// conflictOrMissing tells a failed guard apart from a missing row.
func (r *usersRepo) conflictOrMissing(ctx context.Context, userID string) error {
	var one int
	err := r.pool.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1`, userID).Scan(&one)
	if err != nil {
		return r.wrap("lookup user", mapNotFound(err))
	}
	return store.ErrConflict
}

// wrap attaches context to driver errors and passes store sentinels through
// untouched.
func (r *usersRepo) wrap(operation string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrAlreadyExists):
		return err
	default:
		return oops.With("operation", operation).Wrap(err)
	}
}

func requireRow(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
