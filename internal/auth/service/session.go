package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
	"github.com/aussiebroadwan/sessionauth/internal/auth/lockout"
	"github.com/aussiebroadwan/sessionauth/internal/auth/metrics"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store"
	"github.com/aussiebroadwan/sessionauth/pkg/cryptox"
	"github.com/aussiebroadwan/sessionauth/pkg/errutil"
	"github.com/aussiebroadwan/sessionauth/pkg/idx"
	"github.com/aussiebroadwan/sessionauth/pkg/jwtx"
	"github.com/aussiebroadwan/sessionauth/pkg/slogx"
	"github.com/samber/oops"
)

const (
	DefaultVerificationTTL = 24 * time.Hour
	DefaultResetTTL        = 15 * time.Minute
	DefaultMailTimeout     = time.Minute
)

// Mailer delivers the two transactional emails. Implementations must honour
// ctx cancellation.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, token string) error
}

// RegisterInput is the registration request.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// RegisterResult reports the created profile. EmailSent is false when the
// verification email could not be delivered; the account exists regardless.
type RegisterResult struct {
	User      domain.Profile
	EmailSent bool
}

// LogoutInput identifies the caller. Either field may be empty.
type LogoutInput struct {
	UserID       string // from a verified access token
	RefreshToken string
}

// SessionService owns every credential and session state transition.
type SessionService struct {
	Store   store.Store
	Hasher  *cryptox.Hasher
	Tokens  *jwtx.Codec
	Mailer  Mailer
	Lockout lockout.Policy
	Metrics *metrics.Metrics

	// Now defaults to time.Now. It must agree with the clock of Tokens.
	Now func() time.Time

	VerificationTTL time.Duration // default 24h
	ResetTTL        time.Duration // default 15m
	MailTimeout     time.Duration // bounds a detached reset email; default 1m

	mail sync.WaitGroup
}

func (s *SessionService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *SessionService) verificationTTL() time.Duration {
	if s.VerificationTTL <= 0 {
		return DefaultVerificationTTL
	}
	return s.VerificationTTL
}

func (s *SessionService) mailTimeout() time.Duration {
	if s.MailTimeout > 0 {
		return s.MailTimeout
	}
	return DefaultMailTimeout
}

func (s *SessionService) resetTTL() time.Duration {
	if s.ResetTTL <= 0 {
		return DefaultResetTTL
	}
	return s.ResetTTL
}

// Register creates an unverified account and sends the verification email.
func (s *SessionService) Register(ctx context.Context, in RegisterInput) (res RegisterResult, err error) {
	defer s.observe("register", &err)
	l := slogx.FromContext(ctx)

	if err := validateRegister(in); err != nil {
		return RegisterResult{}, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return RegisterResult{}, oops.In("session").Code("REGISTER_FAILED").Wrap(err)
	}

	verify, err := cryptox.NewOpaqueToken()
	if err != nil {
		return RegisterResult{}, oops.In("session").Code("REGISTER_FAILED").Wrap(err)
	}

	now := s.now()
	expiry := now.Add(s.verificationTTL())
	u := domain.User{
		ID:                 idx.NewAt(now).String(),
		Email:              domain.NormalizeEmail(in.Email),
		FirstName:          strings.TrimSpace(in.FirstName),
		LastName:           strings.TrimSpace(in.LastName),
		PasswordHash:       hash,
		VerificationToken:  &verify.Fingerprint,
		VerificationExpiry: &expiry,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return RegisterResult{}, ErrAlreadyExists
		}
		return RegisterResult{}, oops.In("session").Code("REGISTER_FAILED").Wrap(err)
	}
	l.Info("user registered", "user_id", u.ID)

	res = RegisterResult{User: u.Profile(), EmailSent: true}
	if err := s.sendMail(ctx, "verification", u.Email, verify.Value); err != nil {
		errutil.LogWarn(l, "verification email not sent", oops.With("user_id", u.ID).Wrap(err))
		res.EmailSent = false
	}
	return res, nil
}

// Login authenticates by email and password and opens a new session,
// replacing any previous refresh lineage.
func (s *SessionService) Login(ctx context.Context, email, password string) (sess *domain.Session, err error) {
	defer s.observe("login", &err)
	l := slogx.FromContext(ctx)

	if err := validateLogin(email, password); err != nil {
		return nil, err
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		s.verifyDummy(password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, oops.In("session").Code("LOGIN_FAILED").Wrap(err)
	}

	now := s.now()
	if state := s.Lockout.StateAt(u.LockUntil, now); state == lockout.Locked {
		l.Info("login refused", "user_id", u.ID, "lockout", state.String())
		return nil, ErrAccountLocked
	}

	if !s.verify(u.PasswordHash, password) {
		st, err := s.Store.Users().RecordFailedLogin(ctx, u.ID, s.Lockout, now)
		if err != nil {
			return nil, oops.In("session").Code("LOGIN_FAILED").With("user_id", u.ID).Wrap(err)
		}
		if st.Locked(now) {
			s.Metrics.Lockout()
			l.Warn("account locked after failed logins", "user_id", u.ID, "attempts", st.Attempts)
			return nil, ErrAccountLocked
		}
		l.Info("login failed", "user_id", u.ID, "attempts", st.Attempts)
		return nil, ErrInvalidCredentials
	}

	if !u.IsVerified {
		// The password was proven, so the failure streak ends here.
		if u.LoginAttempts > 0 || u.LockUntil != nil {
			if err := s.Store.Users().ResetLockout(ctx, u.ID, now); err != nil {
				return nil, oops.In("session").Code("LOGIN_FAILED").With("user_id", u.ID).Wrap(err)
			}
		}
		return nil, ErrEmailNotVerified
	}

	tokenID, err := newTokenID()
	if err != nil {
		return nil, oops.In("session").Code("LOGIN_FAILED").Wrap(err)
	}
	refresh, refreshExp, err := s.Tokens.IssueRefresh(u.ID, u.Email, tokenID)
	if err != nil {
		return nil, oops.In("session").Code("LOGIN_FAILED").Wrap(err)
	}

	userID := u.ID
	u, err = s.Store.Users().RecordSuccessfulLogin(ctx, userID, tokenID, now)
	switch {
	case errors.Is(err, store.ErrConflict):
		// A concurrent failure locked the account after we read it.
		return nil, ErrAccountLocked
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, oops.In("session").Code("LOGIN_FAILED").With("user_id", userID).Wrap(err)
	}

	sess, err = s.openSession(u, refresh, refreshExp)
	if err != nil {
		return nil, oops.In("session").Code("LOGIN_FAILED").With("user_id", u.ID).Wrap(err)
	}
	l.Info("user logged in", "user_id", u.ID)
	return sess, nil
}

// Refresh exchanges a refresh token for a new session. The presented token
// is single use: of two concurrent refreshes with the same token at most one
// succeeds.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (sess *domain.Session, err error) {
	defer s.observe("refresh", &err)
	l := slogx.FromContext(ctx)

	if refreshToken == "" {
		return nil, ErrMissingToken
	}

	claims, err := s.Tokens.VerifyRefresh(refreshToken)
	if err != nil {
		l.Debug("refresh token rejected", "reason", err)
		return nil, ErrInvalidToken
	}

	u, err := s.Store.Users().GetUserByID(ctx, claims.UserID())
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, oops.In("session").Code("REFRESH_FAILED").Wrap(err)
	}

	if u.RefreshTokenID == nil || !cryptox.EqualTokens(*u.RefreshTokenID, claims.TokenID) {
		l.Warn("refresh token reuse rejected", "user_id", u.ID)
		return nil, ErrInvalidToken
	}

	refresh, refreshExp, err := s.rotate(ctx, u.ID, u.Email, claims.TokenID)
	if err != nil {
		return nil, err
	}

	sess, err = s.openSession(u, refresh, refreshExp)
	if err != nil {
		return nil, oops.In("session").Code("REFRESH_FAILED").With("user_id", u.ID).Wrap(err)
	}
	return sess, nil
}

// RotateRefreshToken mints a new refresh lineage id for the user and returns
// a refresh token naming it. With a non-empty expectedTokenID the rotation
// only happens if that id is still current; otherwise it is unconditional.
func (s *SessionService) RotateRefreshToken(
	ctx context.Context,
	userID, email, expectedTokenID string,
) (string, time.Time, error) {
	return s.rotate(ctx, userID, email, expectedTokenID)
}

func (s *SessionService) rotate(ctx context.Context, userID, email, expected string) (string, time.Time, error) {
	tokenID, err := newTokenID()
	if err != nil {
		return "", time.Time{}, oops.In("session").Code("ROTATE_FAILED").Wrap(err)
	}
	refresh, exp, err := s.Tokens.IssueRefresh(userID, email, tokenID)
	if err != nil {
		return "", time.Time{}, oops.In("session").Code("ROTATE_FAILED").Wrap(err)
	}

	if expected == "" {
		err = s.Store.Users().SetRefreshTokenID(ctx, userID, tokenID, s.now())
	} else {
		err = s.Store.Users().SwapRefreshTokenID(ctx, userID, expected, tokenID, s.now())
	}
	switch {
	case errors.Is(err, store.ErrConflict):
		return "", time.Time{}, ErrInvalidToken
	case errors.Is(err, store.ErrNotFound):
		return "", time.Time{}, ErrUserNotFound
	case err != nil:
		return "", time.Time{}, oops.In("session").Code("ROTATE_FAILED").With("user_id", userID).Wrap(err)
	}
	return refresh, exp, nil
}

// Logout forgets the caller's refresh lineage so that no outstanding refresh
// token can be used again. An unidentified caller is a no-op.
func (s *SessionService) Logout(ctx context.Context, in LogoutInput) (err error) {
	defer s.observe("logout", &err)

	userID := in.UserID
	if userID == "" && in.RefreshToken != "" {
		claims, err := s.Tokens.VerifyRefresh(in.RefreshToken)
		if err != nil {
			return nil
		}
		u, err := s.Store.Users().GetUserByID(ctx, claims.UserID())
		if err != nil || u.RefreshTokenID == nil || !cryptox.EqualTokens(*u.RefreshTokenID, claims.TokenID) {
			// A superseded token may not end the current session.
			return nil
		}
		userID = u.ID
	}
	if userID == "" {
		return nil
	}

	err = s.Store.Users().ClearRefreshTokenID(ctx, userID, s.now())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return oops.In("session").Code("LOGOUT_FAILED").With("user_id", userID).Wrap(err)
	}
	slogx.FromContext(ctx).Info("user logged out", "user_id", userID)
	return nil
}

// VerifyEmail consumes a verification token.
func (s *SessionService) VerifyEmail(ctx context.Context, token string) (p domain.Profile, err error) {
	defer s.observe("verify_email", &err)

	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Profile{}, ErrInvalidOrExpiredToken
	}

	u, err := s.Store.Users().ConsumeVerificationToken(ctx, cryptox.FingerprintToken(token), s.now())
	if errors.Is(err, store.ErrNotFound) {
		return domain.Profile{}, ErrInvalidOrExpiredToken
	}
	if err != nil {
		return domain.Profile{}, oops.In("session").Code("VERIFY_FAILED").Wrap(err)
	}
	slogx.FromContext(ctx).Info("email verified", "user_id", u.ID)
	return u.Profile(), nil
}

// RequestPasswordReset sends a reset link if the email belongs to an
// account. The result never says whether it does.
func (s *SessionService) RequestPasswordReset(ctx context.Context, email string) (err error) {
	defer s.observe("request_password_reset", &err)
	l := slogx.FromContext(ctx)

	v := &ValidationError{}
	validateEmail(v, email)
	if err := v.orNil(); err != nil {
		return err
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		errutil.LogError(l, "password reset lookup failed", oops.In("session").Code("RESET_REQUEST_FAILED").Wrap(err))
		return nil
	}

	reset, err := cryptox.NewOpaqueToken()
	if err != nil {
		errutil.LogError(l, "password reset token failed", oops.In("session").Code("RESET_REQUEST_FAILED").Wrap(err))
		return nil
	}

	now := s.now()
	if err := s.Store.Users().SetResetToken(ctx, u.ID, reset.Fingerprint, now.Add(s.resetTTL()), now); err != nil {
		errutil.LogError(l, "password reset token not stored",
			oops.In("session").Code("RESET_REQUEST_FAILED").With("user_id", u.ID).Wrap(err))
		return nil
	}

	// Detached: response time must not depend on whether the account exists.
	s.mail.Go(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.mailTimeout())
		defer cancel()
		if err := s.sendMail(ctx, "password_reset", u.Email, reset.Value); err != nil {
			errutil.LogWarn(l, "password reset email not sent", oops.With("user_id", u.ID).Wrap(err))
		}
	})
	return nil
}

// Wait blocks until every detached email send has finished.
func (s *SessionService) Wait() {
	s.mail.Wait()
}

// ResetPassword consumes a reset token and replaces the password. It also
// ends the current refresh lineage and clears any lockout.
func (s *SessionService) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	defer s.observe("reset_password", &err)

	if err := validateReset(token, newPassword); err != nil {
		return err
	}

	hash, err := s.hash(newPassword)
	if err != nil {
		return oops.In("session").Code("RESET_FAILED").Wrap(err)
	}

	u, err := s.Store.Users().ConsumeResetToken(ctx, cryptox.FingerprintToken(strings.TrimSpace(token)), hash, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidOrExpiredToken
	}
	if err != nil {
		return oops.In("session").Code("RESET_FAILED").Wrap(err)
	}
	slogx.FromContext(ctx).Info("password reset", "user_id", u.ID)
	return nil
}

// GetUserByID returns the profile for id. Malformed ids are not found.
func (s *SessionService) GetUserByID(ctx context.Context, id string) (domain.Profile, error) {
	parsed, err := idx.Parse(id)
	if err != nil {
		return domain.Profile{}, ErrNotFound
	}

	u, err := s.Store.Users().GetUserByID(ctx, parsed.String())
	if errors.Is(err, store.ErrNotFound) {
		return domain.Profile{}, ErrNotFound
	}
	if err != nil {
		return domain.Profile{}, oops.In("session").Code("LOOKUP_FAILED").Wrap(err)
	}
	return u.Profile(), nil
}

// GetMe returns the authenticated caller's profile.
func (s *SessionService) GetMe(ctx context.Context, userID string) (p domain.Profile, err error) {
	defer s.observe("me", &err)
	return s.GetUserByID(ctx, userID)
}

// IssueCSRFToken mints a CSRF token valid for the access token lifetime.
func (s *SessionService) IssueCSRFToken(context.Context) (string, time.Time, error) {
	tok, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", time.Time{}, oops.In("session").Code("CSRF_FAILED").Wrap(err)
	}
	return tok, s.now().Add(s.Tokens.AccessTTL()), nil
}

// VerifyAccessToken returns the user id an access token was issued to.
func (s *SessionService) VerifyAccessToken(raw string) (string, error) {
	if raw == "" {
		return "", ErrMissingToken
	}
	claims, err := s.Tokens.VerifyAccess(raw)
	if err != nil {
		return "", ErrInvalidToken
	}
	return claims.UserID(), nil
}

func (s *SessionService) openSession(u domain.User, refresh string, refreshExp time.Time) (*domain.Session, error) {
	access, accessExp, err := s.Tokens.IssueAccess(u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	csrf, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}
	return &domain.Session{
		User:             u.Profile(),
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		CSRFToken:        csrf,
		CSRFExpiresAt:    accessExp,
	}, nil
}

func (s *SessionService) hash(password string) (string, error) {
	defer s.Metrics.ObserveHash(time.Now())
	return s.Hasher.Hash(password)
}

func (s *SessionService) verify(digest, password string) bool {
	defer s.Metrics.ObserveHash(time.Now())
	return s.Hasher.Verify(digest, password)
}

func (s *SessionService) verifyDummy(password string) {
	defer s.Metrics.ObserveHash(time.Now())
	s.Hasher.VerifyDummy(password)
}

func (s *SessionService) sendMail(ctx context.Context, kind, to, token string) error {
	if s.Mailer == nil {
		return errors.New("no mailer configured")
	}
	var err error
	switch kind {
	case "verification":
		err = s.Mailer.SendVerificationEmail(ctx, to, token)
	default:
		err = s.Mailer.SendPasswordResetEmail(ctx, to, token)
	}
	s.Metrics.MailSent(kind, err)
	return err
}

// observe records the outcome of an operation. Typed errors are caller
// failures; anything else is an internal error.
func (s *SessionService) observe(operation string, errp *error) {
	outcome := metrics.OutcomeSuccess
	if err := *errp; err != nil {
		outcome = metrics.OutcomeError
		if IsClientError(err) {
			outcome = metrics.OutcomeFailure
		}
	}
	s.Metrics.Operation(operation, outcome)
}

// IsClientError reports whether err is one of the typed outcomes a caller
// may see, as opposed to an internal failure.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrValidation, ErrAlreadyExists, ErrInvalidCredentials, ErrAccountLocked,
		ErrEmailNotVerified, ErrMissingToken, ErrInvalidToken, ErrUserNotFound,
		ErrInvalidOrExpiredToken, ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// newTokenID returns a refresh lineage id: a sortable ULID plus 128 random
// bits, since ULID entropy alone is 80 bits.
func newTokenID() (string, error) {
	suffix, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", err
	}
	return idx.New().String() + "." + suffix, nil
}
