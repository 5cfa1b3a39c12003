package http_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	authhttp "github.com/aussiebroadwan/sessionauth/internal/auth/http"
	"github.com/aussiebroadwan/sessionauth/internal/auth/lockout"
	"github.com/aussiebroadwan/sessionauth/internal/auth/metrics"
	"github.com/aussiebroadwan/sessionauth/internal/auth/service"
	"github.com/aussiebroadwan/sessionauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/sessionauth/pkg/authsdk"
	"github.com/aussiebroadwan/sessionauth/pkg/cryptox"
	"github.com/aussiebroadwan/sessionauth/pkg/httpx"
	"github.com/aussiebroadwan/sessionauth/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const testPassword = "Correct$Horse9battery"

var generous = httpx.RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}

type outbox struct {
	mu            sync.Mutex
	verifications map[string]string
	resets        map[string]string
}

func (o *outbox) SendVerificationEmail(_ context.Context, to, token string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verifications[to] = token
	return nil
}

func (o *outbox) SendPasswordResetEmail(_ context.Context, to, token string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resets[to] = token
	return nil
}

func (o *outbox) verification(to string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.verifications[to]
}

func (o *outbox) reset(to string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resets[to]
}

type server struct {
	*httptest.Server
	mail     *outbox
	sessions *service.SessionService
}

func newServer(t *testing.T, limits *authhttp.Limits) *server {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	codec, err := jwtx.NewCodec(jwtx.CodecConfig{
		AccessSecret:  []byte("access-secret-access-secret-0123456789"),
		RefreshSecret: []byte("refresh-secret-refresh-secret-0123456789"),
		Issuer:        "sessionauth-test",
	})
	require.NoError(t, err)

	if limits == nil {
		limits = &authhttp.Limits{API: generous, Login: generous, Reset: generous}
	}

	mail := &outbox{verifications: map[string]string{}, resets: map[string]string{}}
	m := metrics.New()
	sessions := &service.SessionService{
		Store: st,
		Hasher: cryptox.NewHasher(cryptox.Params{
			Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
		}, ""),
		Tokens:  codec,
		Mailer:  mail,
		Lockout: lockout.DefaultPolicy(),
		Metrics: m,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := authhttp.NewRouter(sessions, st, m, logger, authhttp.Options{
		Version:        "test",
		AllowedOrigins: []string{"http://localhost:3000"},
		RequestTimeout: 5 * time.Second,
		Limits:         limits,
	})
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &server{Server: srv, mail: mail, sessions: sessions}
}

func (s *server) client(t *testing.T) *authsdk.Client {
	t.Helper()
	c, err := authsdk.NewClient(s.URL)
	require.NoError(t, err)
	return c
}

// signup registers and verifies an account, returning a client with no session.
func (s *server) signup(t *testing.T, email string) *authsdk.Client {
	t.Helper()
	ctx := context.Background()
	c := s.client(t)

	_, err := c.Register(ctx, authsdk.RegisterRequest{
		Email: email, Password: testPassword, FirstName: "Ada", LastName: "Lovelace",
	})
	require.NoError(t, err)
	_, err = c.VerifyEmail(ctx, s.mail.verification(email))
	require.NoError(t, err)
	return c
}

// refreshCookie reads the refresh token, which the jar only returns for /api/auth paths.
func refreshCookie(t *testing.T, c *authsdk.Client) string {
	t.Helper()
	u, err := url.Parse(c.BaseURL + "/api/auth/refresh")
	require.NoError(t, err)
	for _, ck := range c.HTTPClient.Jar.Cookies(u) {
		if ck.Name == authsdk.RefreshTokenCookie {
			return ck.Value
		}
	}
	return ""
}

// rawRefresh posts a refresh token in the body with a matching double submit pair.
func rawRefresh(t *testing.T, baseURL, token string) *http.Response {
	t.Helper()
	body, err := json.Marshal(authsdk.RefreshRequest{RefreshToken: token})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/auth/refresh", strings.NewReader(string(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(authsdk.CSRFHeader, "double-submit")
	req.AddCookie(&http.Cookie{Name: authsdk.CSRFCookie, Value: "double-submit"})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := newServer(t, nil)
	c := srv.client(t)

	msg, err := c.Register(ctx, authsdk.RegisterRequest{
		Email: "Ada@Example.com", Password: testPassword, FirstName: "Ada", LastName: "Lovelace",
	})
	require.NoError(t, err)
	require.Contains(t, msg.Message, "check your email")

	_, err = c.Login(ctx, "ada@example.com", testPassword)
	require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeEmailNotVerified), "%v", err)

	token := srv.mail.verification("ada@example.com")
	require.NotEmpty(t, token)
	_, err = c.VerifyEmail(ctx, token)
	require.NoError(t, err)

	_, err = c.VerifyEmail(ctx, token)
	require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeInvalidOrExpiredToken))

	sess, err := c.Login(ctx, "ada@example.com", testPassword)
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", sess.User.Email)
	require.True(t, sess.User.IsVerified)
	require.Equal(t, sess.CSRFToken, c.CSRF())
	require.NotEmpty(t, c.Cookie(authsdk.AccessTokenCookie))

	me, err := c.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, sess.User.ID, me.ID)
	require.NotNil(t, me.LastLogin)

	csrfToken, err := c.CSRFToken(ctx)
	require.NoError(t, err)
	require.Equal(t, csrfToken, c.CSRF())

	first := refreshCookie(t, c)
	require.NotEmpty(t, first)

	refreshed, err := c.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, sess.User.ID, refreshed.User.ID)
	require.NotEqual(t, first, refreshCookie(t, c))

	t.Run("rotated token is single use", func(t *testing.T) {
		resp := rawRefresh(t, srv.URL, first)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	current := refreshCookie(t, c)
	_, err = c.Logout(ctx)
	require.NoError(t, err)
	require.Empty(t, c.Cookie(authsdk.AccessTokenCookie))
	require.Empty(t, c.CSRF())

	_, err = c.Me(ctx)
	require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeInvalidToken), "%v", err)

	t.Run("logout ends the refresh lineage", func(t *testing.T) {
		resp := rawRefresh(t, srv.URL, current)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestRefresh_BodyFallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := newServer(t, nil)
	c := srv.signup(t, "grace@example.com")

	_, err := c.Login(ctx, "grace@example.com", testPassword)
	require.NoError(t, err)

	resp := rawRefresh(t, srv.URL, refreshCookie(t, c))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out authsdk.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "grace@example.com", out.User.Email)
	require.NotEmpty(t, out.CSRFToken)
}

func TestRefresh_Missing(t *testing.T) {
	t.Parallel()
	srv := newServer(t, nil)

	resp := rawRefresh(t, srv.URL, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body httpx.ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, authsdk.ErrorCodeMissingToken, body.Code)
	require.Equal(t, "Refresh token required", body.Message)
}

func TestCSRF(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := newServer(t, nil)

	t.Run("missing", func(t *testing.T) {
		_, err := srv.client(t).RefreshWithToken(ctx, "whatever")
		require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeCSRFMissing), "%v", err)
	})

	t.Run("mismatch", func(t *testing.T) {
		c := srv.signup(t, "linus@example.com")
		_, err := c.Login(ctx, "linus@example.com", testPassword)
		require.NoError(t, err)

		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/auth/logout", nil)
		require.NoError(t, err)
		req.Header.Set(authsdk.CSRFHeader, "forged")
		resp, err := c.HTTPClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusForbidden, resp.StatusCode)

		var body httpx.ErrorBody
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Equal(t, authsdk.ErrorCodeCSRFInvalid, body.Code)

		// The session survived the forged request.
		_, err = c.Me(ctx)
		require.NoError(t, err)
	})
}

func TestRegister_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := newServer(t, nil)
	c := srv.client(t)

	_, err := c.Register(ctx, authsdk.RegisterRequest{Email: "not-an-email", Password: "short"})
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, authsdk.ErrorCodeValidation, apiErr.Code)

	paths := map[string]bool{}
	for _, f := range apiErr.Fields {
		paths[f.Path] = true
	}
	require.True(t, paths["email"])
	require.True(t, paths["password"])
	require.True(t, paths["firstName"])
	require.True(t, paths["lastName"])

	srv.signup(t, "dup@example.com")
	_, err = c.Register(ctx, authsdk.RegisterRequest{
		Email: "DUP@example.com", Password: testPassword, FirstName: "A", LastName: "B",
	})
	require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeAlreadyExists), "%v", err)
}

func TestLogin_Lockout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := newServer(t, nil)
	c := srv.signup(t, "mallory@example.com")

	for i := range lockout.DefaultThreshold - 1 {
		_, err := c.Login(ctx, "mallory@example.com", "Wrong$Password99")
		require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeInvalidCredentials), "attempt %d: %v", i+1, err)
	}
	_, err := c.Login(ctx, "mallory@example.com", "Wrong$Password99")
	require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeAccountLocked), "%v", err)

	_, err = c.Login(ctx, "mallory@example.com", testPassword)
	require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeAccountLocked), "%v", err)

	_, err = c.Login(ctx, "nobody@example.com", testPassword)
	require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeInvalidCredentials), "%v", err)
}

func TestPasswordReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := newServer(t, nil)
	c := srv.signup(t, "reset@example.com")

	unknown, err := c.ForgotPassword(ctx, "ghost@example.com")
	require.NoError(t, err)
	known, err := c.ForgotPassword(ctx, "reset@example.com")
	require.NoError(t, err)
	require.Equal(t, unknown.Message, known.Message)

	srv.sessions.Wait()
	token := srv.mail.reset("reset@example.com")
	require.NotEmpty(t, token)

	_, err = c.ResetPassword(ctx, token, "weak")
	require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeValidation), "%v", err)

	_, err = c.ResetPassword(ctx, token, "Another&Secret7phrase")
	require.NoError(t, err)

	_, err = c.ResetPassword(ctx, token, "Another&Secret7phrase")
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, authsdk.ErrorCodeInvalidOrExpiredToken, apiErr.Code)
	require.Equal(t, "Invalid or expired reset token", apiErr.Message)

	_, err = c.Login(ctx, "reset@example.com", testPassword)
	require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeInvalidCredentials), "%v", err)
	_, err = c.Login(ctx, "reset@example.com", "Another&Secret7phrase")
	require.NoError(t, err)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tight := httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Hour, Burst: 2}
	srv := newServer(t, &authhttp.Limits{API: generous, Login: tight, Reset: tight})
	c := srv.client(t)

	for range 2 {
		_, err := c.Login(ctx, "nobody@example.com", testPassword)
		require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeInvalidCredentials), "%v", err)
	}
	_, err := c.Login(ctx, "nobody@example.com", testPassword)
	require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeRateLimited), "%v", err)

	// Other routes draw on their own budget.
	_, err = c.Health(ctx)
	require.NoError(t, err)

	t.Run("forwarded headers do not buy a fresh budget", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, &authhttp.Limits{API: generous, Login: tight, Reset: tight})

		forwarded := []string{"10.0.0.1", "10.0.0.2", ", 1.2.3.4", "10.0.0.3", "10.0.0.4"}
		codes := make([]int, 0, len(forwarded))
		for _, xff := range forwarded {
			req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/auth/login",
				strings.NewReader(`{"email":"nobody@example.com","password":"`+testPassword+`"}`))
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Forwarded-For", xff)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			_ = resp.Body.Close()
			codes = append(codes, resp.StatusCode)
		}

		require.Equal(t, []int{
			http.StatusUnauthorized,
			http.StatusUnauthorized,
			http.StatusTooManyRequests,
			http.StatusTooManyRequests,
			http.StatusTooManyRequests,
		}, codes)
	})
}

func TestSystemRoutes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := newServer(t, nil)
	c := srv.client(t)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", health.Status)

	live, err := c.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "test", live.Version)

	ready, err := c.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Checks.Database)

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("unknown route", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/nope")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)

		var body httpx.ErrorBody
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Equal(t, authsdk.ErrorCodeNotFound, body.Code)
	})

	t.Run("security headers and request id", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	})

	t.Run("oversized body", func(t *testing.T) {
		body := `{"email":"` + strings.Repeat("a", authhttp.DefaultMaxBodyBytes) + `"}`
		resp, err := http.Post(srv.URL+"/api/auth/login", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})

	t.Run("malformed json", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/auth/login", "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
