package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/sessionauth/pkg/httpx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLimiter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	config := httpx.RateLimitConfig{RequestsPerWindow: 3, Window: time.Minute}

	t.Run("fixed window", func(t *testing.T) {
		t.Parallel()
		mr, client := newRedis(t)
		limiter := httpx.NewRedisLimiter(client, "rl:login:", config)

		for i := range 3 {
			ok, _, err := limiter.Allow(ctx, "203.0.113.1")
			require.NoError(t, err)
			require.True(t, ok, "request %d", i+1)
		}

		ok, retry, err := limiter.Allow(ctx, "203.0.113.1")
		require.NoError(t, err)
		require.False(t, ok)
		require.Greater(t, retry, time.Duration(0))
		require.LessOrEqual(t, retry, time.Minute)

		// Other keys are unaffected.
		ok, _, err = limiter.Allow(ctx, "203.0.113.2")
		require.NoError(t, err)
		require.True(t, ok)

		mr.FastForward(time.Minute)
		ok, _, err = limiter.Allow(ctx, "203.0.113.1")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("keys carry the prefix and expire", func(t *testing.T) {
		t.Parallel()
		mr, client := newRedis(t)
		limiter := httpx.NewRedisLimiter(client, "rl:api:", config)

		_, _, err := limiter.Allow(ctx, "k")
		require.NoError(t, err)
		require.True(t, mr.Exists("rl:api:k"))
		require.Greater(t, mr.TTL("rl:api:k"), time.Duration(0))
	})

	t.Run("shared between limiters", func(t *testing.T) {
		t.Parallel()
		_, client := newRedis(t)
		a := httpx.NewRedisLimiter(client, "rl:", config)
		b := httpx.NewRedisLimiter(client, "rl:", config)

		for range 3 {
			_, _, err := a.Allow(ctx, "k")
			require.NoError(t, err)
		}
		ok, _, err := b.Allow(ctx, "k")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("backend failure", func(t *testing.T) {
		t.Parallel()
		mr, client := newRedis(t)
		limiter := httpx.NewRedisLimiter(client, "rl:", config)
		mr.Close()

		_, _, err := limiter.Allow(ctx, "k")
		require.Error(t, err)
	})
}

func TestRateLimit_RedisMiddleware(t *testing.T) {
	t.Parallel()

	config := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Hour}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("rejects over the limit", func(t *testing.T) {
		t.Parallel()
		_, client := newRedis(t)
		limited := httpx.RateLimit(httpx.NewRedisLimiter(client, "rl:", config), config, httpx.IPKeyExtractor)(handler)

		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"

		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		require.Equal(t, http.StatusTooManyRequests, rec.Code)

		retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
		require.NoError(t, err)
		require.Greater(t, retry, 0)
		require.LessOrEqual(t, retry, 3600)
	})

	t.Run("fails open when redis is down", func(t *testing.T) {
		t.Parallel()
		mr, client := newRedis(t)
		limited := httpx.RateLimit(httpx.NewRedisLimiter(client, "rl:", config), config, httpx.IPKeyExtractor)(handler)
		mr.Close()

		for range 3 {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.RemoteAddr = "192.168.1.1:12345"
			rec := httptest.NewRecorder()
			limited.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})
}
