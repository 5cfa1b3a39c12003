package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"15m", 15 * time.Minute, true},
		{"1h30m", 90 * time.Minute, true},
		{"7d", 7 * 24 * time.Hour, true},
		{" 1d ", 24 * time.Hour, true},
		{"30", 30 * time.Minute, true},
		{"", 0, false},
		{"soon", 0, false},
		{"xd", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseDuration(tt.in)
		require.Equal(t, tt.ok, ok, "input %q", tt.in)
		require.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("NODE_ENV", "production")
	t.Setenv("ENV", "")
	t.Setenv("PORT", "8081")
	t.Setenv("REFRESH_TOKEN_EXPIRES_IN", "14d")
	t.Setenv("EMAIL_SECURE", "true")
	t.Setenv("DATABASE_DRIVER", "Postgres")
	t.Setenv("TRUST_PROXY", "1")

	cfg := LoadConfig()
	require.Equal(t, "production", cfg.Env)
	require.True(t, cfg.IsProduction())
	require.Equal(t, 8081, cfg.Port)
	require.Equal(t, 14*24*time.Hour, cfg.RefreshTTL)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.True(t, cfg.EmailSecure)
	require.Equal(t, "postgres", cfg.DatabaseDriver)
	require.Equal(t, 1, cfg.TrustProxy)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Env:            "dev",
			Port:           5000,
			AccessTTL:      15 * time.Minute,
			RefreshTTL:     7 * 24 * time.Hour,
			DatabaseDriver: "sqlite",
		}
	}

	t.Run("dev defaults", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("production needs secrets and mail", func(t *testing.T) {
		cfg := valid()
		cfg.Env = "production"
		err := cfg.Validate()
		require.ErrorContains(t, err, "JWT_SECRET is required")
		require.ErrorContains(t, err, "REFRESH_TOKEN_SECRET is required")
		require.ErrorContains(t, err, "EMAIL_HOST is required")
	})

	t.Run("shared secret", func(t *testing.T) {
		cfg := valid()
		cfg.AccessSecret = "same-secret-same-secret-same-secret!"
		cfg.RefreshSecret = cfg.AccessSecret
		require.ErrorContains(t, cfg.Validate(), "must differ")
	})

	t.Run("one secret", func(t *testing.T) {
		cfg := valid()
		cfg.AccessSecret = "only-one-secret-only-one-secret-only"
		require.ErrorContains(t, cfg.Validate(), "set together")
	})

	t.Run("negative proxy hops", func(t *testing.T) {
		cfg := valid()
		cfg.TrustProxy = -1
		require.ErrorContains(t, cfg.Validate(), "invalid TRUST_PROXY")
	})

	t.Run("postgres without url", func(t *testing.T) {
		cfg := valid()
		cfg.DatabaseDriver = "postgres"
		require.ErrorContains(t, cfg.Validate(), "DATABASE_URL")
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := valid()
		cfg.DatabaseDriver = "mysql"
		require.ErrorContains(t, cfg.Validate(), "unknown DATABASE_DRIVER")
	})
}
