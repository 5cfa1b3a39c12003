package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	require.NotPanics(t, func() {
		m.Operation("login", OutcomeSuccess)
		m.Lockout()
		m.MailSent("verification", nil)
		m.ObserveHash(time.Now())
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Counts(t *testing.T) {
	t.Parallel()

	m := New()
	m.Operation("login", OutcomeSuccess)
	m.Operation("login", OutcomeSuccess)
	m.Operation("login", OutcomeFailure)
	m.Lockout()
	m.MailSent("reset", errors.New("smtp down"))

	require.Equal(t, float64(2), testutil.ToFloat64(m.Operations.WithLabelValues("login", OutcomeSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.Operations.WithLabelValues("login", OutcomeFailure)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.Lockouts))
	require.Equal(t, float64(1), testutil.ToFloat64(m.Mail.WithLabelValues("reset", OutcomeFailure)))
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := New()
	m.Lockout()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "sessionauth_lockouts_total 1"))
}
