package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	m, reg := NewTestManagerAndRegistry()

	m.CounterLogins.WithLabelValues("success").Inc()
	m.CounterLogins.WithLabelValues("failure").Add(2)
	m.CounterRateLimitedRequests.WithLabelValues("login").Inc()
	m.CounterContactMessages.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterLogins.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CounterLogins.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterContactMessages))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "portfolio_test_server_admin_logins")
	assert.Contains(t, names, "portfolio_test_server_rate_limited_requests")
}

func TestNewManager_SeparateRegistries(t *testing.T) {
	// two managers on two registries must not collide
	assert.NotPanics(t, func() {
		NewTestManager()
		NewTestManager()
	})
}
