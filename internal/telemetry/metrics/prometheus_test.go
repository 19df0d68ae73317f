package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupPrometheusAndHandler(t *testing.T) {
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "portfolio_test_active_sessions",
		Help: "Active admin sessions",
	})
	sessions.Set(3)

	reg := SetupPrometheus(sessions)
	NewManager("portfolio", "server", reg).GaugeLifeSignal.Set(1)

	srv := httptest.NewServer(Handler(reg))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "portfolio_test_active_sessions 3")
	assert.Contains(t, string(body), "portfolio_server_life_signal 1")
	assert.Contains(t, string(body), "go_goroutines")
	assert.Contains(t, string(body), "promhttp_metric_handler_requests_total")
}
