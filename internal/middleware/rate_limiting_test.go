package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/icheme/portfolio/internal/telemetry/metrics"

	"github.com/go-redis/redis_rate/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	promcl "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRequestRateLimiter struct {
	// key to remaining requests
	Limits map[string]int
	Err    error
}

func (l *testRequestRateLimiter) Allow(_ context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error) {
	if l.Err != nil {
		return nil, l.Err
	}

	res := &redis_rate.Result{
		Limit:      limit,
		RetryAfter: 1500 * time.Millisecond,
	}

	remaining, ok := l.Limits[key]
	if !ok || remaining == 0 {
		return res, nil
	}

	res.Allowed = 1
	res.RetryAfter = -1
	l.Limits[key]--
	return res, nil
}

func TestRateLimit(t *testing.T) {
	metricsManager := metrics.NewTestManager()
	limiter := &testRequestRateLimiter{
		Limits: map[string]int{
			"rate-limit||login||10.0.0.1": 2,
		},
	}

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	})
	handler := RateLimit(limiter, "login", 10, metricsManager)(next)

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
		req.RemoteAddr = ip + ":51000"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1").Code)

	rr := send("10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"success":false,"error":"Too many requests, please try again later"}`, rr.Body.String())

	// other clients have their own budget
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.2").Code)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(metricsManager.CounterRateLimitedRequests.WithLabelValues("login")))
}

func TestRateLimit_LimiterErrorLetsRequestThrough(t *testing.T) {
	limiter := &testRequestRateLimiter{Err: errors.New("redis down")}

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
	RateLimit(limiter, "contact", 5, metrics.NewTestManager())(next).ServeHTTP(rr, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequestMetrics(t *testing.T) {
	metricsManager, reg := metrics.NewTestManagerAndRegistry()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	rr := httptest.NewRecorder()
	RequestMetrics(metricsManager)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/x", nil))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(metricsManager.CounterRequests.WithLabelValues("POST", "201")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metricsManager.GaugeRequests))

	gathered, err := reg.Gather()
	require.NoError(t, err)
	var durationHistogram *promcl.MetricFamily
	for _, m := range gathered {
		if m.GetName() == "portfolio_test_server_request_duration_seconds" {
			durationHistogram = m
			break
		}
	}
	require.NotNil(t, durationHistogram)
	require.Len(t, durationHistogram.Metric, 1)
	require.NotNil(t, durationHistogram.Metric[0].Histogram)
	assert.Equal(t, uint64(1), durationHistogram.Metric[0].Histogram.GetSampleCount())

	labels := map[string]string{}
	for _, l := range durationHistogram.Metric[0].Label {
		labels[l.GetName()] = l.GetValue()
	}
	assert.Equal(t, map[string]string{"route": "unknown", "method": "POST", "status_code": "201"}, labels)
}
