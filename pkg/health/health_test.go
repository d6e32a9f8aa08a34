package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drydock-sh/drydock/pkg/platform"
	"github.com/drydock-sh/drydock/pkg/types"
)

func fastChecker(p platform.Platform) *Checker {
	c := NewChecker(p)
	c.Backoff = time.Millisecond
	c.Timeout = time.Second
	return c
}

func TestCheckPassed(t *testing.T) {
	fake := platform.NewFake()
	fake.HealthResponses = []platform.HealthResponse{{StatusCode: 200}}

	res := fastChecker(fake).Check(context.Background(), "https://worker.example.workers.dev")
	assert.Equal(t, OutcomePassed, res.Outcome)
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "https://worker.example.workers.dev/health", res.URL)
	assert.Equal(t, types.EventHealthCheckPassed, res.AuditEvent())
}

func TestCheckNonOKStatusIsWarning(t *testing.T) {
	fake := platform.NewFake()
	fake.HealthResponses = []platform.HealthResponse{{StatusCode: 503}}

	res := fastChecker(fake).Check(context.Background(), "https://worker.example.workers.dev")
	assert.Equal(t, OutcomeWarning, res.Outcome)
	assert.Equal(t, 503, res.StatusCode)
	assert.Contains(t, res.Detail, "503")
	assert.Equal(t, types.EventHealthCheckWarning, res.AuditEvent())
}

func TestCheckRetriesNetworkErrors(t *testing.T) {
	fake := platform.NewFake()
	fake.HealthResponses = []platform.HealthResponse{
		{Err: &platform.TransportError{Op: "health check"}},
		{Err: &platform.TransportError{Op: "health check"}},
		{StatusCode: 200},
	}

	res := fastChecker(fake).Check(context.Background(), "https://worker.example.workers.dev")
	assert.Equal(t, OutcomePassed, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
}

func TestCheckFailsAfterFinalNetworkError(t *testing.T) {
	fake := platform.NewFake()
	fake.Errors["HealthCheck"] = &platform.TransportError{Op: "health check"}

	res := fastChecker(fake).Check(context.Background(), "https://worker.example.workers.dev")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, DefaultAttempts, res.Attempts)
	assert.Equal(t, types.EventHealthCheckFailed, res.AuditEvent())
	assert.Equal(t, DefaultAttempts, fake.CallCount("HealthCheck"))
}

func TestCheckHonorsCancellation(t *testing.T) {
	fake := platform.NewFake()
	fake.Errors["HealthCheck"] = &platform.TransportError{Op: "health check"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewChecker(fake)
	c.Backoff = time.Minute // would hang without cancellation
	res := c.Check(ctx, "https://worker.example.workers.dev")
	assert.Equal(t, OutcomeFailed, res.Outcome)
}

func TestCheckAgainstRealServer(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	shell := platform.NewShellClient(t.TempDir())
	res := fastChecker(shell).Check(context.Background(), srv.URL)
	assert.Equal(t, OutcomePassed, res.Outcome)
	assert.Equal(t, 1, hits)
}

func TestSweepClassifiesDomains(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	degraded := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer degraded.Close()

	shell := platform.NewShellClient(t.TempDir())
	c := fastChecker(shell)
	c.Attempts = 1

	records := c.Sweep(context.Background(), map[string]string{
		"a.example.com": healthy.URL,
		"b.example.com": degraded.URL,
		"c.example.com": "",
	})

	require.Len(t, records, 3)
	assert.Equal(t, "a.example.com", records[0].Domain)
	assert.Equal(t, types.HealthHealthy, records[0].Status)
	assert.Equal(t, types.HealthUnhealthy, records[1].Status)
	assert.Equal(t, types.HealthError, records[2].Status)
	assert.Equal(t, "no URL registered", records[2].Details)
}
