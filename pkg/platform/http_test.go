package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drydock-sh/drydock/pkg/types"
)

func testClient(t *testing.T, handler http.HandlerFunc, creds Credentials) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(creds,
		WithBaseURL(server.URL),
		WithRetry(RetryConfig{Attempts: 3, Delay: time.Millisecond}),
	)
}

func envelope(result string) string {
	return `{"success":true,"errors":[],"result":` + result + `}`
}

func TestClientDatabaseExists(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(envelope(`[{"uuid":"id-1","name":"shop-staging-db"}]`)))
	}, Credentials{APIToken: "tok", AccountID: "acct"})

	exists, err := c.DatabaseExists(context.Background(), "shop-staging-db")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = c.DatabaseExists(context.Background(), "other-db")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClientCreateDatabaseReturnsID(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(envelope(`{"uuid":"db-uuid-9","name":"shop-staging-db"}`)))
	}, Credentials{APIToken: "tok", AccountID: "acct"})

	id, err := c.CreateDatabase(context.Background(), "shop-staging-db")
	require.NoError(t, err)
	assert.Equal(t, "db-uuid-9", id)
}

func TestClientMapsStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"unauthorized", http.StatusUnauthorized, IsAuth},
		{"forbidden", http.StatusForbidden, IsPermissionDenied},
		{"not found", http.StatusNotFound, IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}, Credentials{APIToken: "tok", AccountID: "acct"})

			_, err := c.ListWorkers(context.Background())
			assert.True(t, tt.check(err), "expected classifier to match %v", err)
			assert.Equal(t, int32(1), calls.Load(), "permanent errors must not be retried")
		})
	}
}

func TestClientRetriesRateLimiting(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(envelope(`[]`)))
	}, Credentials{APIToken: "tok", AccountID: "acct"})

	_, err := c.ListDatabases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientOAuthFallbackOnPermissionDenied(t *testing.T) {
	var tokenCalls, oauthCalls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer tok":
			tokenCalls.Add(1)
			w.WriteHeader(http.StatusForbidden)
		case "Bearer oauth":
			oauthCalls.Add(1)
			w.Write([]byte(envelope(`null`)))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}, Credentials{APIToken: "tok", AccountID: "acct", OAuthToken: "oauth"})

	err := c.PutSecret(context.Background(), "shop-data-service", "API_KEY", "v", types.EnvStaging)
	require.NoError(t, err)
	assert.Equal(t, int32(1), tokenCalls.Load())
	assert.Equal(t, int32(1), oauthCalls.Load())

	// Subsequent calls stay in OAuth mode
	err = c.PutSecret(context.Background(), "shop-data-service", "API_KEY", "v", types.EnvStaging)
	require.NoError(t, err)
	assert.Equal(t, int32(1), tokenCalls.Load())
}

func TestClientNoFallbackWithoutOAuthToken(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}, Credentials{APIToken: "tok", AccountID: "acct"})

	err := c.DeleteWorker(context.Background(), "shop-data-service", types.EnvStaging)
	assert.True(t, IsPermissionDenied(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientAPIErrorEnvelope(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"errors":[{"code":7003,"message":"could not route"}],"result":null}`))
	}, Credentials{APIToken: "tok", AccountID: "acct"})

	_, err := c.GetDatabaseID(context.Background(), "shop-staging-db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not route")
}

func TestHealthCheckReportsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(Credentials{APIToken: "tok"})
	res, err := c.HealthCheck(context.Background(), server.URL+"/health", time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Greater(t, res.ResponseTime, time.Duration(0))
}
