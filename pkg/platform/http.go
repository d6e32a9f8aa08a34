package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/drydock-sh/drydock/pkg/log"
	"github.com/drydock-sh/drydock/pkg/types"
)

const defaultBaseURL = "https://api.cloudflare.com/client/v4"

// Client implements Platform against the managed-platform HTTP API.
// Calls go through a circuit breaker so a degraded API fails fast
// instead of stalling every domain in a batch, and retryable failures
// are retried with the adapter retry policy.
type Client struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	retry      RetryConfig
	logger     zerolog.Logger

	mu       sync.Mutex
	authMode AuthMode
}

// ClientOption customizes a Client
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL (used by tests)
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry overrides the retry policy
func WithRetry(cfg RetryConfig) ClientOption {
	return func(c *Client) { c.retry = cfg }
}

// NewClient creates an authenticated HTTP platform client
func NewClient(creds Credentials, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		creds:   creds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry:    DefaultRetry(),
		logger:   log.WithComponent("platform-http"),
		authMode: AuthModeToken,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "platform-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiEnvelope is the standard platform API response wrapper
type apiEnvelope struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result json.RawMessage `json:"result"`
}

// do performs one API request and decodes the envelope result into out.
// HTTP status codes are mapped onto the adapter error taxonomy. A
// PermissionDenied response triggers at most one OAuth-fallback retry
// of the same call, with a warning that the effective identity changed.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	err := c.doOnce(ctx, method, path, body, out)
	if err == nil || !IsPermissionDenied(err) {
		return err
	}

	c.mu.Lock()
	canFallback := c.authMode == AuthModeToken && c.creds.OAuthToken != ""
	if canFallback {
		c.authMode = AuthModeOAuth
	}
	c.mu.Unlock()

	if !canFallback {
		return err
	}

	c.logger.Warn().
		Str("path", path).
		Msg("token lacks required scope, retrying with OAuth fallback; the effective account may differ from the configured identity")

	return c.doOnce(ctx, method, path, body, out)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out interface{}) error {
	return Retry(ctx, c.retry, func(ctx context.Context) error {
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.request(ctx, method, path, body, out)
		})
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return &TransportError{Op: method + " " + path, Err: err}
		}
		return err
	})
}

func (c *Client) request(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.mu.Lock()
	mode := c.authMode
	c.mu.Unlock()
	switch mode {
	case AuthModeOAuth:
		req.Header.Set("Authorization", "Bearer "+c.creds.OAuthToken)
	default:
		req.Header.Set("Authorization", "Bearer "+c.creds.APIToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &TimeoutError{Operation: method + " " + path}
		}
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &AuthError{Msg: "invalid or expired API token"}
	case resp.StatusCode == http.StatusForbidden:
		return &PermissionDeniedError{Operation: method + " " + path}
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{Resource: "resource", Name: path}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitedError{RetryAfter: resp.Header.Get("Retry-After")}
	case resp.StatusCode >= 500:
		return &TransportError{Op: method + " " + path, Err: fmt.Errorf("server returned %d", resp.StatusCode)}
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &TransportError{Op: method + " " + path, Err: fmt.Errorf("decode response: %w", err)}
	}
	if !envelope.Success {
		msg := "request failed"
		if len(envelope.Errors) > 0 {
			msg = envelope.Errors[0].Message
		}
		return fmt.Errorf("platform API error: %s", msg)
	}

	if out != nil && envelope.Result != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

func (c *Client) accountPath(suffix string) string {
	return "/accounts/" + c.creds.AccountID + suffix
}

type databaseInfo struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// DatabaseExists checks whether a managed database with the given name exists
func (c *Client) DatabaseExists(ctx context.Context, name string) (bool, error) {
	var result []databaseInfo
	path := c.accountPath("/d1/database?name=" + url.QueryEscape(name))
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return false, err
	}
	for _, db := range result {
		if db.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// CreateDatabase creates a managed database and returns its ID
func (c *Client) CreateDatabase(ctx context.Context, name string) (string, error) {
	var result databaseInfo
	body := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, c.accountPath("/d1/database"), body, &result); err != nil {
		return "", err
	}
	return result.UUID, nil
}

// GetDatabaseID resolves a database name to its platform ID
func (c *Client) GetDatabaseID(ctx context.Context, name string) (string, error) {
	var result []databaseInfo
	path := c.accountPath("/d1/database?name=" + url.QueryEscape(name))
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return "", err
	}
	for _, db := range result {
		if db.Name == name {
			return db.UUID, nil
		}
	}
	return "", &NotFoundError{Resource: "database", Name: name}
}

// ApplyMigrations applies pending migrations to the named database
func (c *Client) ApplyMigrations(ctx context.Context, databaseName, binding string, env types.Environment, remote bool) error {
	id, err := c.GetDatabaseID(ctx, databaseName)
	if err != nil {
		return err
	}
	body := map[string]interface{}{
		"binding":     binding,
		"environment": string(env),
		"remote":      remote,
	}
	return c.do(ctx, http.MethodPost, c.accountPath("/d1/database/"+id+"/migrations/apply"), body, nil)
}

// DeleteDatabase removes a managed database
func (c *Client) DeleteDatabase(ctx context.Context, name string) error {
	id, err := c.GetDatabaseID(ctx, name)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, c.accountPath("/d1/database/"+id), nil, nil)
}

// PutSecret uploads a secret value for a worker scope and environment
func (c *Client) PutSecret(ctx context.Context, scope, key, value string, env types.Environment) error {
	body := map[string]string{
		"name":        key,
		"text":        value,
		"type":        "secret_text",
		"environment": string(env),
	}
	return c.do(ctx, http.MethodPut, c.accountPath("/workers/scripts/"+scope+"/secrets"), body, nil)
}

// DeleteSecret removes a secret for the active scope and environment
func (c *Client) DeleteSecret(ctx context.Context, key string, env types.Environment) error {
	path := c.accountPath("/workers/secrets/" + key + "?environment=" + url.QueryEscape(string(env)))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

type deployResult struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

// DeployWorker triggers a deployment of the already-built worker in
// workingDir. The returned CommandResult mirrors the CLI contract: the
// worker URL appears as the first https:// token of stdout.
func (c *Client) DeployWorker(ctx context.Context, env types.Environment, workingDir string) (*CommandResult, error) {
	var result deployResult
	body := map[string]string{
		"environment": string(env),
		"working_dir": workingDir,
	}
	if err := c.do(ctx, http.MethodPost, c.accountPath("/workers/deployments"), body, &result); err != nil {
		return nil, err
	}
	return &CommandResult{
		Stdout:   fmt.Sprintf("Deployed worker (%s)\n  %s\n", result.ID, result.URL),
		ExitCode: 0,
	}, nil
}

// DeleteWorker removes a deployed worker service
func (c *Client) DeleteWorker(ctx context.Context, name string, env types.Environment) error {
	path := c.accountPath("/workers/services/" + name + "?environment=" + url.QueryEscape(string(env)))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ListWorkers returns a textual listing of deployed worker services
func (c *Client) ListWorkers(ctx context.Context) (string, error) {
	var result []struct {
		ID        string `json:"id"`
		CreatedOn string `json:"created_on"`
	}
	if err := c.do(ctx, http.MethodGet, c.accountPath("/workers/services"), nil, &result); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, svc := range result {
		fmt.Fprintf(&b, "%s\t%s\n", svc.ID, svc.CreatedOn)
	}
	return b.String(), nil
}

// ListSecrets returns a textual listing of secret names. Values are
// never returned by the platform API.
func (c *Client) ListSecrets(ctx context.Context) (string, error) {
	var result []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if err := c.do(ctx, http.MethodGet, c.accountPath("/workers/secrets"), nil, &result); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, s := range result {
		fmt.Fprintf(&b, "%s\t%s\n", s.Name, s.Type)
	}
	return b.String(), nil
}

// ListDatabases returns a textual listing of managed databases
func (c *Client) ListDatabases(ctx context.Context) (string, error) {
	var result []struct {
		Name string `json:"name"`
		UUID string `json:"uuid"`
	}
	if err := c.do(ctx, http.MethodGet, c.accountPath("/d1/database"), nil, &result); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, db := range result {
		fmt.Fprintf(&b, "%s\t%s\n", db.Name, db.UUID)
	}
	return b.String(), nil
}

// HealthCheck performs an unauthenticated GET against the given URL.
// It goes directly to the worker, not through the platform API, so the
// circuit breaker is not involved.
func (c *Client) HealthCheck(ctx context.Context, checkURL string, timeout time.Duration) (*HealthResult, error) {
	return healthCheck(ctx, c.httpClient, checkURL, timeout)
}

// healthCheck is shared by the HTTP and shell adapters
func healthCheck(ctx context.Context, base *http.Client, checkURL string, timeout time.Duration) (*HealthResult, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create health request: %w", err)
	}

	client := &http.Client{Timeout: timeout}
	if base != nil && base.Transport != nil {
		client.Transport = base.Transport
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &TimeoutError{Operation: "health check " + checkURL}
		}
		return nil, &TransportError{Op: "health check " + checkURL, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return &HealthResult{
		StatusCode:   resp.StatusCode,
		ResponseTime: time.Since(start),
	}, nil
}
