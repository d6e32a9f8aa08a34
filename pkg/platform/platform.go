package platform

import (
	"context"
	"time"

	"github.com/drydock-sh/drydock/pkg/types"
)

// CommandResult captures the output of a platform command execution
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// HealthResult is the outcome of a single health check request
type HealthResult struct {
	StatusCode   int
	ResponseTime time.Duration
}

// Platform is the capability set the orchestrator core consumes. Two
// implementations exist: an authenticated HTTP client (Client) and a
// local-shell wrapper around the provider CLI (ShellClient). The core
// never depends on either concrete type.
//
// All methods honor context cancellation and return typed errors
// (AuthError, NotFoundError, PermissionDeniedError, RateLimitedError,
// TimeoutError, TransportError) so callers can classify failures.
type Platform interface {
	// Databases
	DatabaseExists(ctx context.Context, name string) (bool, error)
	CreateDatabase(ctx context.Context, name string) (string, error)
	GetDatabaseID(ctx context.Context, name string) (string, error)
	ApplyMigrations(ctx context.Context, databaseName, binding string, env types.Environment, remote bool) error
	DeleteDatabase(ctx context.Context, name string) error

	// Secrets
	PutSecret(ctx context.Context, scope, key, value string, env types.Environment) error
	DeleteSecret(ctx context.Context, key string, env types.Environment) error

	// Workers
	DeployWorker(ctx context.Context, env types.Environment, workingDir string) (*CommandResult, error)
	DeleteWorker(ctx context.Context, name string, env types.Environment) error

	// Listings (textual, for backup snapshots; secret values are never
	// included in listings)
	ListWorkers(ctx context.Context) (string, error)
	ListSecrets(ctx context.Context) (string, error)
	ListDatabases(ctx context.Context) (string, error)

	// Health
	HealthCheck(ctx context.Context, url string, timeout time.Duration) (*HealthResult, error)
}

// AuthMode selects how a client authenticates against the platform API
type AuthMode string

const (
	AuthModeToken AuthMode = "api-token"
	AuthModeOAuth AuthMode = "oauth"
)

// Credentials holds platform authentication material. Values are read
// from the environment at construction and never logged.
type Credentials struct {
	APIToken  string
	AccountID string
	ZoneID    string

	// OAuthToken, when set, enables the fallback authentication mode
	// used after a PermissionDenied response.
	OAuthToken string
}
