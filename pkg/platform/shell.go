package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/drydock-sh/drydock/pkg/log"
	"github.com/drydock-sh/drydock/pkg/types"
)

// DefaultCommandTimeout bounds a single CLI invocation
const DefaultCommandTimeout = 120 * time.Second

// ShellClient implements Platform by shelling out to the provider CLI
// (wrangler). It is used when no API token is available or for local
// development. Each command runs with a bounded timeout and retryable
// failures follow the adapter retry policy.
type ShellClient struct {
	// Binary is the CLI executable name (default "wrangler")
	Binary string

	// WorkingDir is the default directory commands run in
	WorkingDir string

	// CommandTimeout bounds each CLI invocation
	CommandTimeout time.Duration

	retry  RetryConfig
	logger zerolog.Logger
}

// NewShellClient creates a CLI-backed platform client rooted at workingDir
func NewShellClient(workingDir string) *ShellClient {
	return &ShellClient{
		Binary:         "wrangler",
		WorkingDir:     workingDir,
		CommandTimeout: DefaultCommandTimeout,
		retry:          DefaultRetry(),
		logger:         log.WithComponent("platform-shell"),
	}
}

// run executes one CLI command with the configured timeout. stdin, when
// non-empty, is piped to the process (used for secret values so they
// never appear in the argument list).
func (s *ShellClient) run(ctx context.Context, dir, stdin string, args ...string) (*CommandResult, error) {
	timeout := s.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if dir == "" {
		dir = s.WorkingDir
	}

	cmd := exec.CommandContext(cmdCtx, s.Binary, args...)
	cmd.Dir = dir
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.logger.Debug().Strs("args", args).Str("dir", dir).Msg("executing platform command")

	err := cmd.Run()
	result := &CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return result, &TimeoutError{Operation: s.Binary + " " + strings.Join(args, " ")}
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, classifyCLIError(result, err)
	}
	return result, nil
}

// classifyCLIError maps CLI failure output onto the adapter error taxonomy
func classifyCLIError(result *CommandResult, err error) error {
	combined := strings.ToLower(result.Stdout + "\n" + result.Stderr)
	switch {
	case strings.Contains(combined, "authentication") || strings.Contains(combined, "not logged in"):
		return &AuthError{Msg: strings.TrimSpace(result.Stderr)}
	case strings.Contains(combined, "permission") || strings.Contains(combined, "forbidden"):
		return &PermissionDeniedError{Operation: "cli command"}
	case strings.Contains(combined, "not found") || strings.Contains(combined, "does not exist"):
		return &NotFoundError{Resource: "resource", Name: strings.TrimSpace(result.Stderr)}
	case strings.Contains(combined, "rate limit") || strings.Contains(combined, "too many requests"):
		return &RateLimitedError{}
	default:
		return &TransportError{Op: "cli command", Err: fmt.Errorf("%w: %s", err, firstLine(result.Stderr))}
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// DatabaseExists checks the database listing for the given name
func (s *ShellClient) DatabaseExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := Retry(ctx, s.retry, func(ctx context.Context) error {
		result, err := s.run(ctx, "", "", "d1", "list", "--json")
		if err != nil {
			return err
		}
		var databases []struct {
			Name string `json:"name"`
			UUID string `json:"uuid"`
		}
		if jsonErr := json.Unmarshal([]byte(result.Stdout), &databases); jsonErr != nil {
			// Fall back to plain-text matching for older CLI versions
			exists = strings.Contains(result.Stdout, name)
			return nil
		}
		for _, db := range databases {
			if db.Name == name {
				exists = true
				return nil
			}
		}
		exists = false
		return nil
	})
	return exists, err
}

var databaseIDPattern = regexp.MustCompile(`database_id\s*=\s*"([0-9a-f-]+)"`)

// CreateDatabase creates a database via the CLI and parses its ID from
// the emitted binding snippet
func (s *ShellClient) CreateDatabase(ctx context.Context, name string) (string, error) {
	var id string
	err := Retry(ctx, s.retry, func(ctx context.Context) error {
		result, err := s.run(ctx, "", "", "d1", "create", name)
		if err != nil {
			return err
		}
		if m := databaseIDPattern.FindStringSubmatch(result.Stdout); m != nil {
			id = m[1]
			return nil
		}
		return fmt.Errorf("database created but no database_id found in output")
	})
	return id, err
}

// GetDatabaseID resolves a database name to its ID via the listing
func (s *ShellClient) GetDatabaseID(ctx context.Context, name string) (string, error) {
	var id string
	err := Retry(ctx, s.retry, func(ctx context.Context) error {
		result, err := s.run(ctx, "", "", "d1", "list", "--json")
		if err != nil {
			return err
		}
		var databases []struct {
			Name string `json:"name"`
			UUID string `json:"uuid"`
		}
		if jsonErr := json.Unmarshal([]byte(result.Stdout), &databases); jsonErr != nil {
			return fmt.Errorf("parse database listing: %w", jsonErr)
		}
		for _, db := range databases {
			if db.Name == name {
				id = db.UUID
				return nil
			}
		}
		return &NotFoundError{Resource: "database", Name: name}
	})
	return id, err
}

// ApplyMigrations applies pending migrations for the database binding
func (s *ShellClient) ApplyMigrations(ctx context.Context, databaseName, binding string, env types.Environment, remote bool) error {
	args := []string{"d1", "migrations", "apply", databaseName, "--env", string(env)}
	if remote {
		args = append(args, "--remote")
	}
	return Retry(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.run(ctx, "", "", args...)
		return err
	})
}

// DeleteDatabase removes a database
func (s *ShellClient) DeleteDatabase(ctx context.Context, name string) error {
	return Retry(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.run(ctx, "", "", "d1", "delete", name, "--skip-confirmation")
		return err
	})
}

// PutSecret uploads a secret value via stdin so it never appears in
// process arguments or logs
func (s *ShellClient) PutSecret(ctx context.Context, scope, key, value string, env types.Environment) error {
	return Retry(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.run(ctx, "", value, "secret", "put", key, "--name", scope, "--env", string(env))
		return err
	})
}

// DeleteSecret removes a secret for the environment
func (s *ShellClient) DeleteSecret(ctx context.Context, key string, env types.Environment) error {
	return Retry(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.run(ctx, "", "", "secret", "delete", key, "--env", string(env), "--force")
		return err
	})
}

// DeployWorker deploys the already-built worker from workingDir
func (s *ShellClient) DeployWorker(ctx context.Context, env types.Environment, workingDir string) (*CommandResult, error) {
	var out *CommandResult
	err := Retry(ctx, s.retry, func(ctx context.Context) error {
		result, err := s.run(ctx, workingDir, "", "deploy", "--env", string(env))
		out = result
		return err
	})
	return out, err
}

// DeleteWorker removes a deployed worker
func (s *ShellClient) DeleteWorker(ctx context.Context, name string, env types.Environment) error {
	return Retry(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.run(ctx, "", "", "delete", "--name", name, "--env", string(env), "--force")
		return err
	})
}

// ListWorkers returns the CLI worker listing as text
func (s *ShellClient) ListWorkers(ctx context.Context) (string, error) {
	result, err := s.run(ctx, "", "", "deployments", "list")
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}

// ListSecrets returns the CLI secret listing as text. The CLI prints
// names only; values are never emitted.
func (s *ShellClient) ListSecrets(ctx context.Context) (string, error) {
	result, err := s.run(ctx, "", "", "secret", "list")
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}

// ListDatabases returns the CLI database listing as text
func (s *ShellClient) ListDatabases(ctx context.Context) (string, error) {
	result, err := s.run(ctx, "", "", "d1", "list")
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}

// HealthCheck performs a direct HTTP GET against the worker URL
func (s *ShellClient) HealthCheck(ctx context.Context, checkURL string, timeout time.Duration) (*HealthResult, error) {
	return healthCheck(ctx, nil, checkURL, timeout)
}
