package secrets

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/drydock-sh/drydock/pkg/log"
	"github.com/drydock-sh/drydock/pkg/platform"
	"github.com/drydock-sh/drydock/pkg/types"
)

// DefaultNames are the secrets generated for every (domain, environment)
// pair when the caller does not supply its own list
var DefaultNames = []string{
	"API_SECRET",
	"JWT_SECRET",
	"WEBHOOK_SIGNING_KEY",
}

// Redacted replaces secret values anywhere they might be rendered
const Redacted = "[REDACTED]"

// Manager generates and distributes secrets for a run. Values are held
// in memory only for the duration of the run; logs and audit entries
// carry names and counts, never values. Generated values are reused on
// repeated requests for the same (scope, name) within the run.
type Manager struct {
	// ArtifactDir is where .env and upload-script artifacts are written,
	// typically backups/secrets/<run_id>
	ArtifactDir string

	// Names overrides DefaultNames when non-empty
	Names []string

	mu     sync.Mutex
	values map[string]string // "<scope>/<name>" → value
	logger zerolog.Logger
}

// NewManager creates a secret manager writing artifacts under artifactDir
func NewManager(artifactDir string) *Manager {
	return &Manager{
		ArtifactDir: artifactDir,
		values:      make(map[string]string),
		logger:      log.WithComponent("secrets"),
	}
}

// generateValue returns 32 random bytes as unpadded base64url
func generateValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret value: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Generate produces (or reuses) the named secrets for scope. The
// returned map's values are live secrets; callers must not log them.
func (m *Manager) Generate(scope string) (map[string]string, error) {
	names := m.Names
	if len(names) == 0 {
		names = DefaultNames
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(names))
	generated := 0
	for _, name := range names {
		key := scope + "/" + name
		if v, ok := m.values[key]; ok {
			out[name] = v
			continue
		}
		v, err := generateValue()
		if err != nil {
			return nil, err
		}
		m.values[key] = v
		out[name] = v
		generated++
	}

	m.logger.Info().
		Str("scope", scope).
		Int("generated", generated).
		Int("reused", len(names)-generated).
		Msg("secrets ready")
	return out, nil
}

// Names returns the sorted secret names for a generated set
func Names(values map[string]string) []string {
	names := make([]string, 0, len(values))
	for n := range values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Distribute uploads the secrets to the platform for the given worker
// scope and environment, contributing a delete-secret rollback action
// per uploaded secret via record.
func (m *Manager) Distribute(ctx context.Context, p platform.Platform, scope string,
	env types.Environment, values map[string]string, record func(*types.RollbackAction)) error {

	for _, name := range Names(values) {
		if err := p.PutSecret(ctx, scope, name, values[name], env); err != nil {
			return fmt.Errorf("put secret %s: %w", name, err)
		}
		if record != nil {
			record(&types.RollbackAction{
				Type:        types.RollbackDeleteSecret,
				Priority:    types.PriorityDeleteSecret,
				Description: fmt.Sprintf("delete secret %s (%s)", name, env),
				Critical:    true,
				SecretKey:   name,
				WorkerName:  scope,
				Environment: env,
			})
		}
	}
	return nil
}

// WriteArtifacts renders the .env-style and CLI-upload artifacts for a
// generated set into ArtifactDir. The directory is created 0700 and the
// files 0600; these are the only places values leave process memory.
func (m *Manager) WriteArtifacts(scope string, env types.Environment, values map[string]string) error {
	dir := filepath.Join(m.ArtifactDir, scope)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create secret artifact directory: %w", err)
	}

	names := Names(values)

	var envFile strings.Builder
	fmt.Fprintf(&envFile, "# secrets for %s (%s)\n", scope, env)
	for _, name := range names {
		fmt.Fprintf(&envFile, "%s=%s\n", name, values[name])
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(envFile.String()), 0600); err != nil {
		return fmt.Errorf("write .env artifact: %w", err)
	}

	var script strings.Builder
	script.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&script, "# uploads secrets for %s (%s)\nset -e\n", scope, env)
	for _, name := range names {
		fmt.Fprintf(&script, "printf '%%s' '%s' | wrangler secret put %s --name %s --env %s\n",
			values[name], name, scope, env)
	}
	if err := os.WriteFile(filepath.Join(dir, "put-secrets.sh"), []byte(script.String()), 0700); err != nil {
		return fmt.Errorf("write upload script artifact: %w", err)
	}
	return nil
}
