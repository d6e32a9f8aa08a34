package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/drydock-sh/drydock/pkg/types"
)

// ActiveConfigName is the working-copy platform config file name
const ActiveConfigName = "wrangler.toml"

// DatabaseBinding describes one logical database binding in the
// platform configuration
type DatabaseBinding struct {
	Binding      string `toml:"binding"`
	DatabaseName string `toml:"database_name"`
	DatabaseID   string `toml:"database_id"`
}

// CustomerConfigParams parameterizes a generated per-customer config
type CustomerConfigParams struct {
	AccountID   string
	Environment types.Environment
	WorkerName  string
}

// Manager edits the wrangler-style platform configuration. The active
// config file is treated as a run-exclusive working copy; per-customer
// configs are persistent and replaced into the active path atomically.
type Manager struct {
	// WorkingDir is the project root containing the active config
	WorkingDir string

	// CustomerDir holds generated per-customer configs.
	// Defaults to <WorkingDir>/configs/customers.
	CustomerDir string
}

// NewManager creates a configuration manager rooted at workingDir
func NewManager(workingDir string) *Manager {
	return &Manager{
		WorkingDir:  workingDir,
		CustomerDir: filepath.Join(workingDir, "configs", "customers"),
	}
}

// ActivePath returns the path of the active platform config
func (m *Manager) ActivePath() string {
	return filepath.Join(m.WorkingDir, ActiveConfigName)
}

// load parses the active config into a generic document. A missing file
// yields an empty document so first-run setups work.
func (m *Manager) load() (map[string]interface{}, error) {
	data, err := os.ReadFile(m.ActivePath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("read platform config: %w", err)
	}

	doc := map[string]interface{}{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse platform config: %w", err)
	}
	return doc, nil
}

// save writes the document back atomically, backing up the previous
// content first
func (m *Manager) save(doc map[string]interface{}) error {
	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal platform config: %w", err)
	}

	dest := m.ActivePath()
	if _, statErr := os.Stat(dest); statErr == nil {
		if err := m.backupActive(); err != nil {
			return err
		}
	}
	if err := atomicWrite(dest, data, 0644); err != nil {
		return fmt.Errorf("write platform config: %w", err)
	}
	return nil
}

func (m *Manager) backupActive() error {
	data, err := os.ReadFile(m.ActivePath())
	if err != nil {
		return fmt.Errorf("read config for backup: %w", err)
	}
	stamp := time.Now().UTC().Format("20060102-150405")
	backupPath := m.ActivePath() + "." + stamp + ".bak"
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return fmt.Errorf("backup config: %w", err)
	}
	return nil
}

// SetAccountID sets the top-level account identifier
func (m *Manager) SetAccountID(accountID string) error {
	doc, err := m.load()
	if err != nil {
		return err
	}
	doc["account_id"] = accountID
	return m.save(doc)
}

// EnsureEnvironment makes sure an [env.<name>] table exists
func (m *Manager) EnsureEnvironment(env types.Environment) error {
	doc, err := m.load()
	if err != nil {
		return err
	}
	ensureEnvTable(doc, env)
	return m.save(doc)
}

// ensureEnvTable returns the env table, creating intermediate tables as
// needed
func ensureEnvTable(doc map[string]interface{}, env types.Environment) map[string]interface{} {
	envs, ok := doc["env"].(map[string]interface{})
	if !ok {
		envs = map[string]interface{}{}
		doc["env"] = envs
	}
	table, ok := envs[string(env)].(map[string]interface{})
	if !ok {
		table = map[string]interface{}{}
		envs[string(env)] = table
	}
	return table
}

// AddDatabaseBinding binds a database under the logical binding name for
// the given environment. An existing binding with the same name is
// replaced rather than duplicated.
func (m *Manager) AddDatabaseBinding(env types.Environment, binding DatabaseBinding) error {
	if binding.Binding == "" {
		binding.Binding = "DB"
	}

	doc, err := m.load()
	if err != nil {
		return err
	}
	table := ensureEnvTable(doc, env)

	entry := map[string]interface{}{
		"binding":       binding.Binding,
		"database_name": binding.DatabaseName,
		"database_id":   binding.DatabaseID,
	}

	var bindings []interface{}
	if existing, ok := table["d1_databases"].([]interface{}); ok {
		for _, raw := range existing {
			if b, ok := raw.(map[string]interface{}); ok && b["binding"] == binding.Binding {
				continue
			}
			bindings = append(bindings, raw)
		}
	}
	bindings = append(bindings, entry)
	table["d1_databases"] = bindings

	return m.save(doc)
}

// GenerateCustomerConfig renders a per-customer platform config derived
// from the zone name and returns its path. The file is persistent and
// versioned by zone + environment.
func (m *Manager) GenerateCustomerConfig(zoneName string, params CustomerConfigParams) (string, error) {
	doc := map[string]interface{}{
		"name":               params.WorkerName,
		"account_id":         params.AccountID,
		"main":               "src/index.js",
		"compatibility_date": time.Now().UTC().Format("2006-01-02"),
		"env": map[string]interface{}{
			string(params.Environment): map[string]interface{}{
				"name": params.WorkerName + "-" + string(params.Environment),
				"vars": map[string]interface{}{
					"ZONE_NAME":   zoneName,
					"ENVIRONMENT": string(params.Environment),
				},
			},
		},
	}

	data, err := toml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal customer config: %w", err)
	}

	if err := os.MkdirAll(m.CustomerDir, 0755); err != nil {
		return "", fmt.Errorf("create customer config directory: %w", err)
	}
	path := filepath.Join(m.CustomerDir, fmt.Sprintf("%s.%s.toml", zoneName, params.Environment))
	if err := atomicWrite(path, data, 0644); err != nil {
		return "", fmt.Errorf("write customer config: %w", err)
	}
	return path, nil
}

// CopyCustomerConfig atomically replaces the active config with the
// customer config at path, backing up the previous active config
func (m *Manager) CopyCustomerConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read customer config: %w", err)
	}

	// Validate before activating; a malformed config would break every
	// subsequent CLI invocation in the run
	var doc map[string]interface{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("customer config %s is not valid TOML: %w", path, err)
	}

	dest := m.ActivePath()
	if _, statErr := os.Stat(dest); statErr == nil {
		if err := m.backupActive(); err != nil {
			return err
		}
	}
	if err := atomicWrite(dest, data, 0644); err != nil {
		return fmt.Errorf("activate customer config: %w", err)
	}
	return nil
}
