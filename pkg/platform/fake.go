package platform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/drydock-sh/drydock/pkg/types"
)

// Fake is an in-memory Platform used in tests. It records every call,
// tracks mutating calls separately (so dry-run purity can be asserted),
// and supports per-operation error injection.
type Fake struct {
	mu sync.Mutex

	// Databases maps database name to ID
	Databases map[string]string

	// Secrets maps "env/key" to a redacted marker (values are not kept)
	Secrets map[string]bool

	// Workers maps "env/name" to deployed
	Workers map[string]bool

	// DeployStdout is returned by DeployWorker (defaults to a URL line)
	DeployStdout string

	// Errors maps operation name to an injected error
	Errors map[string]error

	// HealthResponses is consumed one per HealthCheck call; when
	// exhausted the last entry repeats. A nil entry means return Err.
	HealthResponses []HealthResponse

	healthCalls int

	// Calls records every operation in invocation order
	Calls []string

	// Mutations records only state-changing operations
	Mutations []string
}

// HealthResponse scripts one HealthCheck outcome
type HealthResponse struct {
	StatusCode int
	Err        error
}

// NewFake creates an empty fake platform
func NewFake() *Fake {
	return &Fake{
		Databases:    make(map[string]string),
		Secrets:      make(map[string]bool),
		Workers:      make(map[string]bool),
		Errors:       make(map[string]error),
		DeployStdout: "Uploaded worker\nDeployed to https://worker.example.workers.dev\n",
	}
}

func (f *Fake) record(op string, mutating bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, op)
	if mutating {
		f.Mutations = append(f.Mutations, op)
	}
	return f.Errors[opName(op)]
}

// opName strips arguments from a recorded call ("CreateDatabase(x)" →
// "CreateDatabase") so error injection keys stay short
func opName(op string) string {
	for i := 0; i < len(op); i++ {
		if op[i] == '(' {
			return op[:i]
		}
	}
	return op
}

// CallCount returns how many times the named operation ran
func (f *Fake) CallCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if opName(c) == name {
			n++
		}
	}
	return n
}

// MutationCount returns the number of state-changing calls recorded
func (f *Fake) MutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Mutations)
}

func (f *Fake) DatabaseExists(ctx context.Context, name string) (bool, error) {
	if err := f.record(fmt.Sprintf("DatabaseExists(%s)", name), false); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Databases[name]
	return ok, nil
}

func (f *Fake) CreateDatabase(ctx context.Context, name string) (string, error) {
	if err := f.record(fmt.Sprintf("CreateDatabase(%s)", name), true); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("db-%04d", len(f.Databases)+1)
	f.Databases[name] = id
	return id, nil
}

func (f *Fake) GetDatabaseID(ctx context.Context, name string) (string, error) {
	if err := f.record(fmt.Sprintf("GetDatabaseID(%s)", name), false); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.Databases[name]
	if !ok {
		return "", &NotFoundError{Resource: "database", Name: name}
	}
	return id, nil
}

func (f *Fake) ApplyMigrations(ctx context.Context, databaseName, binding string, env types.Environment, remote bool) error {
	return f.record(fmt.Sprintf("ApplyMigrations(%s)", databaseName), true)
}

func (f *Fake) DeleteDatabase(ctx context.Context, name string) error {
	if err := f.record(fmt.Sprintf("DeleteDatabase(%s)", name), true); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Databases[name]; !ok {
		return &NotFoundError{Resource: "database", Name: name}
	}
	delete(f.Databases, name)
	return nil
}

func (f *Fake) PutSecret(ctx context.Context, scope, key, value string, env types.Environment) error {
	if err := f.record(fmt.Sprintf("PutSecret(%s)", key), true); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[string(env)+"/"+key] = true
	return nil
}

func (f *Fake) DeleteSecret(ctx context.Context, key string, env types.Environment) error {
	if err := f.record(fmt.Sprintf("DeleteSecret(%s)", key), true); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Secrets, string(env)+"/"+key)
	return nil
}

func (f *Fake) DeployWorker(ctx context.Context, env types.Environment, workingDir string) (*CommandResult, error) {
	if err := f.record(fmt.Sprintf("DeployWorker(%s)", env), true); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Workers[string(env)+"/"+workingDir] = true
	return &CommandResult{Stdout: f.DeployStdout}, nil
}

func (f *Fake) DeleteWorker(ctx context.Context, name string, env types.Environment) error {
	if err := f.record(fmt.Sprintf("DeleteWorker(%s)", name), true); err != nil {
		return err
	}
	return nil
}

func (f *Fake) ListWorkers(ctx context.Context) (string, error) {
	if err := f.record("ListWorkers", false); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := ""
	for w := range f.Workers {
		out += w + "\n"
	}
	return out, nil
}

func (f *Fake) ListSecrets(ctx context.Context) (string, error) {
	if err := f.record("ListSecrets", false); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := ""
	for s := range f.Secrets {
		out += s + "\n"
	}
	return out, nil
}

func (f *Fake) ListDatabases(ctx context.Context) (string, error) {
	if err := f.record("ListDatabases", false); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := ""
	for name, id := range f.Databases {
		out += name + " " + id + "\n"
	}
	return out, nil
}

func (f *Fake) HealthCheck(ctx context.Context, url string, timeout time.Duration) (*HealthResult, error) {
	if err := f.record(fmt.Sprintf("HealthCheck(%s)", url), false); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.HealthResponses) == 0 {
		return &HealthResult{StatusCode: 200, ResponseTime: time.Millisecond}, nil
	}
	idx := f.healthCalls
	if idx >= len(f.HealthResponses) {
		idx = len(f.HealthResponses) - 1
	}
	f.healthCalls++
	resp := f.HealthResponses[idx]
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &HealthResult{StatusCode: resp.StatusCode, ResponseTime: time.Millisecond}, nil
}
