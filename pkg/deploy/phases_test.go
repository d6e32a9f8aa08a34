package deploy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drydock-sh/drydock/pkg/config"
	"github.com/drydock-sh/drydock/pkg/health"
	"github.com/drydock-sh/drydock/pkg/platform"
	"github.com/drydock-sh/drydock/pkg/resolver"
	"github.com/drydock-sh/drydock/pkg/secrets"
	"github.com/drydock-sh/drydock/pkg/state"
	"github.com/drydock-sh/drydock/pkg/types"
)

func newDeps(t *testing.T, fake *platform.Fake, st *state.Manager) *Deps {
	t.Helper()
	t.Setenv("CLOUDFLARE_API_TOKEN", "tok")
	t.Setenv("CLOUDFLARE_ACCOUNT_ID", "acct")
	t.Setenv("CLOUDFLARE_ZONE_ID", "zone")
	t.Setenv("ENVIRONMENT", "staging")

	workDir := t.TempDir()
	checker := health.NewChecker(fake)
	checker.Backoff = time.Millisecond

	return &Deps{
		Platform:    fake,
		Resolver:    resolver.New(),
		Config:      config.NewManager(workDir),
		Secrets:     secrets.NewManager(t.TempDir()),
		Health:      checker,
		State:       st,
		Environment: types.EnvStaging,
		AccountID:   "acct",
		WorkingDir:  workDir,
	}
}

func deployOne(t *testing.T, deps *Deps, domain string) (*Machine, *state.Manager) {
	t.Helper()
	cfg, err := deps.Resolver.Resolve(domain, nil)
	require.NoError(t, err)
	deps.State.InitDomainStates([]string{domain}, map[string]*types.DomainConfig{domain: cfg})

	m := NewMachine(deps.State, StandardPhases(deps))
	return m, deps.State
}

func TestStandardPhasesHappyPath(t *testing.T) {
	fake := platform.NewFake()
	fake.HealthResponses = []platform.HealthResponse{{StatusCode: 200}}
	st := state.NewManager(types.EnvStaging, state.Options{})
	deps := newDeps(t, fake, st)

	m, _ := deployOne(t, deps, "api.example.com")
	require.NoError(t, m.DeployDomain(context.Background(), "api.example.com"))

	ds, _ := st.Domain("api.example.com")
	assert.Equal(t, types.StatusCompleted, ds.Status)
	assert.Equal(t, "https://worker.example.workers.dev", ds.WorkerURL)
	assert.Equal(t, "https://staging.api.example.com", ds.CustomURL)
	assert.Equal(t, "api-example-com-staging-db", ds.DatabaseName)
	assert.NotEmpty(t, ds.DatabaseID)

	// Database created, secrets uploaded, worker deployed
	assert.Equal(t, 1, fake.CallCount("CreateDatabase"))
	assert.Equal(t, len(secrets.DefaultNames), fake.CallCount("PutSecret"))
	assert.Equal(t, 1, fake.CallCount("DeployWorker"))
	assert.Equal(t, 1, fake.CallCount("ApplyMigrations"))

	// Rollback plan carries database, secrets, and worker actions
	var kinds []types.RollbackActionType
	for _, p := range st.RollbackPlan() {
		kinds = append(kinds, p.Action.Type)
	}
	assert.Contains(t, kinds, types.RollbackDeleteDatabase)
	assert.Contains(t, kinds, types.RollbackDeleteSecret)
	assert.Contains(t, kinds, types.RollbackDeleteWorker)

	// Audit trail includes the database and secret events
	var auditKinds []types.AuditEvent
	for _, e := range st.AuditLog() {
		auditKinds = append(auditKinds, e.Event)
	}
	assert.Contains(t, auditKinds, types.EventDatabaseCreated)
	assert.Contains(t, auditKinds, types.EventSecretsGenerated)
	assert.Contains(t, auditKinds, types.EventHealthCheckPassed)
}

func TestStandardPhasesReuseExistingDatabase(t *testing.T) {
	fake := platform.NewFake()
	_, err := fake.CreateDatabase(context.Background(), "api-example-com-staging-db")
	require.NoError(t, err)
	fake.HealthResponses = []platform.HealthResponse{{StatusCode: 200}}

	st := state.NewManager(types.EnvStaging, state.Options{})
	deps := newDeps(t, fake, st)
	m, _ := deployOne(t, deps, "api.example.com")

	require.NoError(t, m.DeployDomain(context.Background(), "api.example.com"))

	assert.Equal(t, 1, fake.CallCount("CreateDatabase"), "no second create for an existing database")

	var auditKinds []types.AuditEvent
	for _, e := range st.AuditLog() {
		auditKinds = append(auditKinds, e.Event)
	}
	assert.Contains(t, auditKinds, types.EventDatabaseFound)
	assert.NotContains(t, auditKinds, types.EventDatabaseCreated)

	// An untouched database must not be scheduled for deletion
	for _, p := range st.RollbackPlan() {
		assert.NotEqual(t, types.RollbackDeleteDatabase, p.Action.Type)
	}
}

func TestStandardPhasesMigrationFailureIsWarning(t *testing.T) {
	fake := platform.NewFake()
	fake.Errors["ApplyMigrations"] = &platform.TransportError{Op: "migrate"}
	fake.HealthResponses = []platform.HealthResponse{{StatusCode: 200}}

	st := state.NewManager(types.EnvStaging, state.Options{})
	deps := newDeps(t, fake, st)
	m, _ := deployOne(t, deps, "api.example.com")

	require.NoError(t, m.DeployDomain(context.Background(), "api.example.com"))

	ds, _ := st.Domain("api.example.com")
	assert.Equal(t, types.StatusCompleted, ds.Status,
		"migration failure is a warning inside a successful phase")
	require.True(t, ds.PhaseResults[PhaseDatabase].Success)
	assert.NotEmpty(t, ds.PhaseResults[PhaseDatabase].Warnings)
}

func TestStandardPhasesDatabaseFailureIsNonCritical(t *testing.T) {
	fake := platform.NewFake()
	fake.Errors["CreateDatabase"] = &platform.TransportError{Op: "create"}
	fake.HealthResponses = []platform.HealthResponse{{StatusCode: 200}}

	st := state.NewManager(types.EnvStaging, state.Options{})
	deps := newDeps(t, fake, st)
	m, _ := deployOne(t, deps, "api.example.com")

	require.NoError(t, m.DeployDomain(context.Background(), "api.example.com"))

	ds, _ := st.Domain("api.example.com")
	assert.Equal(t, types.StatusCompletedWithWarnings, ds.Status)
	assert.False(t, ds.PhaseResults[PhaseDatabase].Success)
	assert.Equal(t, 1, fake.CallCount("DeployWorker"), "deployment still runs")
}

func TestStandardPhasesDeployFailureIsCritical(t *testing.T) {
	fake := platform.NewFake()
	fake.Errors["DeployWorker"] = &platform.AuthError{Msg: "token expired"}

	st := state.NewManager(types.EnvStaging, state.Options{})
	deps := newDeps(t, fake, st)
	m, _ := deployOne(t, deps, "api.example.com")

	err := m.DeployDomain(context.Background(), "api.example.com")
	require.Error(t, err)

	ds, _ := st.Domain("api.example.com")
	assert.Equal(t, types.StatusFailed, ds.Status)
	assert.Zero(t, fake.CallCount("HealthCheck"), "post-validation must not run after a critical failure")
}

func TestStandardPhasesUnparseableDeployOutputWarns(t *testing.T) {
	fake := platform.NewFake()
	fake.DeployStdout = "Uploaded worker (no url printed)\n"
	fake.HealthResponses = []platform.HealthResponse{{StatusCode: 200}}

	st := state.NewManager(types.EnvStaging, state.Options{})
	deps := newDeps(t, fake, st)
	m, _ := deployOne(t, deps, "api.example.com")

	require.NoError(t, m.DeployDomain(context.Background(), "api.example.com"))

	ds, _ := st.Domain("api.example.com")
	assert.Empty(t, ds.WorkerURL)
	assert.NotEmpty(t, ds.CustomURL, "custom URL is still composed")
	require.True(t, ds.PhaseResults[PhaseDeployment].Success)
	assert.NotEmpty(t, ds.PhaseResults[PhaseDeployment].Warnings)
}

func TestDryRunTouchesNoPlatformState(t *testing.T) {
	fake := platform.NewFake()
	st := state.NewManager(types.EnvStaging, state.Options{DryRun: true})
	deps := newDeps(t, fake, st)
	m, _ := deployOne(t, deps, "api.example.com")
	m.DryRun = true

	require.NoError(t, m.DeployDomain(context.Background(), "api.example.com"))

	assert.Zero(t, fake.MutationCount(), "dry run must not mutate platform state")
	assert.Empty(t, fake.Calls, "dry run must not call the platform at all")
	assert.Empty(t, st.RollbackPlan())

	ds, _ := st.Domain("api.example.com")
	assert.Equal(t, types.StatusCompleted, ds.Status)
}
