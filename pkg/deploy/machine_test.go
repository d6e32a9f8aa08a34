package deploy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drydock-sh/drydock/pkg/state"
	"github.com/drydock-sh/drydock/pkg/types"
)

func newMachineState(t *testing.T, domains ...string) *state.Manager {
	t.Helper()
	m := state.NewManager(types.EnvStaging, state.Options{})
	m.InitDomainStates(domains, nil)
	return m
}

func recordPhase(log *[]string, name string) Handler {
	return func(ctx context.Context, domain string, ds types.DomainState) (*Outcome, error) {
		*log = append(*log, name)
		return nil, nil
	}
}

func TestDeployDomainAllPhasesSucceed(t *testing.T) {
	st := newMachineState(t, "a.example.com")
	var ran []string
	m := NewMachine(st, []Phase{
		{Name: PhaseValidation, Critical: true, Handler: recordPhase(&ran, PhaseValidation)},
		{Name: PhaseDatabase, Handler: recordPhase(&ran, PhaseDatabase)},
	})

	require.NoError(t, m.DeployDomain(context.Background(), "a.example.com"))

	assert.Equal(t, []string{PhaseValidation, PhaseDatabase}, ran)
	ds, _ := st.Domain("a.example.com")
	assert.Equal(t, types.StatusCompleted, ds.Status)
	assert.Equal(t, PhaseDatabase+"-complete", ds.Phase)
	assert.True(t, ds.PhaseResults[PhaseValidation].Success)
	require.NotNil(t, ds.StartTime)
	require.NotNil(t, ds.EndTime)
}

func TestDeployDomainCriticalFailureStops(t *testing.T) {
	st := newMachineState(t, "a.example.com")
	var ran []string
	m := NewMachine(st, []Phase{
		{Name: PhaseValidation, Critical: true, Handler: func(ctx context.Context, domain string, ds types.DomainState) (*Outcome, error) {
			return nil, errors.New("bad zone id")
		}},
		{Name: PhaseDatabase, Handler: recordPhase(&ran, PhaseDatabase)},
	})

	err := m.DeployDomain(context.Background(), "a.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad zone id")

	assert.Empty(t, ran, "phases after a critical failure must not run")
	ds, _ := st.Domain("a.example.com")
	assert.Equal(t, types.StatusFailed, ds.Status)
	assert.Equal(t, "bad zone id", ds.Error)
	assert.False(t, ds.PhaseResults[PhaseValidation].Success)
}

func TestDeployDomainNonCriticalFailureContinues(t *testing.T) {
	st := newMachineState(t, "a.example.com")
	var ran []string
	m := NewMachine(st, []Phase{
		{Name: PhaseDatabase, Handler: func(ctx context.Context, domain string, ds types.DomainState) (*Outcome, error) {
			return nil, errors.New("migration tool unavailable")
		}},
		{Name: PhaseSecrets, Handler: recordPhase(&ran, PhaseSecrets)},
	})

	require.NoError(t, m.DeployDomain(context.Background(), "a.example.com"))

	assert.Equal(t, []string{PhaseSecrets}, ran)
	ds, _ := st.Domain("a.example.com")
	assert.Equal(t, types.StatusCompletedWithWarnings, ds.Status)
	assert.False(t, ds.PhaseResults[PhaseDatabase].Success)
	assert.Contains(t, ds.PhaseResults[PhaseDatabase].Errors[0], "migration tool")
	assert.True(t, ds.PhaseResults[PhaseSecrets].Success)
}

func TestDeployDomainSkipTests(t *testing.T) {
	st := newMachineState(t, "a.example.com")
	var ran []string
	m := NewMachine(st, []Phase{
		{Name: PhaseDeployment, Critical: true, Handler: recordPhase(&ran, PhaseDeployment)},
		{Name: PhasePostValidation, Handler: recordPhase(&ran, PhasePostValidation)},
	})
	m.SkipTests = true

	require.NoError(t, m.DeployDomain(context.Background(), "a.example.com"))

	assert.Equal(t, []string{PhaseDeployment}, ran)
	ds, _ := st.Domain("a.example.com")
	assert.Equal(t, types.StatusCompleted, ds.Status)
	assert.NotContains(t, ds.PhaseResults, PhasePostValidation,
		"skipped phase must not be recorded")
}

func TestDeployDomainDryRunBypassesHandlers(t *testing.T) {
	st := newMachineState(t, "a.example.com")
	var ran []string
	m := NewMachine(st, []Phase{
		{Name: PhaseValidation, Critical: true, Handler: recordPhase(&ran, PhaseValidation)},
		{Name: PhaseDeployment, Critical: true, Handler: recordPhase(&ran, PhaseDeployment)},
	})
	m.DryRun = true

	start := time.Now()
	require.NoError(t, m.DeployDomain(context.Background(), "a.example.com"))
	elapsed := time.Since(start)

	assert.Empty(t, ran, "dry run must bypass handlers")
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond, "each phase simulates 100ms")

	ds, _ := st.Domain("a.example.com")
	assert.Equal(t, types.StatusCompleted, ds.Status)
	assert.True(t, ds.PhaseResults[PhaseDeployment].Success)
	assert.Empty(t, ds.RollbackActions, "dry run records no rollback actions")
}

func TestDeployDomainCancellation(t *testing.T) {
	st := newMachineState(t, "a.example.com")
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMachine(st, []Phase{
		{Name: PhaseValidation, Critical: true, Handler: func(ctx context.Context, domain string, ds types.DomainState) (*Outcome, error) {
			cancel()
			return nil, nil
		}},
		{Name: PhaseDeployment, Critical: true, Handler: func(ctx context.Context, domain string, ds types.DomainState) (*Outcome, error) {
			t.Fatal("must not run after cancellation")
			return nil, nil
		}},
	})

	err := m.DeployDomain(ctx, "a.example.com")
	require.Error(t, err)
	assert.True(t, types.IsCancelled(err))

	ds, _ := st.Domain("a.example.com")
	assert.Equal(t, types.StatusFailed, ds.Status)
	assert.Equal(t, "cancelled", ds.Error)
}

func TestDeployDomainCapturesURLs(t *testing.T) {
	st := newMachineState(t, "a.example.com")
	m := NewMachine(st, []Phase{
		{Name: PhaseDeployment, Critical: true, Handler: func(ctx context.Context, domain string, ds types.DomainState) (*Outcome, error) {
			return &Outcome{
				WorkerURL: "https://worker.example.workers.dev",
				CustomURL: "https://staging.a.example.com",
				Deployed:  true,
			}, nil
		}},
	})

	require.NoError(t, m.DeployDomain(context.Background(), "a.example.com"))

	ds, _ := st.Domain("a.example.com")
	assert.Equal(t, "https://worker.example.workers.dev", ds.WorkerURL)
	assert.Equal(t, "https://staging.a.example.com", ds.CustomURL)
}

func TestDeployDomainAuditTrail(t *testing.T) {
	st := newMachineState(t, "a.example.com")
	m := NewMachine(st, []Phase{
		{Name: PhaseValidation, Critical: true, Handler: recordPhase(new([]string), PhaseValidation)},
	})

	require.NoError(t, m.DeployDomain(context.Background(), "a.example.com"))

	var kinds []types.AuditEvent
	for _, e := range st.AuditLog() {
		kinds = append(kinds, e.Event)
	}
	assert.Equal(t, []types.AuditEvent{
		types.EventDeploymentStart,
		types.EventDeploymentSuccess,
	}, kinds)
}

func TestParseWorkerURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Deployed to https://w.example.workers.dev\n", "https://w.example.workers.dev"},
		{"Uploaded.\nCurrent: https://w.example.workers.dev.", "https://w.example.workers.dev"},
		{"no url here", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseWorkerURL(tt.in), tt.in)
	}
}
