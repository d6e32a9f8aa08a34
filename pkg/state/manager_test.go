package state

import (
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drydock-sh/drydock/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(types.EnvStaging, Options{ParallelLimit: 3})
	m.InitDomainStates([]string{"a.example.com", "b.example.com"}, nil)
	return m
}

func TestOrchestrationIDFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^orchestration-\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}-\d{3}Z-[0-9a-f]{12}$`)
	id := NewOrchestrationID()
	assert.Regexp(t, pattern, id)

	assert.NotEqual(t, id, NewOrchestrationID(), "IDs must be unique")
}

func TestDeploymentIDFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^deploy-a\.example\.com-\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}-\d{3}Z-[0-9a-f]{8}$`)
	assert.Regexp(t, pattern, NewDeploymentID("a.example.com"))
}

func TestInitDomainStates(t *testing.T) {
	m := newTestManager(t)

	ds, ok := m.Domain("a.example.com")
	require.True(t, ok)
	assert.Equal(t, types.StatusPending, ds.Status)
	assert.NotEmpty(t, ds.DeploymentID)
	assert.Nil(t, ds.EndTime)

	// Re-seeding must not reset existing state
	require.NoError(t, m.MarkStarted("a.example.com"))
	m.InitDomainStates([]string{"a.example.com"}, nil)
	ds, _ = m.Domain("a.example.com")
	assert.Equal(t, types.StatusDeploying, ds.Status)
}

func TestStatusTransitionsAreMonotonic(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.MarkStarted("a.example.com"))
	require.NoError(t, m.MarkCompleted("a.example.com"))

	// Terminal state never reverts
	assert.Error(t, m.MarkStarted("a.example.com"))
	assert.Error(t, m.MarkFailed("a.example.com", "late failure"))

	deploying := types.StatusDeploying
	assert.Error(t, m.UpdateDomain("a.example.com", Patch{Status: &deploying}))

	ds, _ := m.Domain("a.example.com")
	assert.Equal(t, types.StatusCompleted, ds.Status)
	require.NotNil(t, ds.EndTime, "terminal status must stamp end_time")
}

func TestMarkFailedRecordsError(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.MarkStarted("b.example.com"))
	require.NoError(t, m.MarkFailed("b.example.com", "database timeout"))

	ds, _ := m.Domain("b.example.com")
	assert.Equal(t, types.StatusFailed, ds.Status)
	assert.Equal(t, "database timeout", ds.Error)
	assert.NotNil(t, ds.EndTime)
}

func TestUpdateDomainPatchFields(t *testing.T) {
	m := newTestManager(t)

	phase := "deployment"
	url := "https://worker.example.workers.dev"
	require.NoError(t, m.UpdateDomain("a.example.com", Patch{
		Phase:     &phase,
		WorkerURL: &url,
		PhaseName: "database",
		PhaseResult: &types.PhaseResult{
			Success:  true,
			Warnings: []string{"reused existing database"},
		},
	}))

	ds, _ := m.Domain("a.example.com")
	assert.Equal(t, "deployment", ds.Phase)
	assert.Equal(t, url, ds.WorkerURL)
	require.Contains(t, ds.PhaseResults, "database")
	assert.True(t, ds.PhaseResults["database"].Success)

	assert.Error(t, m.UpdateDomain("unknown.example.com", Patch{Phase: &phase}))
}

func TestAuditSequenceContiguousUnderConcurrency(t *testing.T) {
	m := newTestManager(t)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.AppendAudit(types.EventDeploymentStart, "a.example.com",
				map[string]interface{}{"i": i})
		}(i)
	}
	wg.Wait()

	entries := m.AuditLog()
	require.Len(t, entries, n)
	seen := make(map[int64]bool, n)
	for _, e := range entries {
		seen[e.SequenceNumber] = true
	}
	for i := int64(1); i <= n; i++ {
		assert.True(t, seen[i], "sequence %d missing", i)
	}
}

func TestAuditDefaultsDomainToAll(t *testing.T) {
	m := newTestManager(t)
	entry := m.AppendAudit(types.EventPortfolioInitialized, "", nil)
	assert.Equal(t, types.AuditDomainAll, entry.Domain)
}

func TestAddRollbackActionAppendsToBothPlans(t *testing.T) {
	m := newTestManager(t)

	action := &types.RollbackAction{
		ID:       "rb-1",
		Type:     types.RollbackDeleteWorker,
		Priority: types.PriorityDeleteWorker,
	}
	require.NoError(t, m.AddRollbackAction("a.example.com", action))

	ds, _ := m.Domain("a.example.com")
	require.Len(t, ds.RollbackActions, 1)

	plan := m.RollbackPlan()
	require.Len(t, plan, 1)
	assert.Equal(t, "a.example.com", plan[0].Domain)
	assert.Equal(t, "rb-1", plan[0].Action.ID)
}

func TestSummaryAndSnapshot(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.MarkStarted("a.example.com"))
	require.NoError(t, m.MarkCompleted("a.example.com"))
	require.NoError(t, m.MarkStarted("b.example.com"))
	require.NoError(t, m.MarkFailed("b.example.com", "boom"))
	m.FinishRun()

	s := m.Summary()
	assert.Equal(t, types.RunSummary{Total: 2, Completed: 1, Failed: 1}, s)

	snap := m.Snapshot()
	assert.Equal(t, m.OrchestrationID(), snap.OrchestrationID)
	assert.NotNil(t, snap.EndTime)
	assert.Len(t, snap.DomainStates, 2)

	// Snapshot must be detached from manager-owned state
	snap.DomainStates["a.example.com"].Error = "mutated"
	ds, _ := m.Domain("a.example.com")
	assert.Empty(t, ds.Error)
}

func TestSnapshotPersistRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := NewPersister(dir)
	m := NewManager(types.EnvProduction, Options{Persister: p, RollbackEnabled: true})
	m.InitDomainStates([]string{"a.example.com"}, nil)
	m.AppendAudit(types.EventOrchestratorInitialized, "", nil)
	m.FinishRun()
	p.Wait()

	loaded, err := p.Load(m.OrchestrationID())
	require.NoError(t, err)
	assert.Equal(t, m.OrchestrationID(), loaded.OrchestrationID)
	assert.True(t, loaded.Metadata.PersistenceEnabled)
	assert.True(t, loaded.Metadata.RollbackEnabled)
	require.Len(t, loaded.AuditLog, 1)
	assert.Equal(t, int64(1), loaded.AuditLog[0].SequenceNumber)
}

func TestHistoryStore(t *testing.T) {
	store, err := OpenHistory(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	for i := 0; i < 3; i++ {
		m := NewManager(types.EnvStaging, Options{})
		m.InitDomainStates([]string{fmt.Sprintf("d%d.example.com", i)}, nil)
		m.FinishRun()
		require.NoError(t, store.PutRun(m.Snapshot()))
	}

	records, err := store.ListRuns()
	require.NoError(t, err)
	require.Len(t, records, 3)

	snap, err := store.GetRun(records[0].OrchestrationID)
	require.NoError(t, err)
	assert.Len(t, snap.DomainStates, 1)

	require.NoError(t, store.DeleteRun(records[0].OrchestrationID))
	_, err = store.GetRun(records[0].OrchestrationID)
	assert.Error(t, err)
}
