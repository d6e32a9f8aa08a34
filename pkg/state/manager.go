package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/drydock-sh/drydock/pkg/log"
	"github.com/drydock-sh/drydock/pkg/types"
)

// Options configures a state manager
type Options struct {
	// DryRun marks the run as a simulation in persisted snapshots
	DryRun bool

	// ParallelLimit and BatchPause are recorded on the run for reporting
	ParallelLimit int
	BatchPause    time.Duration
	SkipTests     bool

	// Persister receives snapshots after every audit append and on
	// terminal transitions. Nil disables persistence.
	Persister *Persister

	// RollbackEnabled is recorded in snapshot metadata
	RollbackEnabled bool
}

// Patch is a partial update to a DomainState. Nil fields are left
// untouched. Status transitions are validated: a terminal status never
// reverts.
type Patch struct {
	Phase        *string
	Status       *types.DomainStatus
	Error        *string
	WorkerURL    *string
	CustomURL    *string
	DatabaseName *string
	DatabaseID   *string

	// PhaseResult records the outcome of the named phase
	PhaseName   string
	PhaseResult *types.PhaseResult
}

// Manager is the single owner of all run and domain state. Every
// mutation happens under its lock; other components never hold a
// reference they mutate directly. In-memory state is authoritative;
// persistence is best-effort and never fails a deployment.
type Manager struct {
	mu sync.Mutex

	run          types.OrchestrationRun
	domainStates map[string]*types.DomainState
	auditLog     []types.AuditEntry
	nextSequence int64
	rollbackPlan []types.PlannedAction

	persister *Persister
	rollback  bool
	logger    zerolog.Logger
}

// NewManager creates a state manager for a fresh orchestration run and
// persists the initial empty snapshot
func NewManager(env types.Environment, opts Options) *Manager {
	m := &Manager{
		run: types.OrchestrationRun{
			OrchestrationID: NewOrchestrationID(),
			Environment:     env,
			StartTime:       time.Now().UTC(),
			DryRun:          opts.DryRun,
			ParallelLimit:   opts.ParallelLimit,
			BatchPause:      opts.BatchPause,
			SkipTests:       opts.SkipTests,
		},
		domainStates: make(map[string]*types.DomainState),
		nextSequence: 1,
		persister:    opts.Persister,
		rollback:     opts.RollbackEnabled,
		logger:       log.WithComponent("state"),
	}
	m.logger = m.logger.With().Str("orchestration_id", m.run.OrchestrationID).Logger()
	m.persist()
	return m
}

// OrchestrationID returns the run identifier
func (m *Manager) OrchestrationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run.OrchestrationID
}

// Run returns a copy of the run record
func (m *Manager) Run() types.OrchestrationRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run
}

// FinishRun stamps the run's end time. Idempotent.
func (m *Manager) FinishRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run.EndTime == nil {
		now := time.Now().UTC()
		m.run.EndTime = &now
	}
	m.persistLocked()
}

// InitDomainStates seeds a pending DomainState per domain, assigning
// deployment IDs. Already-known domains are left untouched.
func (m *Manager) InitDomainStates(domains []string, configs map[string]*types.DomainConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range domains {
		if _, ok := m.domainStates[d]; ok {
			continue
		}
		m.domainStates[d] = &types.DomainState{
			Domain:       d,
			DeploymentID: NewDeploymentID(d),
			Status:       types.StatusPending,
			Config:       configs[d],
			PhaseResults: make(map[string]*types.PhaseResult),
			LastUpdated:  time.Now().UTC(),
		}
	}
}

// Domain returns a copy of the named domain's state
func (m *Manager) Domain(domain string) (types.DomainState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.domainStates[domain]
	if !ok {
		return types.DomainState{}, false
	}
	return copyDomainState(ds), true
}

// Domains returns the names of all tracked domains
func (m *Manager) Domains() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.domainStates))
	for d := range m.domainStates {
		out = append(out, d)
	}
	return out
}

// UpdateDomain applies a partial update to the named domain. Reverse
// status transitions (terminal → non-terminal, or any change off a
// terminal status) are rejected.
func (m *Manager) UpdateDomain(domain string, patch Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(domain, patch)
}

func (m *Manager) updateLocked(domain string, patch Patch) error {
	ds, ok := m.domainStates[domain]
	if !ok {
		return fmt.Errorf("unknown domain %q", domain)
	}

	if patch.Status != nil && *patch.Status != ds.Status {
		if ds.Status.Terminal() {
			return fmt.Errorf("domain %s is already %s; refusing transition to %s",
				domain, ds.Status, *patch.Status)
		}
		ds.Status = *patch.Status
		if ds.Status.Terminal() {
			now := time.Now().UTC()
			ds.EndTime = &now
		}
	}
	if patch.Phase != nil {
		ds.Phase = *patch.Phase
	}
	if patch.Error != nil {
		ds.Error = *patch.Error
	}
	if patch.WorkerURL != nil {
		ds.WorkerURL = *patch.WorkerURL
	}
	if patch.CustomURL != nil {
		ds.CustomURL = *patch.CustomURL
	}
	if patch.DatabaseName != nil {
		ds.DatabaseName = *patch.DatabaseName
	}
	if patch.DatabaseID != nil {
		ds.DatabaseID = *patch.DatabaseID
	}
	if patch.PhaseName != "" && patch.PhaseResult != nil {
		if ds.PhaseResults == nil {
			ds.PhaseResults = make(map[string]*types.PhaseResult)
		}
		ds.PhaseResults[patch.PhaseName] = patch.PhaseResult
	}
	ds.LastUpdated = time.Now().UTC()
	return nil
}

// MarkStarted moves a pending domain into deploying and stamps its start
func (m *Manager) MarkStarted(domain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.domainStates[domain]
	if !ok {
		return fmt.Errorf("unknown domain %q", domain)
	}
	status := types.StatusDeploying
	if err := m.updateLocked(domain, Patch{Status: &status}); err != nil {
		return err
	}
	now := time.Now().UTC()
	ds.StartTime = &now
	return nil
}

// MarkCompleted finishes a domain successfully
func (m *Manager) MarkCompleted(domain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := types.StatusCompleted
	return m.updateLocked(domain, Patch{Status: &status})
}

// MarkCompletedWithWarnings finishes a domain whose non-critical phases
// reported problems
func (m *Manager) MarkCompletedWithWarnings(domain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := types.StatusCompletedWithWarnings
	return m.updateLocked(domain, Patch{Status: &status})
}

// MarkFailed finishes a domain with an error message
func (m *Manager) MarkFailed(domain string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := types.StatusFailed
	return m.updateLocked(domain, Patch{Status: &status, Error: &errMsg})
}

// AppendAudit records an event in the run's ordered audit log. Sequence
// numbers are contiguous from 1. Persistence is asynchronous and
// best-effort; it never fails the caller.
func (m *Manager) AppendAudit(event types.AuditEvent, domain string, details map[string]interface{}) types.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if domain == "" {
		domain = types.AuditDomainAll
	}
	entry := types.AuditEntry{
		Timestamp:       time.Now().UTC(),
		OrchestrationID: m.run.OrchestrationID,
		SequenceNumber:  m.nextSequence,
		Event:           event,
		Domain:          domain,
		Details:         details,
	}
	m.nextSequence++
	m.auditLog = append(m.auditLog, entry)
	m.persistLocked()
	return entry
}

// AuditLog returns a copy of the audit log
func (m *Manager) AuditLog() []types.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.AuditEntry, len(m.auditLog))
	copy(out, m.auditLog)
	return out
}

// AddRollbackAction appends an action to both the domain's and the
// portfolio's rollback plan
func (m *Manager) AddRollbackAction(domain string, action *types.RollbackAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.domainStates[domain]
	if !ok {
		return fmt.Errorf("unknown domain %q", domain)
	}
	ds.RollbackActions = append(ds.RollbackActions, action)
	m.rollbackPlan = append(m.rollbackPlan, types.PlannedAction{Domain: domain, Action: action})
	ds.LastUpdated = time.Now().UTC()
	return nil
}

// RollbackPlan returns the portfolio-wide rollback plan in recording order
func (m *Manager) RollbackPlan() []types.PlannedAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.PlannedAction, len(m.rollbackPlan))
	copy(out, m.rollbackPlan)
	return out
}

// Summary aggregates the per-domain outcomes
func (m *Manager) Summary() types.RunSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summaryLocked()
}

func (m *Manager) summaryLocked() types.RunSummary {
	s := types.RunSummary{Total: len(m.domainStates)}
	for _, ds := range m.domainStates {
		switch ds.Status {
		case types.StatusCompleted, types.StatusCompletedWithWarnings:
			s.Completed++
		case types.StatusFailed:
			s.Failed++
		}
	}
	return s
}

// Snapshot returns a deep-enough copy of the run suitable for
// persistence and reporting
func (m *Manager) Snapshot() *types.RunSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() *types.RunSnapshot {
	states := make(map[string]*types.DomainState, len(m.domainStates))
	for d, ds := range m.domainStates {
		c := copyDomainState(ds)
		states[d] = &c
	}
	plan := make([]types.PlannedAction, len(m.rollbackPlan))
	copy(plan, m.rollbackPlan)
	auditCopy := make([]types.AuditEntry, len(m.auditLog))
	copy(auditCopy, m.auditLog)

	return &types.RunSnapshot{
		OrchestrationID: m.run.OrchestrationID,
		Environment:     m.run.Environment,
		StartTime:       m.run.StartTime,
		EndTime:         m.run.EndTime,
		Summary:         m.summaryLocked(),
		DomainStates:    states,
		RollbackPlan:    plan,
		AuditLog:        auditCopy,
		Metadata: types.RunMetadata{
			DryRun:             m.run.DryRun,
			PersistenceEnabled: m.persister != nil,
			RollbackEnabled:    m.rollback,
		},
	}
}

// persist hands the current snapshot to the persister, if any
func (m *Manager) persist() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistLocked()
}

func (m *Manager) persistLocked() {
	if m.persister == nil {
		return
	}
	m.persister.SaveAsync(m.snapshotLocked())
}

// copyDomainState makes a copy whose maps and slices are detached from
// the manager-owned original
func copyDomainState(ds *types.DomainState) types.DomainState {
	c := *ds
	if ds.PhaseResults != nil {
		c.PhaseResults = make(map[string]*types.PhaseResult, len(ds.PhaseResults))
		for k, v := range ds.PhaseResults {
			r := *v
			c.PhaseResults[k] = &r
		}
	}
	if ds.RollbackActions != nil {
		c.RollbackActions = make([]*types.RollbackAction, len(ds.RollbackActions))
		copy(c.RollbackActions, ds.RollbackActions)
	}
	return c
}
