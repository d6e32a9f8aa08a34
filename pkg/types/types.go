package types

import (
	"time"
)

// Environment identifies a deployment target environment
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvStaging     Environment = "staging"
	EnvDevelopment Environment = "development"
)

// Valid reports whether the environment is one of the known targets
func (e Environment) Valid() bool {
	switch e {
	case EnvProduction, EnvStaging, EnvDevelopment:
		return true
	}
	return false
}

// OrchestrationRun describes a single end-to-end orchestration invocation
type OrchestrationRun struct {
	OrchestrationID string        `json:"orchestration_id"`
	Environment     Environment   `json:"environment"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         *time.Time    `json:"end_time"`
	DryRun          bool          `json:"dry_run"`
	ParallelLimit   int           `json:"parallel_limit"`
	BatchPause      time.Duration `json:"batch_pause"`
	SkipTests       bool          `json:"skip_tests"`
}

// DomainStatus represents the lifecycle state of a single domain deployment
type DomainStatus string

const (
	StatusPending               DomainStatus = "pending"
	StatusDeploying             DomainStatus = "deploying"
	StatusCompleted             DomainStatus = "completed"
	StatusCompletedWithWarnings DomainStatus = "completed_with_warnings"
	StatusFailed                DomainStatus = "failed"
)

// Terminal reports whether the status is final. A terminal domain state
// is never mutated again within a run.
func (s DomainStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithWarnings, StatusFailed:
		return true
	}
	return false
}

// PhaseResult records the outcome of one phase for one domain
type PhaseResult struct {
	Success  bool     `json:"success"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// DomainState tracks everything the orchestrator knows about one domain
// within a run. It is owned exclusively by the state manager; other
// components mutate it only through the state manager's update operations.
type DomainState struct {
	Domain          string                  `json:"domain"`
	DeploymentID    string                  `json:"deployment_id"`
	Phase           string                  `json:"phase"`
	Status          DomainStatus            `json:"status"`
	StartTime       *time.Time              `json:"start_time,omitempty"`
	EndTime         *time.Time              `json:"end_time,omitempty"`
	Error           string                  `json:"error,omitempty"`
	Config          *DomainConfig           `json:"config,omitempty"`
	RollbackActions []*RollbackAction       `json:"rollback_actions,omitempty"`
	PhaseResults    map[string]*PhaseResult `json:"phase_results,omitempty"`
	WorkerURL       string                  `json:"worker_url,omitempty"`
	CustomURL       string                  `json:"custom_url,omitempty"`
	DatabaseName    string                  `json:"database_name,omitempty"`
	DatabaseID      string                  `json:"database_id,omitempty"`
	LastUpdated     time.Time               `json:"last_updated"`
}

// EnvironmentURLs holds the per-environment public URL for a domain
type EnvironmentURLs struct {
	Production  string `json:"production"`
	Staging     string `json:"staging"`
	Development string `json:"development"`
}

// URL returns the URL for the given environment, or "" if unknown
func (u EnvironmentURLs) URL(env Environment) string {
	switch env {
	case EnvProduction:
		return u.Production
	case EnvStaging:
		return u.Staging
	case EnvDevelopment:
		return u.Development
	}
	return ""
}

// SharedResourceRef names a resource a domain shares with other domains
type SharedResourceRef struct {
	Name       string   `json:"name" yaml:"name"`
	SharedWith []string `json:"shared_with,omitempty" yaml:"shared_with,omitempty"`
}

// DomainConfig is the derived, immutable configuration for one domain.
// WorkerName and DatabaseName contain only [a-z0-9-].
type DomainConfig struct {
	Name            string              `json:"name"`
	CleanName       string              `json:"clean_name"`
	WorkerName      string              `json:"worker_name"`
	DatabaseName    string              `json:"database_name"`
	DatabaseBinding string              `json:"database_binding"`
	ZoneID          string              `json:"zone_id,omitempty"`
	Environments    EnvironmentURLs     `json:"environments"`
	Dependencies    []string            `json:"dependencies,omitempty"`
	CORSOrigins     map[string][]string `json:"cors_origins,omitempty"`
	SharedDatabases []SharedResourceRef `json:"shared_databases,omitempty"`
	SharedSecrets   []SharedResourceRef `json:"shared_secrets,omitempty"`
}

/// DependencyEdge is a directed edge in the portfolio dependency graph:
// Dependent must deploy after Prerequisite.
type DependencyEdge struct {
	Dependent    string `json:"dependent"`
	Prerequisite string `json:"prerequisite"`
}

// SharedResourceKind distinguishes the kinds of shared resources the
// cross-domain coordinator prepares.
type SharedResourceKind string

const (
	SharedKindDatabase    SharedResourceKind = "database"
	SharedKindSecretGroup SharedResourceKind = "secret-group"
)

// SharedResource is a named resource referenced by two or more domains
// in the same environment.
type SharedResource struct {
	Kind        SharedResourceKind `json:"kind"`
	Name        string             `json:"name"`
	Environment Environment        `json:"environment"`
	Domains     []string           `json:"domains"`
}

// Key returns the identity used to deduplicate shared resources
func (r SharedResource) Key() string {
	return string(r.Kind) + "/" + r.Name + "/" + string(r.Environment)
}

// AuditEvent enumerates the audit log event kinds
type AuditEvent string

const (
	EventOrchestratorInitialized      AuditEvent = "ORCHESTRATOR_INITIALIZED"
	EventPortfolioInitialized         AuditEvent = "PORTFOLIO_INITIALIZED"
	EventDeploymentStart              AuditEvent = "DEPLOYMENT_START"
	EventDeploymentSuccess            AuditEvent = "DEPLOYMENT_SUCCESS"
	EventDeploymentFailed             AuditEvent = "DEPLOYMENT_FAILED"
	EventValidationWarnings           AuditEvent = "VALIDATION_WARNINGS"
	EventDatabaseCreated              AuditEvent = "DATABASE_CREATED"
	EventDatabaseFound                AuditEvent = "DATABASE_FOUND"
	EventSecretsGenerated             AuditEvent = "SECRETS_GENERATED"
	EventHealthCheckPassed            AuditEvent = "HEALTH_CHECK_PASSED"
	EventHealthCheckWarning           AuditEvent = "HEALTH_CHECK_WARNING"
	EventHealthCheckFailed            AuditEvent = "HEALTH_CHECK_FAILED"
	EventPortfolioComplete            AuditEvent = "PORTFOLIO_COMPLETE"
	EventPortfolioFailed              AuditEvent = "PORTFOLIO_FAILED"
	EventCrossDomainRollbackStart     AuditEvent = "CROSS_DOMAIN_ROLLBACK_START"
	EventCrossDomainRollbackCompleted AuditEvent = "CROSS_DOMAIN_ROLLBACK_COMPLETED"
)

// AuditDomainAll is the domain field used for portfolio-wide audit entries
const AuditDomainAll = "ALL"

// AuditEntry is one append-only record in the run's ordered event log.
// SequenceNumber values are contiguous from 1 within a run.
type AuditEntry struct {
	Timestamp       time.Time              `json:"timestamp"`
	OrchestrationID string                 `json:"orchestration_id"`
	SequenceNumber  int64                  `json:"sequence_number"`
	Event           AuditEvent             `json:"event"`
	Domain          string                 `json:"domain"`
	Details         map[string]interface{} `json:"details,omitempty"`
}

// RollbackActionType enumerates reversible action kinds
type RollbackActionType string

const (
	RollbackRestoreFile    RollbackActionType = "restore-file"
	RollbackDeleteSecret   RollbackActionType = "delete-secret"
	RollbackDeleteDatabase RollbackActionType = "delete-database"
	RollbackDeleteWorker   RollbackActionType = "delete-worker"
	RollbackCustomCommand  RollbackActionType = "custom-command"
)

// Rollback action priorities. Higher priorities run first, so the worker
// is deleted before its database and file restores run last.
const (
	PriorityRestoreFile    = 10
	PriorityDeleteDatabase = 20
	PriorityDeleteSecret   = 30
	PriorityDeleteWorker   = 40
)

// RollbackAction is a single reversible operation recorded during
// deployment. Critical defaults to true; ContinueOnFailure to false.
type RollbackAction struct {
	ID                string             `json:"id"`
	Type              RollbackActionType `json:"type"`
	Priority          int                `json:"priority"`
	Description       string             `json:"description"`
	Critical          bool               `json:"critical"`
	ContinueOnFailure bool               `json:"continue_on_failure"`

	// Type-specific fields
	WorkerName   string      `json:"worker_name,omitempty"`
	DatabaseName string      `json:"database_name,omitempty"`
	SecretKey    string      `json:"secret_key,omitempty"`
	Environment  Environment `json:"environment,omitempty"`
	OriginalPath string      `json:"original_path,omitempty"`
	BackupPath   string      `json:"backup_path,omitempty"`
	Command      []string    `json:"command,omitempty"`
}

// PlannedAction associates a rollback action with the domain it reverses
type PlannedAction struct {
	Domain string          `json:"domain"`
	Action *RollbackAction `json:"action"`
}

// BackupFile records one configuration file copied aside before a run
type BackupFile struct {
	OriginalPath string    `json:"original_path"`
	BackupPath   string    `json:"backup_path"`
	Timestamp    time.Time `json:"timestamp"`
}

// BackupManifest is written once per run and referenced by restore-file
// rollback actions. Platform and database state are textual listings;
// secret values are never captured.
type BackupManifest struct {
	RunID         string            `json:"run_id"`
	CreatedAt     time.Time         `json:"created_at"`
	Files         []BackupFile      `json:"files"`
	PlatformState map[string]string `json:"platform_state"`
	DatabaseState map[string]string `json:"database_state"`
}

// RunSummary aggregates per-domain outcomes for reporting and persistence
type RunSummary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// RunSnapshot is the serializable view of an orchestration run. It is the
// schema persisted to deployments/<orchestration_id>.json.
type RunSnapshot struct {
	OrchestrationID string                  `json:"orchestration_id"`
	Environment     Environment             `json:"environment"`
	StartTime       time.Time               `json:"start_time"`
	EndTime         *time.Time              `json:"end_time"`
	Summary         RunSummary              `json:"summary"`
	DomainStates    map[string]*DomainState `json:"domain_states"`
	RollbackPlan    []PlannedAction         `json:"rollback_plan"`
	AuditLog        []AuditEntry            `json:"audit_log"`
	Metadata        RunMetadata             `json:"metadata"`
}

// RunMetadata carries run-level flags into the persisted snapshot
type RunMetadata struct {
	DryRun             bool `json:"dry_run"`
	PersistenceEnabled bool `json:"persistence_enabled"`
	RollbackEnabled    bool `json:"rollback_enabled"`
}

// FailedDomain describes one failed deployment in the final report
type FailedDomain struct {
	Domain string `json:"domain"`
	Phase  string `json:"phase"`
	Error  string `json:"error"`
}

// Report is the user-visible result of a portfolio deployment
type Report struct {
	Successful  []string       `json:"successful"`
	Failed      []FailedDomain `json:"failed"`
	RolledBack  []string       `json:"rolled_back"`
	Duration    time.Duration  `json:"duration"`
	Summary     RunSummary     `json:"summary"`
	SuccessRate float64        `json:"success_rate"`
}

// HealthState classifies the outcome of one domain health probe
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
	HealthError     HealthState = "error"
)

// DomainHealth is one record from a portfolio health sweep
type DomainHealth struct {
	Domain    string      `json:"domain"`
	Status    HealthState `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Details   string      `json:"details,omitempty"`
}
