/*
Package types defines the core data structures used throughout drydock.

This package contains the fundamental types of the orchestrator's domain
model: orchestration runs, per-domain deployment state, derived domain
configuration, the dependency graph, the append-only audit log, rollback
actions, and backup manifests. These types are used by all other packages
for state management, scheduling, and reporting.

# Core Types

Run lifecycle:
  - OrchestrationRun: one end-to-end invocation with its flags
  - RunSnapshot: the serializable view persisted per run
  - Report: the user-visible portfolio result

Domain lifecycle:
  - DomainConfig: immutable, derived per-domain configuration
  - DomainState: mutable per-domain record, owned by the state manager
  - DomainStatus: pending → deploying → terminal (completed,
    completed_with_warnings, failed); transitions are monotonic
  - PhaseResult: outcome of one phase, including warnings

Portfolio coordination:
  - DependencyEdge: directed prerequisite relation between domains
  - SharedResource: a database or secret group referenced by >=2 domains
  - DomainHealth: one record from a portfolio health sweep

Audit and rollback:
  - AuditEntry: one ordered record in the run event log
  - RollbackAction: a reversible operation with priority ordering
  - BackupManifest: pre-run configuration and platform state capture

All types are JSON-serializable with stable snake_case keys, matching the
on-disk layout under deployments/ and backups/.
*/
package types
