/*
Package state is the single owner of orchestration run state.

The Manager holds every DomainState, the ordered audit log, and the
portfolio rollback plan behind one mutex. Other components never mutate
state directly; they go through the manager's update operations, which
enforce the transition rules: status moves forward only, a terminal
status (completed, completed_with_warnings, failed) is never left, and
end_time is stamped exactly when a domain becomes terminal. Audit
entries carry sequence numbers contiguous from 1 within a run.

In-memory state is authoritative for the duration of a run. Persistence
is layered on top, best-effort:

  - Persister writes JSON snapshots to deployments/<orchestration_id>.json
    asynchronously with a small retry; failures are logged as warnings
    and never abort a deployment.
  - HistoryStore keeps finished snapshots in a local BoltDB file so past
    runs can be listed and inspected later.

Identifier formats:

	orchestration-<ISO8601, ':' '.' → '-'>-<12 hex>
	deploy-<domain>-<ISO8601, ':' '.' → '-'>-<8 hex>

Random portions come from crypto/rand.
*/
package state
