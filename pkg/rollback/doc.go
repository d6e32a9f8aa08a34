/*
Package rollback records and executes reversible actions for a run.

Execution order is priority descending; among equal priorities the most
recently recorded action runs first. With the standard priorities this
deletes workers (40) before secrets (30) before databases (20), and
restores backed-up files (10) last.

Each action retries up to 3 times with a 2-second backoff; the final
error becomes the action error. A failed critical action without
continue_on_failure stops the plan and marks it partial; everything
after it is reported as skipped. Dry-run mode logs each action and
marks it successful without touching the platform.

Every execution writes a JSON report (rollback-<uuid>.json) into the
backup directory. The backup subsystem captures configuration files and
textual platform listings before a run and emits the matching
restore-file actions; secret values are never captured.
*/
package rollback
