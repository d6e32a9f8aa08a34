/*
Package secrets generates and distributes per-domain secrets.

Values come from crypto/rand (32 bytes, unpadded base64url) and live in
process memory for the duration of a run; a repeated request for the
same scope returns the previously generated values. Nothing in this
package logs a secret value: log and audit output carry names and
counts only, and rendered values are confined to the two artifacts
written under the run's backup directory (.env and put-secrets.sh, mode
0600/0700).

Distribution uploads through the Platform interface and records one
delete-secret rollback action per uploaded secret.
*/
package secrets
