/*
Package platform provides the adapter layer between the orchestrator core
and the managed serverless platform.

The core consumes the narrow Platform interface; two implementations are
provided:

  - Client: authenticated HTTP API client. Calls run behind a circuit
    breaker (sony/gobreaker) and the shared retry policy. A
    PermissionDenied response triggers at most one OAuth-fallback retry
    with an explicit warning that the effective identity changed.
  - ShellClient: wrapper around the provider CLI (wrangler), with a
    120-second default timeout per command. Secret values are piped via
    stdin so they never appear in argument lists.

Errors returned by both implementations belong to a small taxonomy
(AuthError, NotFoundError, PermissionDeniedError, RateLimitedError,
TimeoutError, TransportError); IsRetryable classifies which of them a
retry may resolve.

Fake is an in-memory implementation for tests. It records calls and
mutations separately so dry-run purity (no mutating platform call during
a dry run) can be asserted.

# Retry policy

Adapter calls retry up to 3 times with a 2-second delay (jittered for
rate-limited responses). Timeouts:

	Platform command execution:  120s per command (overridable)
	Health check HTTP:           15s per attempt
*/
package platform
