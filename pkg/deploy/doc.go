/*
Package deploy drives per-domain deployments and schedules them across
a portfolio.

# Phase machine

Every domain moves through a fixed sequence:

	validation      (critical)
	initialization  (critical)
	database        (non-critical)
	secrets         (non-critical)
	deployment      (critical)
	post-validation (non-critical, skipped under skip_tests)

A critical phase failure marks the domain failed and stops its machine;
a non-critical failure is recorded on the phase result and execution
continues, ending in completed_with_warnings. Under dry_run every
handler is bypassed with a 100ms simulated success and nothing touches
the platform or the rollback plan. Cancellation marks the domain failed
with error "cancelled".

# Scheduler

Domains execute in contiguous batches of parallel_limit. Within a batch
domains run concurrently and failures are isolated; between batches the
scheduler sleeps batch_pause. Input order is preserved across batches,
which is what lets the cross-domain coordinator guarantee prerequisites
land in earlier batches.

The standard phase handlers in this package wire the resolver, platform
adapter, configuration manager, secret manager, and health checker
together; callers with different needs can supply their own []Phase.
*/
package deploy
