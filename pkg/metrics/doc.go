/*
Package metrics provides Prometheus metrics and process health endpoints
for the orchestrator.

Metrics are defined as package-level collectors and registered with the
default registry at init, following the usual client_golang pattern.
They cover the deployment lifecycle: deployments started and finished by
terminal status, per-phase execution counts and duration histograms,
batch and rollback counters, and run outcomes.

Two wiring points feed the metrics:

  - ObservePhase matches the deploy package's phase hook signature and
    records phase counts and durations:

	machine.OnPhase = metrics.ObservePhase

  - Collector subscribes to the events broker and translates lifecycle
    events (domain started/completed/failed, batch started, rollback
    started, run finished) into counters:

	collector := metrics.NewCollector(broker)
	collector.Start()
	defer collector.Stop()

The package also carries a small component-health registry with
/health, /ready and /live HTTP handlers. Components report their status
with RegisterComponent; readiness requires every critical component
(platform, state, config) to be registered and healthy. The handlers
are mounted next to the Prometheus Handler on the metrics listener.
*/
package metrics
