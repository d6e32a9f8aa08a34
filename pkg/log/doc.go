/*
Package log provides structured logging for drydock using zerolog.

The package exposes a global Logger configured once at startup via Init,
plus helpers that derive child loggers carrying standard fields
(component, domain, orchestration_id, phase). Console output is the
default for interactive use; JSON output is available for machine
consumption.

Secret values must never be passed to any logging call; callers log
secret names and counts only.

# Usage

	log.Init(log.Config{Level: log.InfoLevel})

	logger := log.WithComponent("coordinator")
	logger.Info().Str("domain", "api.example.com").Msg("deployment started")
*/
package log
