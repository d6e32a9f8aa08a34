/*
Package health verifies deployed workers over HTTP.

A post-deployment check probes worker_url + "/health" with up to 3
attempts, 5 seconds between attempts, and a 15-second timeout per
attempt. A 200 response passes, any other HTTP status is a warning, and
a network error on the final attempt fails the check. Health outcomes
never fail the deployment that requested them; they surface in the
report and the audit log.

Sweep runs the same check across a whole portfolio, one unbounded
goroutine per domain, and classifies each into healthy, unhealthy, or
error.
*/
package health
