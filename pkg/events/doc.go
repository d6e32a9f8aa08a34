// Package events provides an in-process broker for deployment lifecycle
// events. Subscribers receive run, batch, domain, phase, and rollback
// notifications over buffered channels; a slow subscriber drops events
// rather than blocking the deployment. The broker is ephemeral — the
// audit log in pkg/state is the durable record.
package events
