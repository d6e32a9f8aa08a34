package types

import (
	"context"
	"errors"
)

// ErrCancelled is returned by phase handlers that observe caller
// cancellation at a suspension point. The coordinator maps it to
// status=failed with error "cancelled" and records no new rollback
// actions for the in-flight phase.
var ErrCancelled = errors.New("cancelled")

// IsCancelled reports whether err represents caller cancellation,
// either the typed sentinel or a context cancellation bubbled up
// from an I/O call.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
