package platform

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassifiers(t *testing.T) {
	auth := &AuthError{Msg: "bad token"}
	notFound := &NotFoundError{Resource: "database", Name: "shop-db"}
	denied := &PermissionDeniedError{Operation: "PUT secret"}
	limited := &RateLimitedError{RetryAfter: "30"}

	assert.True(t, IsAuth(auth))
	assert.True(t, IsNotFound(notFound))
	assert.True(t, IsPermissionDenied(denied))
	assert.True(t, IsRateLimited(limited))

	// Classification survives wrapping
	wrapped := fmt.Errorf("deploy worker: %w", notFound)
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsAuth(wrapped))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(&AuthError{Msg: "expired"}))
	assert.False(t, IsRetryable(&NotFoundError{Resource: "worker", Name: "x"}))
	assert.False(t, IsRetryable(&PermissionDeniedError{Operation: "delete"}))

	assert.True(t, IsRetryable(&RateLimitedError{}))
	assert.True(t, IsRetryable(&TimeoutError{Operation: "deploy"}))
	assert.True(t, IsRetryable(&TransportError{Op: "GET", Err: errors.New("connection reset")}))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(fmt.Errorf("check database: %w", &RateLimitedError{})))
}

func TestTransportErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &TransportError{Op: "POST /workers", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "POST /workers")
}
