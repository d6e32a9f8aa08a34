package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// AuthError indicates missing or invalid platform credentials
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Msg)
}

// NotFoundError indicates a resource was absent where one was expected
type NotFoundError struct {
	Resource string
	Name     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Name)
}

// PermissionDeniedError indicates the token lacks a required scope
type PermissionDeniedError struct {
	Operation string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Operation)
}

// RateLimitedError indicates the platform throttled the request
type RateLimitedError struct {
	RetryAfter string
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter != "" {
		return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
	}
	return "rate limited"
}

// TimeoutError indicates a command or request exceeded its deadline
type TimeoutError struct {
	Operation string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s", e.Operation)
}

// TransportError wraps a network or remote-side failure
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var t *NotFoundError
	return errors.As(err, &t)
}

// IsAuth reports whether err is an AuthError
func IsAuth(err error) bool {
	var t *AuthError
	return errors.As(err, &t)
}

// IsPermissionDenied reports whether err is a PermissionDeniedError
func IsPermissionDenied(err error) bool {
	var t *PermissionDeniedError
	return errors.As(err, &t)
}

// IsRateLimited reports whether err is a RateLimitedError
func IsRateLimited(err error) bool {
	var t *RateLimitedError
	return errors.As(err, &t)
}

// IsRetryable reports whether a retry may succeed: rate limiting,
// timeouts, and transport failures are transient; auth, not-found, and
// permission errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var rl *RateLimitedError
	var to *TimeoutError
	var tr *TransportError
	if errors.As(err, &rl) || errors.As(err, &to) || errors.As(err, &tr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
