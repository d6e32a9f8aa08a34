package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/drydock-sh/drydock/pkg/platform"
	"github.com/drydock-sh/drydock/pkg/types"
)

// Check policy for post-deployment verification
const (
	DefaultAttempts = 3
	DefaultBackoff  = 5 * time.Second
	DefaultTimeout  = 15 * time.Second
)

// Outcome classifies a post-deployment health check
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeWarning Outcome = "warning"
	OutcomeFailed  Outcome = "failed"
)

// Result is the outcome of one health check, after retries
type Result struct {
	Outcome    Outcome       `json:"outcome"`
	URL        string        `json:"url"`
	StatusCode int           `json:"status_code,omitempty"`
	Attempts   int           `json:"attempts"`
	Duration   time.Duration `json:"duration"`
	Detail     string        `json:"detail,omitempty"`
}

// Checker probes worker health endpoints through the platform adapter
type Checker struct {
	Platform platform.Platform

	// Attempts, Backoff and Timeout define the retry policy; zero values
	// take the package defaults
	Attempts int
	Backoff  time.Duration
	Timeout  time.Duration
}

// NewChecker creates a checker with the default policy
func NewChecker(p platform.Platform) *Checker {
	return &Checker{
		Platform: p,
		Attempts: DefaultAttempts,
		Backoff:  DefaultBackoff,
		Timeout:  DefaultTimeout,
	}
}

func (c *Checker) policy() (int, time.Duration, time.Duration) {
	attempts, backoff, timeout := c.Attempts, c.Backoff, c.Timeout
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return attempts, backoff, timeout
}

// Check probes baseURL + "/health". A 200 response passes; any other
// HTTP status is a warning. Network errors are retried with backoff;
// a network error on the final attempt fails the check. All outcomes
// are non-critical to the deployment that requested them.
func (c *Checker) Check(ctx context.Context, baseURL string) Result {
	attempts, backoff, timeout := c.policy()
	checkURL := baseURL + "/health"
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := c.Platform.HealthCheck(ctx, checkURL, timeout)
		if err == nil {
			outcome := OutcomeWarning
			detail := fmt.Sprintf("unexpected status %d", res.StatusCode)
			if res.StatusCode == 200 {
				outcome = OutcomePassed
				detail = ""
			}
			return Result{
				Outcome:    outcome,
				URL:        checkURL,
				StatusCode: res.StatusCode,
				Attempts:   attempt,
				Duration:   time.Since(start),
				Detail:     detail,
			}
		}
		lastErr = err

		if attempt < attempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Result{
					Outcome:  OutcomeFailed,
					URL:      checkURL,
					Attempts: attempt,
					Duration: time.Since(start),
					Detail:   ctx.Err().Error(),
				}
			}
		}
	}

	return Result{
		Outcome:  OutcomeFailed,
		URL:      checkURL,
		Attempts: attempts,
		Duration: time.Since(start),
		Detail:   lastErr.Error(),
	}
}

// AuditEvent maps a result onto its audit event kind
func (r Result) AuditEvent() types.AuditEvent {
	switch r.Outcome {
	case OutcomePassed:
		return types.EventHealthCheckPassed
	case OutcomeWarning:
		return types.EventHealthCheckWarning
	default:
		return types.EventHealthCheckFailed
	}
}

// Sweep fans out one health check per domain with no concurrency bound
// and returns per-domain records sorted by domain. A cancelled context
// aborts in-flight checks; their records report status error.
func (c *Checker) Sweep(ctx context.Context, targets map[string]string) []types.DomainHealth {
	var mu sync.Mutex
	records := make([]types.DomainHealth, 0, len(targets))

	g, ctx := errgroup.WithContext(ctx)
	for domain, url := range targets {
		domain, url := domain, url
		g.Go(func() error {
			record := types.DomainHealth{
				Domain:    domain,
				Timestamp: time.Now().UTC(),
			}
			if url == "" {
				record.Status = types.HealthError
				record.Details = "no URL registered"
			} else {
				res := c.Check(ctx, url)
				switch res.Outcome {
				case OutcomePassed:
					record.Status = types.HealthHealthy
				case OutcomeWarning:
					record.Status = types.HealthUnhealthy
					record.Details = res.Detail
				default:
					record.Status = types.HealthError
					record.Details = res.Detail
				}
			}
			mu.Lock()
			records = append(records, record)
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; Wait is for completion only
	_ = g.Wait()

	sort.Slice(records, func(i, j int) bool { return records[i].Domain < records[j].Domain })
	return records
}
