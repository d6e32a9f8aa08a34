package deploy

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/drydock-sh/drydock/pkg/events"
	"github.com/drydock-sh/drydock/pkg/log"
	"github.com/drydock-sh/drydock/pkg/types"
)

// Scheduling defaults
const (
	DefaultParallelLimit = 3
	DefaultBatchPause    = 2 * time.Second
	MaxParallelLimit     = 10
)

// BatchResult aggregates one scheduler run
type BatchResult struct {
	Successful []string
	Failed     []types.FailedDomain
	Batches    int
	Cancelled  bool
	Duration   time.Duration
}

// Scheduler executes domain deployments in contiguous batches with
// bounded concurrency. Within a batch, domains run concurrently and a
// failure never cancels batch siblings; across batches execution is
// sequential with a pause between batches.
type Scheduler struct {
	Machine *Machine

	// ParallelLimit is the batch size (1..10); zero takes the default
	ParallelLimit int

	// BatchPause is slept between batches to soften provider rate limits
	BatchPause time.Duration

	// Events receives batch notifications; nil is fine
	Events *events.Broker

	logger zerolog.Logger
}

// NewScheduler creates a scheduler over machine with default limits
func NewScheduler(machine *Machine) *Scheduler {
	return &Scheduler{
		Machine:       machine,
		ParallelLimit: DefaultParallelLimit,
		BatchPause:    DefaultBatchPause,
		logger:        log.WithComponent("scheduler"),
	}
}

// Chunk splits domains into contiguous batches of at most limit
func Chunk(domains []string, limit int) [][]string {
	if limit < 1 {
		limit = DefaultParallelLimit
	}
	var batches [][]string
	for start := 0; start < len(domains); start += limit {
		end := start + limit
		if end > len(domains) {
			end = len(domains)
		}
		batches = append(batches, domains[start:end])
	}
	return batches
}

// Run deploys the domains in input order, batched by ParallelLimit
func (s *Scheduler) Run(ctx context.Context, domains []string) *BatchResult {
	return s.RunBatches(ctx, Chunk(domains, s.ParallelLimit))
}

// RunBatches deploys pre-computed batches (used by the cross-domain
// coordinator, whose batches also respect dependency order). A
// cancellation marks every not-yet-finished domain failed with
// "cancelled" and skips remaining batches.
func (s *Scheduler) RunBatches(ctx context.Context, batches [][]string) *BatchResult {
	start := time.Now()
	result := &BatchResult{Batches: len(batches)}

	pause := s.BatchPause
	if pause < 0 {
		pause = 0
	}

	for i, batch := range batches {
		if ctx.Err() != nil {
			result.Cancelled = true
			s.cancelRemaining(batches[i:], result)
			break
		}

		s.logger.Info().
			Int("batch", i+1).
			Int("of", len(batches)).
			Strs("domains", batch).
			Msg("starting batch")
		s.Events.Publish(&events.Event{
			Type:    events.EventBatchStarted,
			Message: "batch started",
			Metadata: map[string]string{
				"batch":   strconv.Itoa(i + 1),
				"domains": strings.Join(batch, ","),
			},
		})

		s.runBatch(ctx, batch, result)

		s.Events.Publish(&events.Event{Type: events.EventBatchCompleted})

		if i < len(batches)-1 && pause > 0 {
			select {
			case <-time.After(pause):
			case <-ctx.Done():
			}
		}
	}

	result.Duration = time.Since(start)
	return result
}

// runBatch fans the batch out and waits for every domain to settle
func (s *Scheduler) runBatch(ctx context.Context, batch []string, result *BatchResult) {
	type settled struct {
		domain string
		err    error
	}

	var wg sync.WaitGroup
	outcomes := make(chan settled, len(batch))
	for _, domain := range batch {
		domain := domain
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- settled{domain: domain, err: s.Machine.DeployDomain(ctx, domain)}
		}()
	}
	wg.Wait()
	close(outcomes)

	for o := range outcomes {
		if o.err == nil {
			result.Successful = append(result.Successful, o.domain)
			continue
		}
		ds, _ := s.Machine.State.Domain(o.domain)
		result.Failed = append(result.Failed, types.FailedDomain{
			Domain: o.domain,
			Phase:  ds.Phase,
			Error:  ds.Error,
		})
		if types.IsCancelled(o.err) {
			result.Cancelled = true
		}
	}
}

// cancelRemaining marks every domain in the skipped batches failed
func (s *Scheduler) cancelRemaining(batches [][]string, result *BatchResult) {
	for _, batch := range batches {
		for _, domain := range batch {
			if ds, ok := s.Machine.State.Domain(domain); ok && ds.Status.Terminal() {
				continue
			}
			s.Machine.State.MarkFailed(domain, types.ErrCancelled.Error())
			result.Failed = append(result.Failed, types.FailedDomain{
				Domain: domain,
				Error:  types.ErrCancelled.Error(),
			})
		}
	}
}
