package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/drydock-sh/drydock/pkg/deploy"
	"github.com/drydock-sh/drydock/pkg/events"
	"github.com/drydock-sh/drydock/pkg/health"
	"github.com/drydock-sh/drydock/pkg/log"
	"github.com/drydock-sh/drydock/pkg/platform"
	"github.com/drydock-sh/drydock/pkg/rollback"
	"github.com/drydock-sh/drydock/pkg/secrets"
	"github.com/drydock-sh/drydock/pkg/state"
	"github.com/drydock-sh/drydock/pkg/types"
)

// Options configures portfolio-level behavior
type Options struct {
	// EnableSharedResources runs the shared-resource preparation phase
	// before any per-domain deployment
	EnableSharedResources bool

	// EnableAutoRollback rolls successful domains back, in reverse
	// completion order, when any domain fails
	EnableAutoRollback bool

	// SkipVerification skips the post-deployment verification sweep
	SkipVerification bool

	// IntegrationTest, when set, runs per successful domain during
	// verification; an error demotes the domain to failed in the report
	IntegrationTest func(ctx context.Context, domain string) error
}

// Coordinator drives a portfolio deployment end to end: dependency
// resolution, shared-resource preparation, batched deployment,
// verification, and reverse-order rollback on failure.
//
// Platform, Health, Secrets, Rollback and Events are optional
// collaborators; a nil collaborator disables the corresponding step.
type Coordinator struct {
	State     *state.Manager
	Scheduler *deploy.Scheduler
	Platform  platform.Platform
	Health    *health.Checker
	Secrets   *secrets.Manager
	Rollback  *rollback.Manager
	Events    *events.Broker
	Options   Options

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	prepared map[string]bool

	logger zerolog.Logger
}

// New creates a coordinator over the scheduler's state manager
func New(sched *deploy.Scheduler, opts Options) *Coordinator {
	return &Coordinator{
		State:     sched.Machine.State,
		Scheduler: sched,
		Options:   opts,
		locks:     make(map[string]*sync.Mutex),
		prepared:  make(map[string]bool),
		logger:    log.WithComponent("coordinator"),
	}
}

// Deploy runs the coordinated portfolio deployment. A cyclic dependency
// graph is fatal and refuses to start; after that, per-domain failures
// are isolated and collected into the report. The returned error is
// non-nil only for the fatal cases (cycle, preparation failure,
// cancellation); domain failures alone leave it nil.
func (c *Coordinator) Deploy(ctx context.Context, configs []*types.DomainConfig) (*types.Report, error) {
	start := time.Now()
	run := c.State.Run()

	graph := BuildGraph(configs)
	if err := graph.CheckAcyclic(); err != nil {
		c.State.AppendAudit(types.EventPortfolioFailed, "", map[string]interface{}{
			"error": err.Error(),
		})
		c.State.FinishRun()
		return nil, err
	}

	limit := c.Scheduler.ParallelLimit
	if limit < 1 {
		limit = deploy.DefaultParallelLimit
	}
	batches, err := graph.Batches(limit)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(configs))
	byName := make(map[string]*types.DomainConfig, len(configs))
	for i, cfg := range configs {
		names[i] = cfg.Name
		byName[cfg.Name] = cfg
	}
	c.State.InitDomainStates(names, byName)
	c.State.AppendAudit(types.EventPortfolioInitialized, "", map[string]interface{}{
		"domains": len(names),
		"batches": len(batches),
	})
	c.Events.Publish(&events.Event{Type: events.EventRunStarted, Message: "portfolio deployment started"})
	c.logger.Info().
		Int("domains", len(names)).
		Int("batches", len(batches)).
		Str("environment", string(run.Environment)).
		Msg("portfolio deployment starting")

	if warnings := ValidateCORS(configs, run.Environment); len(warnings) > 0 {
		c.State.AppendAudit(types.EventValidationWarnings, "", map[string]interface{}{
			"warnings": warnings,
		})
		for _, w := range warnings {
			c.logger.Warn().Msg(w)
		}
	}

	if c.Options.EnableSharedResources && !run.DryRun {
		if err := c.prepareSharedResources(ctx, configs, run.Environment); err != nil {
			c.State.AppendAudit(types.EventPortfolioFailed, "", map[string]interface{}{
				"error": err.Error(),
			})
			c.State.FinishRun()
			return nil, fmt.Errorf("shared resource preparation: %w", err)
		}
	}

	result := c.Scheduler.RunBatches(ctx, batches)

	report := &types.Report{
		Successful: result.Successful,
		Failed:     result.Failed,
	}

	if !c.Options.SkipVerification && !run.DryRun && !result.Cancelled {
		c.verify(ctx, report)
	}

	if c.Options.EnableAutoRollback && len(report.Failed) > 0 {
		report.RolledBack = c.rollbackSuccessful(ctx, report.Successful, run.DryRun)
	}

	report.Duration = time.Since(start)
	report.Summary = types.RunSummary{
		Total:     len(configs),
		Completed: len(report.Successful),
		Failed:    len(report.Failed),
	}
	if report.Summary.Total > 0 {
		report.SuccessRate = float64(report.Summary.Completed) / float64(report.Summary.Total) * 100
	}

	if len(report.Failed) == 0 {
		c.State.AppendAudit(types.EventPortfolioComplete, "", map[string]interface{}{
			"successful": report.Summary.Completed,
		})
		c.Events.Publish(&events.Event{Type: events.EventRunCompleted})
	} else {
		c.State.AppendAudit(types.EventPortfolioFailed, "", map[string]interface{}{
			"successful": report.Summary.Completed,
			"failed":     report.Summary.Failed,
		})
		c.Events.Publish(&events.Event{Type: events.EventRunFailed})
	}
	c.State.FinishRun()

	if result.Cancelled {
		return report, types.ErrCancelled
	}
	return report, nil
}

// prepareSharedResources fans out one preparation per shared resource.
// Any failure aborts the portfolio before deployment starts.
func (c *Coordinator) prepareSharedResources(ctx context.Context, configs []*types.DomainConfig, env types.Environment) error {
	resources := SharedResources(configs, env)
	if len(resources) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, res := range resources {
		res := res
		g.Go(func() error { return c.prepareResource(ctx, res) })
	}
	return g.Wait()
}

// prepareResource prepares one shared resource at most once per run. The
// per-resource lock serializes concurrent preparation attempts.
func (c *Coordinator) prepareResource(ctx context.Context, res types.SharedResource) error {
	lock := c.resourceLock(res.Key())
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	done := c.prepared[res.Key()]
	c.mu.Unlock()
	if done {
		return nil
	}

	switch res.Kind {
	case types.SharedKindDatabase:
		if c.Platform == nil {
			return fmt.Errorf("shared database %s: no platform adapter configured", res.Name)
		}
		exists, err := c.Platform.DatabaseExists(ctx, res.Name)
		if err != nil {
			return fmt.Errorf("shared database %s: %w", res.Name, err)
		}
		if exists {
			c.State.AppendAudit(types.EventDatabaseFound, "", map[string]interface{}{
				"database":  res.Name,
				"shared_by": res.Domains,
			})
		} else {
			if _, err := c.Platform.CreateDatabase(ctx, res.Name); err != nil {
				return fmt.Errorf("shared database %s: %w", res.Name, err)
			}
			c.State.AppendAudit(types.EventDatabaseCreated, "", map[string]interface{}{
				"database":  res.Name,
				"shared_by": res.Domains,
			})
		}
	case types.SharedKindSecretGroup:
		if c.Secrets != nil {
			values, err := c.Secrets.Generate(res.Name)
			if err != nil {
				return fmt.Errorf("shared secret group %s: %w", res.Name, err)
			}
			c.State.AppendAudit(types.EventSecretsGenerated, "", map[string]interface{}{
				"group": res.Name,
				"count": len(values),
				"names": secrets.Names(values),
			})
		}
	}

	c.mu.Lock()
	c.prepared[res.Key()] = true
	c.mu.Unlock()
	c.logger.Info().
		Str("resource", res.Key()).
		Strs("domains", res.Domains).
		Msg("shared resource prepared")
	return nil
}

func (c *Coordinator) resourceLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// SharedResources identifies databases and secret groups referenced by
// two or more portfolio domains in the given environment. Resources are
// returned in first-declaration order.
func SharedResources(configs []*types.DomainConfig, env types.Environment) []types.SharedResource {
	known := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		known[cfg.Name] = true
	}

	merged := make(map[string]*types.SharedResource)
	var order []string

	collect := func(declarer string, kind types.SharedResourceKind, refs []types.SharedResourceRef) {
		for _, ref := range refs {
			res := types.SharedResource{Kind: kind, Name: ref.Name, Environment: env}
			key := res.Key()
			existing, ok := merged[key]
			if !ok {
				r := res
				merged[key] = &r
				existing = merged[key]
				order = append(order, key)
			}
			addDomain(existing, declarer)
			for _, peer := range ref.SharedWith {
				if known[peer] {
					addDomain(existing, peer)
				}
			}
		}
	}

	for _, cfg := range configs {
		collect(cfg.Name, types.SharedKindDatabase, cfg.SharedDatabases)
		collect(cfg.Name, types.SharedKindSecretGroup, cfg.SharedSecrets)
	}

	var out []types.SharedResource
	for _, key := range order {
		res := merged[key]
		if len(res.Domains) >= 2 {
			out = append(out, *res)
		}
	}
	return out
}

func addDomain(res *types.SharedResource, domain string) {
	for _, d := range res.Domains {
		if d == domain {
			return
		}
	}
	res.Domains = append(res.Domains, domain)
}

// verify health-checks every successful domain and runs the optional
// integration test. A failing verification moves the domain into the
// report's failed set; its terminal domain status is not rewritten,
// since terminal statuses never revert.
func (c *Coordinator) verify(ctx context.Context, report *types.Report) {
	if c.Health == nil || len(report.Successful) == 0 {
		return
	}

	targets := make(map[string]string, len(report.Successful))
	for _, domain := range report.Successful {
		ds, ok := c.State.Domain(domain)
		if !ok {
			continue
		}
		url := ds.WorkerURL
		if url == "" {
			url = ds.CustomURL
		}
		targets[domain] = url
	}

	demoted := make(map[string]string)
	for _, rec := range c.Health.Sweep(ctx, targets) {
		if rec.Status == types.HealthError {
			demoted[rec.Domain] = rec.Details
		}
	}

	if c.Options.IntegrationTest != nil {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for _, domain := range report.Successful {
			if _, gone := demoted[domain]; gone {
				continue
			}
			domain := domain
			g.Go(func() error {
				if err := c.Options.IntegrationTest(gctx, domain); err != nil {
					mu.Lock()
					demoted[domain] = err.Error()
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	if len(demoted) == 0 {
		return
	}
	var kept []string
	for _, domain := range report.Successful {
		detail, gone := demoted[domain]
		if !gone {
			kept = append(kept, domain)
			continue
		}
		report.Failed = append(report.Failed, types.FailedDomain{
			Domain: domain,
			Phase:  "verification",
			Error:  detail,
		})
		c.logger.Warn().Str("domain", domain).Str("detail", detail).Msg("verification failed")
	}
	report.Successful = kept
}

// rollbackSuccessful walks the successful deployments in reverse
// completion order, executing each domain's recorded plan. Individual
// rollback failures are logged and do not stop the sweep.
func (c *Coordinator) rollbackSuccessful(ctx context.Context, successful []string, dryRun bool) []string {
	if c.Rollback == nil || len(successful) == 0 {
		return nil
	}

	c.State.AppendAudit(types.EventCrossDomainRollbackStart, "", map[string]interface{}{
		"domains": len(successful),
	})
	c.Events.Publish(&events.Event{Type: events.EventRollbackStarted})

	var rolledBack []string
	for i := len(successful) - 1; i >= 0; i-- {
		domain := successful[i]
		ds, ok := c.State.Domain(domain)
		if !ok {
			continue
		}
		plan := make([]types.PlannedAction, 0, len(ds.RollbackActions))
		for _, action := range ds.RollbackActions {
			plan = append(plan, types.PlannedAction{Domain: domain, Action: action})
		}
		if _, err := c.Rollback.Execute(ctx, plan, dryRun); err != nil {
			c.logger.Error().Err(err).Str("domain", domain).Msg("domain rollback incomplete")
			continue
		}
		rolledBack = append(rolledBack, domain)
	}

	c.State.AppendAudit(types.EventCrossDomainRollbackCompleted, "", map[string]interface{}{
		"rolled_back_domains": len(rolledBack),
	})
	c.Events.Publish(&events.Event{Type: events.EventRollbackFinished})
	return rolledBack
}

// MonitorPortfolioHealth fans out one health probe per tracked domain
// and returns the per-domain records sorted by domain
func (c *Coordinator) MonitorPortfolioHealth(ctx context.Context) []types.DomainHealth {
	targets := make(map[string]string)
	for _, domain := range c.State.Domains() {
		ds, _ := c.State.Domain(domain)
		url := ds.WorkerURL
		if url == "" {
			url = ds.CustomURL
		}
		targets[domain] = url
	}
	return c.Health.Sweep(ctx, targets)
}
