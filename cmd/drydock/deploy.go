package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/drydock-sh/drydock/pkg/config"
	"github.com/drydock-sh/drydock/pkg/coordinator"
	"github.com/drydock-sh/drydock/pkg/deploy"
	"github.com/drydock-sh/drydock/pkg/events"
	"github.com/drydock-sh/drydock/pkg/health"
	"github.com/drydock-sh/drydock/pkg/log"
	"github.com/drydock-sh/drydock/pkg/metrics"
	"github.com/drydock-sh/drydock/pkg/platform"
	"github.com/drydock-sh/drydock/pkg/resolver"
	"github.com/drydock-sh/drydock/pkg/rollback"
	"github.com/drydock-sh/drydock/pkg/secrets"
	"github.com/drydock-sh/drydock/pkg/state"
	"github.com/drydock-sh/drydock/pkg/types"
)

var (
	deployEnvironment     string
	deployPortfolioPath   string
	deployParallel        int
	deployBatchPause      time.Duration
	deployDryRun          bool
	deploySkipTests       bool
	deployNoRollback      bool
	deployNoShared        bool
	deployNoVerify        bool
	deployDiscover        bool
	deployUseAPI          bool
	deployWorkingDir      string
	deployDataDir         string
	deployMetricsAddr     string
)

var deployCmd = &cobra.Command{
	Use:   "deploy [domains...]",
	Short: "Deploy a portfolio of domains",
	Long: `Deploy the given domains (or the portfolio file's domains) to the
target environment. Domains are deployed in dependency order, batched
by the parallel limit, with shared resources prepared once up front.

On failure, successfully deployed domains are rolled back in reverse
completion order unless --no-rollback is set.`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringVarP(&deployEnvironment, "environment", "e", "", "target environment (production|staging|development)")
	deployCmd.Flags().StringVarP(&deployPortfolioPath, "portfolio", "p", "", "portfolio YAML file")
	deployCmd.Flags().IntVar(&deployParallel, "parallel", 0, "batch size (1-10, default from portfolio or 3)")
	deployCmd.Flags().DurationVar(&deployBatchPause, "batch-pause", 0, "pause between batches (default from portfolio or 2s)")
	deployCmd.Flags().BoolVar(&deployDryRun, "dry-run", false, "simulate every phase without touching the platform")
	deployCmd.Flags().BoolVar(&deploySkipTests, "skip-tests", false, "skip the post-validation phase")
	deployCmd.Flags().BoolVar(&deployNoRollback, "no-rollback", false, "disable automatic rollback on failure")
	deployCmd.Flags().BoolVar(&deployNoShared, "no-shared", false, "disable shared-resource preparation")
	deployCmd.Flags().BoolVar(&deployNoVerify, "no-verify", false, "skip the post-deployment verification sweep")
	deployCmd.Flags().BoolVar(&deployDiscover, "discover", false, "also discover domains from deployed workers")
	deployCmd.Flags().BoolVar(&deployUseAPI, "api", false, "use the platform HTTP API instead of the local CLI")
	deployCmd.Flags().StringVar(&deployWorkingDir, "working-dir", ".", "project directory holding the platform config")
	deployCmd.Flags().StringVar(&deployDataDir, "data-dir", ".drydock", "directory for run state, history and backups")
	deployCmd.Flags().StringVar(&deployMetricsAddr, "metrics-addr", "", "address for the metrics/health listener (e.g. :9090)")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	portfolio, err := loadPortfolio(deployPortfolioPath)
	if err != nil {
		return err
	}

	env, err := targetEnvironment(deployEnvironment, portfolio)
	if err != nil {
		return err
	}

	res := newResolver(portfolio)
	pf := newPlatform(deployUseAPI, deployWorkingDir)

	sources := []coordinator.Source{coordinator.StaticSource(args...)}
	if portfolio != nil {
		sources = append(sources, coordinator.PortfolioSource(portfolio))
	}
	if deployDiscover {
		sources = append(sources, coordinator.PlatformSource(pf))
	}
	domains, warnings := coordinator.Discover(ctx, sources...)
	for _, w := range warnings {
		log.Warn(w)
	}
	if len(domains) == 0 {
		return &usageError{msg: "no domains to deploy; pass domains as arguments or use --portfolio"}
	}

	configs, err := resolveConfigs(res, portfolio, domains)
	if err != nil {
		return &validationError{err: err}
	}

	parallel, pause := scheduling(portfolio)

	persister := state.NewPersister(filepath.Join(deployDataDir, "deployments"))
	st := state.NewManager(env, state.Options{
		DryRun:          deployDryRun,
		ParallelLimit:   parallel,
		BatchPause:      pause,
		SkipTests:       deploySkipTests,
		Persister:       persister,
		RollbackEnabled: !deployNoRollback,
	})
	runID := st.OrchestrationID()

	if deployPortfolioPath != "" {
		archivePortfolio(deployPortfolioPath, runID)
	}

	history, err := state.OpenHistory(deployDataDir)
	if err != nil {
		log.Warn(fmt.Sprintf("run history unavailable: %v", err))
	} else {
		defer history.Close()
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	collector := metrics.NewCollector(broker)
	collector.Start()
	defer collector.Stop()

	stopProgress := renderProgress(broker)
	defer stopProgress()

	if deployMetricsAddr != "" {
		startMetricsServer(deployMetricsAddr)
	}
	metrics.SetVersion(Version)
	metrics.RegisterComponent("platform", true, "")
	metrics.RegisterComponent("state", true, "")
	metrics.RegisterComponent("config", true, "")

	deps := &deploy.Deps{
		Platform:    pf,
		Resolver:    res,
		Config:      config.NewManager(deployWorkingDir),
		Secrets:     secrets.NewManager(filepath.Join(deployDataDir, "backups", "secrets", runID)),
		Health:      health.NewChecker(pf),
		State:       st,
		Environment: env,
		AccountID:   credentialsFromEnv().AccountID,
		WorkingDir:  deployWorkingDir,
		Backup: &rollback.Backup{
			Platform:   pf,
			WorkingDir: deployWorkingDir,
			BaseDir:    filepath.Join(deployDataDir, "backups"),
			RunID:      runID,
		},
		BackupOptions: rollback.BackupOptions{IncludePlatform: !deployDryRun},
	}

	machine := deploy.NewMachine(st, deploy.StandardPhases(deps))
	machine.DryRun = deployDryRun
	machine.SkipTests = deploySkipTests
	machine.Events = broker
	machine.OnPhase = metrics.ObservePhase

	sched := deploy.NewScheduler(machine)
	sched.ParallelLimit = parallel
	sched.BatchPause = pause
	sched.Events = broker

	coord := coordinator.New(sched, coordinator.Options{
		EnableSharedResources: !deployNoShared,
		EnableAutoRollback:    !deployNoRollback,
		SkipVerification:      deployNoVerify,
	})
	coord.Platform = pf
	coord.Health = deps.Health
	coord.Secrets = deps.Secrets
	coord.Rollback = rollback.NewManager(pf, filepath.Join(deployDataDir, "rollbacks"))
	coord.Events = broker

	fmt.Printf("Deploying %d domain(s) to %s (run %s)\n", len(configs), env, runID)
	if deployDryRun {
		fmt.Println("Dry run: no platform changes will be made")
	}

	report, deployErr := coord.Deploy(ctx, configs)

	persister.Wait()
	if history != nil {
		if err := history.PutRun(st.Snapshot()); err != nil {
			log.Warn(fmt.Sprintf("run not recorded in history: %v", err))
		}
	}

	if report != nil {
		printReport(report)
	}
	if deployErr != nil {
		return deployErr
	}
	if report != nil && len(report.Failed) > 0 {
		return fmt.Errorf("%d of %d domain(s) failed", report.Summary.Failed, report.Summary.Total)
	}
	return nil
}

// archivePortfolio keeps a copy of the portfolio file used by this run
// so past runs can be audited against the config that drove them
func archivePortfolio(path, runID string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn(fmt.Sprintf("portfolio not archived: %v", err))
		return
	}
	store := config.NewStore(filepath.Join(deployDataDir, "configs"))
	if _, err := store.Write(runID+".portfolio.yaml", data); err != nil {
		log.Warn(fmt.Sprintf("portfolio not archived: %v", err))
	}
}

// loadPortfolio reads the portfolio file when a path is given
func loadPortfolio(path string) (*config.Portfolio, error) {
	if path == "" {
		return nil, nil
	}
	portfolio, warnings, err := config.LoadPortfolio(path)
	if err != nil {
		return nil, &configError{err: err}
	}
	for _, w := range warnings {
		log.Warn(w)
	}
	return portfolio, nil
}

// targetEnvironment picks the environment from the flag, the portfolio,
// or the ambient ENVIRONMENT/NODE_ENV variables, in that order
func targetEnvironment(flag string, portfolio *config.Portfolio) (types.Environment, error) {
	env := types.Environment(flag)
	if env == "" && portfolio != nil {
		env = types.Environment(portfolio.Environment)
	}
	if env == "" {
		env = resolver.TargetEnvironment()
	}
	if env == "" {
		return "", &usageError{msg: "no target environment; use --environment or set ENVIRONMENT"}
	}
	if !env.Valid() {
		return "", &configError{err: fmt.Errorf("unknown environment %q", env)}
	}
	return env, nil
}

// newResolver builds a resolver carrying the portfolio's suffix settings
func newResolver(portfolio *config.Portfolio) *resolver.Resolver {
	r := resolver.New()
	if portfolio != nil {
		r.PublicSuffixes = portfolio.PublicSuffixes
		r.SkipSubdomainPatterns = portfolio.SkipSubdomainPatterns
	}
	return r
}

// newPlatform selects the platform adapter: the HTTP API client when
// requested and credentialed, the local CLI wrapper otherwise
func newPlatform(useAPI bool, workingDir string) platform.Platform {
	if useAPI {
		return platform.NewClient(credentialsFromEnv())
	}
	return platform.NewShellClient(workingDir)
}

// resolveConfigs derives a DomainConfig per domain, applying the
// portfolio entry's overrides where one exists
func resolveConfigs(res *resolver.Resolver, portfolio *config.Portfolio, domains []string) ([]*types.DomainConfig, error) {
	configs := make([]*types.DomainConfig, 0, len(domains))
	for _, domain := range domains {
		var overrides *resolver.Overrides
		var entry *config.PortfolioDomain
		if portfolio != nil {
			if entry = portfolio.Domain(domain); entry != nil {
				overrides = &resolver.Overrides{
					WorkerName:      entry.WorkerName,
					DatabaseName:    entry.DatabaseName,
					DatabaseBinding: entry.DatabaseBinding,
					ZoneID:          entry.ZoneID,
					Environments:    entry.EnvironmentURLs(),
					Dependencies:    entry.Dependencies,
					CORSOrigins:     entry.CORSOrigins,
				}
			}
		}
		cfg, err := res.Resolve(domain, overrides)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			cfg.SharedDatabases = entry.SharedDatabases
			cfg.SharedSecrets = entry.SharedSecrets
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// scheduling resolves the effective parallel limit and batch pause
func scheduling(portfolio *config.Portfolio) (int, time.Duration) {
	parallel := deployParallel
	pause := deployBatchPause
	if portfolio != nil {
		if parallel == 0 {
			parallel = portfolio.ParallelLimit
		}
		if pause == 0 {
			pause = portfolio.BatchPause.Std()
		}
	}
	if parallel == 0 {
		parallel = deploy.DefaultParallelLimit
	}
	if parallel > deploy.MaxParallelLimit {
		parallel = deploy.MaxParallelLimit
	}
	if pause == 0 {
		pause = deploy.DefaultBatchPause
	}
	return parallel, pause
}

// renderProgress prints lifecycle events as they arrive. The returned
// stop function unsubscribes and waits for the printer to drain.
func renderProgress(broker *events.Broker) func() {
	sub := broker.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range sub {
			switch event.Type {
			case events.EventDomainStarted:
				fmt.Printf("  → %s deploying\n", event.Domain)
			case events.EventDomainCompleted:
				fmt.Printf("  ✓ %s deployed\n", event.Domain)
			case events.EventDomainWarned:
				fmt.Printf("  ✓ %s deployed with warnings\n", event.Domain)
			case events.EventDomainFailed:
				fmt.Printf("  ✗ %s failed\n", event.Domain)
			case events.EventRollbackStarted:
				fmt.Println("  rolling back successful domains...")
			}
		}
	}()
	return func() {
		broker.Unsubscribe(sub)
		<-done
	}
}

// startMetricsServer mounts the Prometheus and health endpoints
func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Warn(fmt.Sprintf("metrics listener stopped: %v", err))
		}
	}()
}

// printReport writes the final portfolio summary to stdout
func printReport(report *types.Report) {
	fmt.Println()
	fmt.Printf("Deployment finished in %s\n", report.Duration.Round(time.Millisecond))
	fmt.Printf("  Successful: %d\n", report.Summary.Completed)
	fmt.Printf("  Failed:     %d\n", report.Summary.Failed)
	fmt.Printf("  Success rate: %.1f%%\n", report.SuccessRate)
	for _, f := range report.Failed {
		fmt.Printf("  ✗ %s (%s): %s\n", f.Domain, f.Phase, f.Error)
	}
	if len(report.RolledBack) > 0 {
		fmt.Printf("  Rolled back: %v\n", report.RolledBack)
	}
}
