package deploy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/drydock-sh/drydock/pkg/config"
	"github.com/drydock-sh/drydock/pkg/health"
	"github.com/drydock-sh/drydock/pkg/platform"
	"github.com/drydock-sh/drydock/pkg/resolver"
	"github.com/drydock-sh/drydock/pkg/rollback"
	"github.com/drydock-sh/drydock/pkg/secrets"
	"github.com/drydock-sh/drydock/pkg/state"
	"github.com/drydock-sh/drydock/pkg/types"
)

// Deps collects everything the standard phase handlers need
type Deps struct {
	Platform platform.Platform
	Resolver *resolver.Resolver
	Config   *config.Manager
	Secrets  *secrets.Manager
	Health   *health.Checker
	State    *state.Manager

	Environment types.Environment
	AccountID   string
	WorkingDir  string

	// Backup, when set, captures pre-run state during the first
	// initialization phase and registers restore-file rollback actions
	Backup        *rollback.Backup
	BackupOptions rollback.BackupOptions

	// Validate, when set, adds caller-supplied validation to the
	// validation phase; valid=false is a critical failure
	Validate func(domain string) (valid bool, errs []string)

	// ValidateConfig, when set, runs during initialization; warnings are
	// audited, fatal issues fail the phase
	ValidateConfig func(domain string) (warnings []string, fatal []string)

	backupOnce sync.Once
}

// StandardPhases builds the fixed six-phase pipeline
func StandardPhases(d *Deps) []Phase {
	return []Phase{
		{Name: PhaseValidation, Critical: true, Handler: d.validation},
		{Name: PhaseInitialization, Critical: true, Handler: d.initialization},
		{Name: PhaseDatabase, Critical: false, Handler: d.database},
		{Name: PhaseSecrets, Critical: false, Handler: d.secrets},
		{Name: PhaseDeployment, Critical: true, Handler: d.deployment},
		{Name: PhasePostValidation, Critical: false, Handler: d.postValidation},
	}
}

// validation runs the resolver's prerequisite check plus the optional
// caller-supplied validator
func (d *Deps) validation(ctx context.Context, domain string, ds types.DomainState) (*Outcome, error) {
	check := d.Resolver.ValidatePrerequisites(domain)
	if !check.Valid {
		return nil, fmt.Errorf("prerequisites: %s", strings.Join(check.Issues, "; "))
	}

	outcome := &Outcome{Warnings: check.Warnings}
	if d.Validate != nil {
		valid, errs := d.Validate(domain)
		if !valid {
			return nil, fmt.Errorf("%s", strings.Join(errs, "; "))
		}
	}
	return outcome, nil
}

// initialization validates configuration and captures the pre-run
// backup (once per run), registering its restore-file actions
func (d *Deps) initialization(ctx context.Context, domain string, ds types.DomainState) (*Outcome, error) {
	outcome := &Outcome{}

	if d.ValidateConfig != nil {
		warnings, fatal := d.ValidateConfig(domain)
		if len(fatal) > 0 {
			return nil, fmt.Errorf("configuration: %s", strings.Join(fatal, "; "))
		}
		if len(warnings) > 0 {
			outcome.Warnings = append(outcome.Warnings, warnings...)
			d.State.AppendAudit(types.EventValidationWarnings, domain, map[string]interface{}{
				"warnings": warnings,
			})
		}
	}

	var backupErr error
	d.backupOnce.Do(func() {
		if d.Backup == nil {
			return
		}
		_, actions, err := d.Backup.CreateStateBackup(ctx, d.BackupOptions)
		if err != nil {
			backupErr = fmt.Errorf("state backup: %w", err)
			return
		}
		for _, action := range actions {
			d.State.AddRollbackAction(domain, action)
		}
	})
	if backupErr != nil {
		return nil, backupErr
	}

	if err := d.Config.EnsureEnvironment(d.Environment); err != nil {
		return nil, fmt.Errorf("prepare platform config: %w", err)
	}
	return outcome, nil
}

// databaseName derives the deterministic per-environment database name
func (d *Deps) databaseName(cfg *types.DomainConfig) string {
	if cfg != nil && cfg.DatabaseName != "" {
		return cfg.DatabaseName
	}
	return fmt.Sprintf("%s-%s-db", cfg.CleanName, d.Environment)
}

// database ensures the domain's database exists, binds it into the
// platform config, and applies migrations
func (d *Deps) database(ctx context.Context, domain string, ds types.DomainState) (*Outcome, error) {
	cfg := ds.Config
	if cfg == nil {
		return nil, fmt.Errorf("domain %s has no resolved config", domain)
	}

	name := d.databaseName(cfg)
	outcome := &Outcome{}

	exists, err := d.Platform.DatabaseExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("check database %s: %w", name, err)
	}

	var id string
	if exists {
		d.State.AppendAudit(types.EventDatabaseFound, domain, map[string]interface{}{
			"database": name,
		})
		if id, err = d.Platform.GetDatabaseID(ctx, name); err != nil {
			outcome.Warnings = append(outcome.Warnings,
				fmt.Sprintf("could not resolve id of existing database %s: %v", name, err))
		}
	} else {
		if id, err = d.Platform.CreateDatabase(ctx, name); err != nil {
			return nil, fmt.Errorf("create database %s: %w", name, err)
		}
		d.State.AppendAudit(types.EventDatabaseCreated, domain, map[string]interface{}{
			"database": name,
			"id":       id,
		})
		d.State.AddRollbackAction(domain, &types.RollbackAction{
			ID:           "rb-" + uuid.NewString(),
			Type:         types.RollbackDeleteDatabase,
			Priority:     types.PriorityDeleteDatabase,
			Description:  fmt.Sprintf("delete database %s", name),
			Critical:     true,
			DatabaseName: name,
		})
	}

	d.State.UpdateDomain(domain, state.Patch{DatabaseName: &name, DatabaseID: &id})

	binding := cfg.DatabaseBinding
	if binding == "" {
		binding = "DB"
	}
	if err := d.Config.AddDatabaseBinding(d.Environment, config.DatabaseBinding{
		Binding:      binding,
		DatabaseName: name,
		DatabaseID:   id,
	}); err != nil {
		return nil, fmt.Errorf("bind database %s: %w", name, err)
	}

	if err := d.Platform.ApplyMigrations(ctx, name, binding, d.Environment, true); err != nil {
		// Migration failure is a warning; the deployment continues
		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("migrations for %s failed: %v", name, err))
	}
	return outcome, nil
}

// secrets generates (or reuses), distributes, and archives secrets for
// the domain's worker
func (d *Deps) secrets(ctx context.Context, domain string, ds types.DomainState) (*Outcome, error) {
	cfg := ds.Config
	if cfg == nil {
		return nil, fmt.Errorf("domain %s has no resolved config", domain)
	}

	values, err := d.Secrets.Generate(cfg.WorkerName)
	if err != nil {
		return nil, err
	}
	names := secrets.Names(values)
	d.State.AppendAudit(types.EventSecretsGenerated, domain, map[string]interface{}{
		"count": len(names),
		"names": names,
	})

	if err := d.Secrets.Distribute(ctx, d.Platform, cfg.WorkerName, d.Environment, values,
		func(a *types.RollbackAction) {
			a.ID = "rb-" + uuid.NewString()
			d.State.AddRollbackAction(domain, a)
		}); err != nil {
		return nil, err
	}

	outcome := &Outcome{}
	if err := d.Secrets.WriteArtifacts(cfg.WorkerName, d.Environment, values); err != nil {
		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("secret artifacts not written: %v", err))
	}
	return outcome, nil
}

// deployment activates the customer config and deploys the worker
func (d *Deps) deployment(ctx context.Context, domain string, ds types.DomainState) (*Outcome, error) {
	cfg := ds.Config
	if cfg == nil {
		return nil, fmt.Errorf("domain %s has no resolved config", domain)
	}

	path, err := d.Config.GenerateCustomerConfig(domain, config.CustomerConfigParams{
		AccountID:   d.AccountID,
		Environment: d.Environment,
		WorkerName:  cfg.WorkerName,
	})
	if err != nil {
		return nil, fmt.Errorf("generate customer config: %w", err)
	}
	if err := d.Config.CopyCustomerConfig(path); err != nil {
		return nil, fmt.Errorf("activate customer config: %w", err)
	}

	result, err := d.Platform.DeployWorker(ctx, d.Environment, d.WorkingDir)
	if err != nil {
		return nil, fmt.Errorf("deploy worker %s: %w", cfg.WorkerName, err)
	}

	d.State.AddRollbackAction(domain, &types.RollbackAction{
		ID:          "rb-" + uuid.NewString(),
		Type:        types.RollbackDeleteWorker,
		Priority:    types.PriorityDeleteWorker,
		Description: fmt.Sprintf("delete worker %s", cfg.WorkerName),
		Critical:    true,
		WorkerName:  cfg.WorkerName,
		Environment: d.Environment,
	})

	outcome := &Outcome{
		Deployed:  true,
		CustomURL: cfg.Environments.URL(d.Environment),
	}
	if url := ParseWorkerURL(result.Stdout); url != "" {
		outcome.WorkerURL = url
	} else {
		outcome.Warnings = append(outcome.Warnings,
			"worker URL not found in deploy output")
	}
	return outcome, nil
}

// postValidation health-checks the deployed worker. The worker URL is
// preferred over the custom domain, which may not be DNS-routable yet.
// No outcome here fails the deployment.
func (d *Deps) postValidation(ctx context.Context, domain string, ds types.DomainState) (*Outcome, error) {
	target := ds.WorkerURL
	if target == "" {
		target = ds.CustomURL
	}
	if target == "" {
		return &Outcome{Warnings: []string{"no URL to health-check"}}, nil
	}

	res := d.Health.Check(ctx, target)
	d.State.AppendAudit(res.AuditEvent(), domain, map[string]interface{}{
		"url":      res.URL,
		"status":   res.StatusCode,
		"attempts": res.Attempts,
	})

	outcome := &Outcome{}
	if res.Outcome != health.OutcomePassed {
		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("health check %s: %s", res.Outcome, res.Detail))
	}
	return outcome, nil
}
