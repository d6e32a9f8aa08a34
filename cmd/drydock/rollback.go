package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/drydock-sh/drydock/pkg/rollback"
	"github.com/drydock-sh/drydock/pkg/state"
	"github.com/drydock-sh/drydock/pkg/types"
)

var (
	rollbackDataDir    string
	rollbackWorkingDir string
	rollbackDryRun     bool
	rollbackUseAPI     bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <orchestration-id>",
	Short: "Roll back a recorded orchestration run",
	Long: `Re-execute the rollback plan recorded for a past run: delete the
workers and databases it created, remove distributed secrets and
restore backed-up configuration files.

Actions run in priority order (workers before secrets before
databases); --dry-run prints the plan without touching anything.`,
	Args: cobra.ExactArgs(1),
	RunE: runRollback,
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackDataDir, "data-dir", ".drydock", "directory holding run state and history")
	rollbackCmd.Flags().StringVar(&rollbackWorkingDir, "working-dir", ".", "project directory holding the platform config")
	rollbackCmd.Flags().BoolVar(&rollbackDryRun, "dry-run", false, "print the plan without executing it")
	rollbackCmd.Flags().BoolVar(&rollbackUseAPI, "api", false, "use the platform HTTP API instead of the local CLI")
}

func runRollback(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	runID := args[0]
	snap, err := loadSnapshot(rollbackDataDir, runID)
	if err != nil {
		return err
	}

	plan := planFromSnapshot(snap)
	if len(plan) == 0 {
		fmt.Printf("Run %s recorded no rollback actions\n", runID)
		return nil
	}

	fmt.Printf("Rolling back run %s (%d action(s))\n", runID, len(plan))
	mgr := rollback.NewManager(
		newPlatform(rollbackUseAPI, rollbackWorkingDir),
		filepath.Join(rollbackDataDir, "rollbacks"),
	)
	report, err := mgr.Execute(ctx, plan, rollbackDryRun)
	if report != nil {
		fmt.Printf("Rollback %s: %s (%d ok, %d failed, %d skipped)\n",
			report.RollbackID, report.Status,
			report.Summary.Successful, report.Summary.Failed, report.Summary.Skipped)
		for _, f := range report.Failed {
			fmt.Printf("  ✗ %s: %s\n", f.Description, f.Error)
		}
	}
	return err
}

// loadSnapshot reads a run snapshot from the history database, falling
// back to the JSON snapshot directory
func loadSnapshot(dataDir, runID string) (*types.RunSnapshot, error) {
	if history, err := state.OpenHistory(dataDir); err == nil {
		defer history.Close()
		if snap, err := history.GetRun(runID); err == nil {
			return snap, nil
		}
	}
	snap, err := state.NewPersister(filepath.Join(dataDir, "deployments")).Load(runID)
	if err != nil {
		return nil, fmt.Errorf("run %s not found under %s: %w", runID, dataDir, err)
	}
	return snap, nil
}

// planFromSnapshot gathers every domain's recorded actions, walking
// domains in reverse completion order
func planFromSnapshot(snap *types.RunSnapshot) []types.PlannedAction {
	domains := make([]string, 0, len(snap.DomainStates))
	for domain := range snap.DomainStates {
		domains = append(domains, domain)
	}
	sort.Slice(domains, func(i, j int) bool {
		a, b := snap.DomainStates[domains[i]].EndTime, snap.DomainStates[domains[j]].EndTime
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})

	var plan []types.PlannedAction
	for _, domain := range domains {
		for _, action := range snap.DomainStates[domain].RollbackActions {
			plan = append(plan, types.PlannedAction{Domain: domain, Action: action})
		}
	}
	return plan
}
