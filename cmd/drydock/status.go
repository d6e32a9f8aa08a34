package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/drydock-sh/drydock/pkg/state"
)

var (
	statusDataDir string
	statusJSON    bool
)

var statusCmd = &cobra.Command{
	Use:   "status [orchestration-id]",
	Short: "Inspect recorded orchestration runs",
	Long: `Without arguments, list recorded runs newest first. With an
orchestration ID, print that run's full state: per-domain statuses,
phase results and the audit trail.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusDataDir, "data-dir", ".drydock", "directory holding run state and history")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print machine-readable JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return showRun(args[0])
	}
	return listRuns()
}

func listRuns() error {
	history, err := state.OpenHistory(statusDataDir)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer history.Close()

	records, err := history.ListRuns()
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No recorded runs")
		return nil
	}

	if statusJSON {
		return json.NewEncoder(os.Stdout).Encode(records)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tENVIRONMENT\tSTARTED\tDOMAINS\tFAILED\tDRY RUN")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%v\n",
			r.OrchestrationID, r.Environment,
			r.StartTime.Format("2006-01-02 15:04:05"),
			r.Summary.Total, r.Summary.Failed, r.DryRun)
	}
	return w.Flush()
}

func showRun(runID string) error {
	snap, err := loadSnapshot(statusDataDir, runID)
	if err != nil {
		return err
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	fmt.Printf("Run %s (%s)\n", snap.OrchestrationID, snap.Environment)
	fmt.Printf("  Started: %s\n", snap.StartTime.Format("2006-01-02 15:04:05"))
	if snap.EndTime != nil {
		fmt.Printf("  Finished: %s\n", snap.EndTime.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("  Domains: %d total, %d completed, %d failed\n",
		snap.Summary.Total, snap.Summary.Completed, snap.Summary.Failed)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nDOMAIN\tSTATUS\tPHASE\tERROR")
	for _, ds := range snap.DomainStates {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ds.Domain, ds.Status, ds.Phase, ds.Error)
	}
	return w.Flush()
}
