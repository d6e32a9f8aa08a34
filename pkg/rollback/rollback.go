package rollback

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/drydock-sh/drydock/pkg/log"
	"github.com/drydock-sh/drydock/pkg/platform"
	"github.com/drydock-sh/drydock/pkg/types"
)

// Per-action retry policy
const (
	ActionAttempts = 3
	ActionBackoff  = 2 * time.Second
)

// PlanStatus summarizes how far a rollback got
type PlanStatus string

const (
	PlanComplete PlanStatus = "complete"
	PlanPartial  PlanStatus = "partial"
	PlanDryRun   PlanStatus = "dry-run"
)

// ActionResult records the outcome of one executed action
type ActionResult struct {
	Domain      string `json:"domain"`
	ActionID    string `json:"action_id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Error       string `json:"error,omitempty"`
}

// Report is the JSON document written after a rollback run
type Report struct {
	RollbackID string         `json:"rollback_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	DryRun     bool           `json:"dry_run"`
	Status     PlanStatus     `json:"status"`
	Successful []ActionResult `json:"successful"`
	Failed     []ActionResult `json:"failed"`
	Skipped    []ActionResult `json:"skipped"`
	Summary    struct {
		Total      int `json:"total"`
		Successful int `json:"successful"`
		Failed     int `json:"failed"`
		Skipped    int `json:"skipped"`
	} `json:"summary"`
}

// Manager executes recorded rollback plans against the platform
type Manager struct {
	Platform platform.Platform

	// ReportDir receives the JSON rollback report; empty disables writing
	ReportDir string

	// Attempts and Backoff override the per-action retry policy
	Attempts int
	Backoff  time.Duration

	logger zerolog.Logger
}

// NewManager creates a rollback manager writing reports under reportDir
func NewManager(p platform.Platform, reportDir string) *Manager {
	return &Manager{
		Platform:  p,
		ReportDir: reportDir,
		Attempts:  ActionAttempts,
		Backoff:   ActionBackoff,
		logger:    log.WithComponent("rollback"),
	}
}

// Order sorts a plan for execution: priority descending, and within
// equal priority the most recently recorded action runs first
func Order(plan []types.PlannedAction) []types.PlannedAction {
	ordered := make([]types.PlannedAction, len(plan))
	copy(ordered, plan)
	// SliceStable keeps insertion order among equal priorities; reversing
	// beforehand makes ties LIFO
	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Action.Priority > ordered[j].Action.Priority
	})
	return ordered
}

// Execute runs the plan in priority order. In dry-run mode every action
// is logged and marked successful without touching the platform. A
// failed critical action without continue_on_failure stops execution
// and marks the plan partial; remaining actions are reported skipped.
func (m *Manager) Execute(ctx context.Context, plan []types.PlannedAction, dryRun bool) (*Report, error) {
	report := &Report{
		RollbackID: "rollback-" + uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		DryRun:     dryRun,
		Status:     PlanComplete,
	}
	if dryRun {
		report.Status = PlanDryRun
	}

	ordered := Order(plan)
	stopped := false
	for i, planned := range ordered {
		result := ActionResult{
			Domain:      planned.Domain,
			ActionID:    planned.Action.ID,
			Type:        string(planned.Action.Type),
			Description: planned.Action.Description,
		}

		if stopped {
			report.Skipped = append(report.Skipped, result)
			continue
		}

		if dryRun {
			m.logger.Info().
				Str("domain", planned.Domain).
				Str("type", string(planned.Action.Type)).
				Msgf("dry-run: would execute %s", planned.Action.Description)
			report.Successful = append(report.Successful, result)
			continue
		}

		err := m.executeWithRetry(ctx, planned.Action)
		if err == nil {
			report.Successful = append(report.Successful, result)
			continue
		}

		result.Error = err.Error()
		report.Failed = append(report.Failed, result)
		m.logger.Error().Err(err).
			Str("domain", planned.Domain).
			Str("type", string(planned.Action.Type)).
			Msg("rollback action failed")

		if planned.Action.Critical && !planned.Action.ContinueOnFailure {
			report.Status = PlanPartial
			stopped = true
			m.logger.Warn().Int("remaining", len(ordered)-i-1).
				Msg("critical rollback action failed; stopping plan")
		}
	}

	report.FinishedAt = time.Now().UTC()
	report.Summary.Total = len(ordered)
	report.Summary.Successful = len(report.Successful)
	report.Summary.Failed = len(report.Failed)
	report.Summary.Skipped = len(report.Skipped)

	if err := m.writeReport(report); err != nil {
		// Reporting failure does not change the rollback outcome
		m.logger.Warn().Err(err).Msg("could not write rollback report")
	}

	if report.Status == PlanPartial {
		return report, fmt.Errorf("rollback incomplete: %d action(s) failed, %d skipped",
			report.Summary.Failed, report.Summary.Skipped)
	}
	return report, nil
}

// executeWithRetry retries a failing action a fixed number of times; the
// final error is the action error
func (m *Manager) executeWithRetry(ctx context.Context, action *types.RollbackAction) error {
	attempts := m.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(m.Backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = m.dispatch(ctx, action); err == nil {
			return nil
		}
	}
	return err
}

// dispatch maps an action type to its platform operation
func (m *Manager) dispatch(ctx context.Context, action *types.RollbackAction) error {
	switch action.Type {
	case types.RollbackDeleteWorker:
		return m.Platform.DeleteWorker(ctx, action.WorkerName, action.Environment)
	case types.RollbackDeleteSecret:
		return m.Platform.DeleteSecret(ctx, action.SecretKey, action.Environment)
	case types.RollbackDeleteDatabase:
		return m.Platform.DeleteDatabase(ctx, action.DatabaseName)
	case types.RollbackRestoreFile:
		return restoreFile(action.BackupPath, action.OriginalPath)
	case types.RollbackCustomCommand:
		if len(action.Command) == 0 {
			return fmt.Errorf("custom-command action %s has no command", action.ID)
		}
		cmd := exec.CommandContext(ctx, action.Command[0], action.Command[1:]...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("custom command: %w: %s", err, firstLine(string(out)))
		}
		return nil
	default:
		return fmt.Errorf("unknown rollback action type %q", action.Type)
	}
}

// restoreFile copies the backup back over the original path. A missing
// backup is a terminal action error.
func restoreFile(backupPath, originalPath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("backup file %s unavailable: %w", backupPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(originalPath), 0755); err != nil {
		return fmt.Errorf("restore %s: %w", originalPath, err)
	}
	if err := os.WriteFile(originalPath, data, 0644); err != nil {
		return fmt.Errorf("restore %s: %w", originalPath, err)
	}
	return nil
}

func (m *Manager) writeReport(report *Report) error {
	if m.ReportDir == "" {
		return nil
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(m.ReportDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(m.ReportDir, report.RollbackID+".json"), data, 0644)
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
