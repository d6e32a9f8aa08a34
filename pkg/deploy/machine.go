package deploy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/drydock-sh/drydock/pkg/events"
	"github.com/drydock-sh/drydock/pkg/log"
	"github.com/drydock-sh/drydock/pkg/state"
	"github.com/drydock-sh/drydock/pkg/types"
)

// Default phase names, in execution order
const (
	PhaseValidation     = "validation"
	PhaseInitialization = "initialization"
	PhaseDatabase       = "database"
	PhaseSecrets        = "secrets"
	PhaseDeployment     = "deployment"
	PhasePostValidation = "post-validation"
)

// dryRunDelay simulates phase work during a dry run
const dryRunDelay = 100 * time.Millisecond

// Outcome is what a phase handler returns on success. Warnings are
// attached to the phase result; URL fields are captured into the
// domain state by the machine.
type Outcome struct {
	Warnings  []string
	WorkerURL string
	CustomURL string
	Deployed  bool
}

// Handler executes one phase for one domain. Returning an error fails
// the phase; a nil Outcome is treated as a success with no warnings.
type Handler func(ctx context.Context, domain string, ds types.DomainState) (*Outcome, error)

// Phase pairs a named handler with its criticality. A critical phase
// failure stops the machine; a non-critical failure is recorded and the
// machine continues.
type Phase struct {
	Name     string
	Critical bool
	Handler  Handler
}

// PhaseHook observes phase completion, for metrics
type PhaseHook func(domain, phase string, duration time.Duration, success bool)

// Machine drives one domain through the fixed phase sequence. All state
// mutation goes through the state manager; the machine never touches
// DomainState directly.
type Machine struct {
	State  *state.Manager
	Phases []Phase

	// DryRun bypasses every handler with a simulated success
	DryRun bool

	// SkipTests skips the post-validation phase entirely
	SkipTests bool

	// Events receives lifecycle notifications; nil is fine
	Events *events.Broker

	// OnPhase is called after every executed phase; nil is fine
	OnPhase PhaseHook

	logger zerolog.Logger
}

// NewMachine creates a phase machine over the given state manager
func NewMachine(st *state.Manager, phases []Phase) *Machine {
	return &Machine{
		State:  st,
		Phases: phases,
		logger: log.WithComponent("deploy"),
	}
}

// DeployDomain runs every phase for one domain and settles its terminal
// status. The returned error is non-nil only for critical failures
// (including cancellation); warning-level outcomes return nil with
// status completed_with_warnings.
func (m *Machine) DeployDomain(ctx context.Context, domain string) error {
	logger := m.logger.With().Str("domain", domain).Logger()

	if err := m.State.MarkStarted(domain); err != nil {
		return err
	}
	m.State.AppendAudit(types.EventDeploymentStart, domain, nil)
	m.Events.Publish(&events.Event{Type: events.EventDomainStarted, Domain: domain})

	clean := true
	for _, phase := range m.Phases {
		if phase.Name == PhasePostValidation && m.SkipTests {
			logger.Debug().Msg("skipping post-validation (skip_tests)")
			continue
		}

		if err := ctx.Err(); err != nil {
			return m.fail(domain, phase.Name, types.ErrCancelled)
		}

		success, criticalErr := m.runPhase(ctx, logger, domain, phase)
		if !success {
			if criticalErr != nil {
				return criticalErr
			}
			clean = false
		}
	}

	if clean {
		if err := m.State.MarkCompleted(domain); err != nil {
			return err
		}
	} else {
		if err := m.State.MarkCompletedWithWarnings(domain); err != nil {
			return err
		}
	}
	m.State.AppendAudit(types.EventDeploymentSuccess, domain, map[string]interface{}{
		"clean": clean,
	})
	eventType := events.EventDomainCompleted
	if !clean {
		eventType = events.EventDomainWarned
	}
	m.Events.Publish(&events.Event{Type: eventType, Domain: domain})
	logger.Info().Bool("clean", clean).Msg("domain deployed")
	return nil
}

// runPhase executes one phase and records its result. A non-nil second
// return is a critical failure; the domain is already marked failed.
func (m *Machine) runPhase(ctx context.Context, logger zerolog.Logger, domain string, phase Phase) (bool, error) {
	m.Events.Publish(&events.Event{Type: events.EventPhaseStarted, Domain: domain, Phase: phase.Name})
	start := time.Now()

	var outcome *Outcome
	var err error
	if m.DryRun {
		select {
		case <-time.After(dryRunDelay):
		case <-ctx.Done():
			err = types.ErrCancelled
		}
	} else {
		outcome, err = phase.Handler(ctx, domain, m.domainState(domain))
	}
	duration := time.Since(start)

	if m.OnPhase != nil {
		m.OnPhase(domain, phase.Name, duration, err == nil)
	}

	if err != nil {
		if types.IsCancelled(err) {
			return false, m.fail(domain, phase.Name, types.ErrCancelled)
		}

		result := &types.PhaseResult{Success: false, Errors: []string{err.Error()}}
		m.State.UpdateDomain(domain, state.Patch{PhaseName: phase.Name, PhaseResult: result})
		m.Events.Publish(&events.Event{
			Type: events.EventPhaseFailed, Domain: domain, Phase: phase.Name, Message: err.Error(),
		})

		if phase.Critical {
			return false, m.failWith(domain, phase.Name, err)
		}
		logger.Warn().Err(err).Str("phase", phase.Name).Msg("non-critical phase failed; continuing")
		return false, nil
	}

	patch := state.Patch{
		Phase: ptr(phase.Name + "-complete"),
		PhaseName: phase.Name,
		PhaseResult: &types.PhaseResult{Success: true},
	}
	if outcome != nil {
		patch.PhaseResult.Warnings = outcome.Warnings
		if outcome.WorkerURL != "" {
			patch.WorkerURL = &outcome.WorkerURL
		}
		if outcome.CustomURL != "" {
			patch.CustomURL = &outcome.CustomURL
		}
	}
	m.State.UpdateDomain(domain, patch)
	m.Events.Publish(&events.Event{Type: events.EventPhaseCompleted, Domain: domain, Phase: phase.Name})
	logger.Debug().Str("phase", phase.Name).Dur("duration", duration).Msg("phase complete")
	return true, nil
}

// fail marks the domain failed for err during phase and returns the
// propagated error
func (m *Machine) fail(domain, phase string, err error) error {
	m.State.UpdateDomain(domain, state.Patch{Phase: &phase})
	return m.failWith(domain, phase, err)
}

func (m *Machine) failWith(domain, phase string, err error) error {
	msg := err.Error()
	if markErr := m.State.MarkFailed(domain, msg); markErr != nil {
		m.logger.Warn().Err(markErr).Str("domain", domain).Msg("could not mark domain failed")
	}
	m.State.AppendAudit(types.EventDeploymentFailed, domain, map[string]interface{}{
		"phase": phase,
		"error": msg,
	})
	m.Events.Publish(&events.Event{
		Type: events.EventDomainFailed, Domain: domain, Phase: phase, Message: msg,
	})
	return fmt.Errorf("deploy %s: %s failed: %w", domain, phase, err)
}

func (m *Machine) domainState(domain string) types.DomainState {
	ds, _ := m.State.Domain(domain)
	return ds
}

// ParseWorkerURL extracts the first https:// token from deploy output,
// or "" when none is present
func ParseWorkerURL(output string) string {
	for _, field := range strings.Fields(output) {
		if strings.HasPrefix(field, "https://") {
			return strings.TrimRight(field, ".,;")
		}
	}
	return ""
}

func ptr[T any](v T) *T { return &v }
