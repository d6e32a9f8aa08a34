package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/drydock-sh/drydock/pkg/coordinator"
	"github.com/drydock-sh/drydock/pkg/log"
	"github.com/drydock-sh/drydock/pkg/platform"
	"github.com/drydock-sh/drydock/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Exit codes, stable for scripting
const (
	exitOK         = 0
	exitError      = 1
	exitUsage      = 2
	exitConfig     = 3
	exitCredential = 4
	exitNotFound   = 5
	exitTimeout    = 7
	exitValidation = 8
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "drydock",
	Short: "Drydock - Multi-domain deployment orchestrator for serverless workers",
	Long: `Drydock deploys data-service workers for a portfolio of domains:
per-domain databases, generated secrets, worker deployment and health
verification, with batched parallelism, dependency ordering and
automatic rollback.

State is tracked per orchestration run and persisted locally, so past
runs can be inspected and rolled back after the fact.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	logLevel string
	jsonLogs bool
)

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Drydock version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit logs as JSON")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		log.Init(log.Config{
			Level:      log.Level(logLevel),
			JSONOutput: jsonLogs,
			Output:     os.Stderr,
		})
	}

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Drydock version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

// usageError marks bad arguments or flag combinations
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

// configError marks an unusable portfolio or environment configuration
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// validationError marks pre-deployment validation failures (bad domain
// names, dependency cycles)
type validationError struct{ err error }

func (e *validationError) Error() string { return e.err.Error() }
func (e *validationError) Unwrap() error { return e.err }

// exitCode classifies an error into the documented exit codes
func exitCode(err error) int {
	var usage *usageError
	var config *configError
	var validation *validationError
	var timeout *platform.TimeoutError

	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &usage):
		return exitUsage
	case errors.As(err, &config):
		return exitConfig
	case errors.As(err, &validation),
		coordinator.IsCircularDependency(err):
		return exitValidation
	case platform.IsAuth(err), platform.IsPermissionDenied(err):
		return exitCredential
	case platform.IsNotFound(err):
		return exitNotFound
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return exitTimeout
	case types.IsCancelled(err):
		return exitError
	default:
		return exitError
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// credentialsFromEnv reads platform credentials from the environment
func credentialsFromEnv() platform.Credentials {
	return platform.Credentials{
		APIToken:   os.Getenv("CLOUDFLARE_API_TOKEN"),
		AccountID:  os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		ZoneID:     os.Getenv("CLOUDFLARE_ZONE_ID"),
		OAuthToken: os.Getenv("CLOUDFLARE_OAUTH_TOKEN"),
	}
}
