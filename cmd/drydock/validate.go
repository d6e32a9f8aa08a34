package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drydock-sh/drydock/pkg/coordinator"
)

var (
	validatePortfolioPath string
	validateEnvironment   string
)

var validateCmd = &cobra.Command{
	Use:   "validate [domains...]",
	Short: "Validate domains and portfolio configuration without deploying",
	Long: `Check that every domain resolves to valid worker and database names,
that the dependency graph is acyclic, and that cross-domain CORS
declarations line up. Nothing is deployed.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validatePortfolioPath, "portfolio", "p", "", "portfolio YAML file")
	validateCmd.Flags().StringVarP(&validateEnvironment, "environment", "e", "", "environment for CORS validation")
}

func runValidate(cmd *cobra.Command, args []string) error {
	portfolio, err := loadPortfolio(validatePortfolioPath)
	if err != nil {
		return err
	}

	domains := append([]string{}, args...)
	if portfolio != nil {
		seen := make(map[string]bool, len(domains))
		for _, d := range domains {
			seen[d] = true
		}
		for _, d := range portfolio.DomainNames() {
			if !seen[d] {
				domains = append(domains, d)
			}
		}
	}
	if len(domains) == 0 {
		return &usageError{msg: "nothing to validate; pass domains as arguments or use --portfolio"}
	}

	res := newResolver(portfolio)
	configs, err := resolveConfigs(res, portfolio, domains)
	if err != nil {
		return &validationError{err: err}
	}

	issues := 0
	for _, cfg := range configs {
		check := res.ValidatePrerequisites(cfg.Name)
		for _, issue := range check.Issues {
			fmt.Printf("  ✗ %s\n", issue)
			issues++
		}
		for _, warning := range check.Warnings {
			fmt.Printf("  ! %s\n", warning)
		}
	}

	graph := coordinator.BuildGraph(configs)
	if err := graph.CheckAcyclic(); err != nil {
		fmt.Printf("  ✗ %v\n", err)
		return &validationError{err: err}
	}

	env, err := targetEnvironment(validateEnvironment, portfolio)
	if err == nil {
		for _, warning := range coordinator.ValidateCORS(configs, env) {
			fmt.Printf("  ! %s\n", warning)
		}
	}

	if issues > 0 {
		return &validationError{err: fmt.Errorf("%d validation issue(s)", issues)}
	}
	fmt.Printf("✓ %d domain(s) valid\n", len(configs))
	return nil
}
