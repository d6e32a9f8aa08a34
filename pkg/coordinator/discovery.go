package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/drydock-sh/drydock/pkg/config"
	"github.com/drydock-sh/drydock/pkg/platform"
	"github.com/drydock-sh/drydock/pkg/resolver"
)

// Source yields candidate portfolio domains from one origin: an explicit
// list, a portfolio file, or a platform listing.
type Source func(ctx context.Context) ([]string, error)

// StaticSource wraps an explicit domain list
func StaticSource(domains ...string) Source {
	return func(context.Context) ([]string, error) { return domains, nil }
}

// PortfolioSource reads domains from a parsed portfolio file
func PortfolioSource(p *config.Portfolio) Source {
	return func(context.Context) ([]string, error) {
		if p == nil {
			return nil, nil
		}
		return p.DomainNames(), nil
	}
}

// PlatformSource lists deployed workers and keeps every token that is a
// valid domain name
func PlatformSource(pf platform.Platform) Source {
	return func(ctx context.Context) ([]string, error) {
		out, err := pf.ListWorkers(ctx)
		if err != nil {
			return nil, fmt.Errorf("list workers: %w", err)
		}
		var domains []string
		for _, line := range strings.Split(out, "\n") {
			for _, field := range strings.Fields(line) {
				if resolver.ValidFormat(field) {
					domains = append(domains, field)
				}
			}
		}
		return domains, nil
	}
}

// Discover merges the domains yielded by every source, preserving
// first-seen order and dropping duplicates. Source errors are collected
// as warnings and never abort discovery.
func Discover(ctx context.Context, sources ...Source) (domains []string, warnings []string) {
	seen := make(map[string]bool)
	for _, src := range sources {
		found, err := src(ctx)
		if err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		for _, d := range found {
			if seen[d] {
				continue
			}
			seen[d] = true
			domains = append(domains, d)
		}
	}
	return domains, warnings
}
