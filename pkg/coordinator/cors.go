package coordinator

import (
	"fmt"
	"strings"

	"github.com/drydock-sh/drydock/pkg/types"
)

// ValidateCORS checks, for every ordered pair of portfolio domains, that
// the first domain's CORS origin list for the environment admits the
// second domain's environment URL. Mismatches are warnings, never fatal.
// A domain that declares no origins for the environment is skipped.
func ValidateCORS(configs []*types.DomainConfig, env types.Environment) []string {
	var warnings []string
	for _, a := range configs {
		origins := a.CORSOrigins[string(env)]
		if len(origins) == 0 {
			continue
		}
		for _, b := range configs {
			if a.Name == b.Name {
				continue
			}
			target := b.Environments.URL(env)
			if target == "" {
				continue
			}
			if !originsAllow(origins, target) {
				warnings = append(warnings, fmt.Sprintf(
					"%s does not allow %s origin %s (%s)", a.Name, env, target, b.Name))
			}
		}
	}
	return warnings
}

func originsAllow(origins []string, target string) bool {
	for _, o := range origins {
		if originAllows(o, target) {
			return true
		}
	}
	return false
}

// originAllows accepts an exact match, the "*" wildcard, or a substring
// match after stripping the scheme and a leading "*." from the origin
func originAllows(origin, target string) bool {
	if origin == "*" || origin == target {
		return true
	}
	o := strings.TrimPrefix(stripScheme(origin), "*.")
	if o == "" {
		return false
	}
	return strings.Contains(stripScheme(target), o)
}

func stripScheme(s string) string {
	if rest, ok := strings.CutPrefix(s, "https://"); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(s, "http://"); ok {
		return rest
	}
	return s
}
