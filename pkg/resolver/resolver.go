package resolver

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/drydock-sh/drydock/pkg/log"
	"github.com/drydock-sh/drydock/pkg/types"
)

// domainPattern validates lowercase DNS names with at least two labels
var domainPattern = regexp.MustCompile(
	`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)+$`)

// Credential environment variables checked during prerequisite validation
var credentialEnvVars = []string{
	"CLOUDFLARE_API_TOKEN",
	"CLOUDFLARE_ACCOUNT_ID",
	"CLOUDFLARE_ZONE_ID",
}

// Overrides customizes derived values during resolution
type Overrides struct {
	WorkerName      string
	DatabaseName    string
	DatabaseBinding string
	ZoneID          string
	Environments    types.EnvironmentURLs
	Dependencies    []string
	CORSOrigins     map[string][]string
}

// Validation is the result of a prerequisites check
type Validation struct {
	Valid    bool     `json:"valid"`
	Issues   []string `json:"issues,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Resolver derives immutable DomainConfig values from domain names.
// Resolution is pure and cached by domain name; two resolutions of the
// same domain return the same config.
type Resolver struct {
	// PublicSuffixes lists multi-label suffixes ("co.uk") the root-domain
	// derivation must treat as a single TLD
	PublicSuffixes []string

	// SkipSubdomainPatterns lists glob-style patterns ("*.workers.dev")
	// for synthetic subdomains that get no derived environment URLs
	SkipSubdomainPatterns []string

	mu     sync.Mutex
	cache  map[string]*types.DomainConfig
	logger zerolog.Logger
}

// New creates a resolver with no public-suffix configuration
func New() *Resolver {
	return &Resolver{
		cache:  make(map[string]*types.DomainConfig),
		logger: log.WithComponent("resolver"),
	}
}

// CleanName lowers the domain and reduces it to [a-z0-9-]
func CleanName(domain string) string {
	lower := strings.ToLower(domain)
	var b strings.Builder
	b.Grow(len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// ValidFormat reports whether the domain matches the accepted DNS format.
// Internationalized (non-ASCII) names are rejected.
func ValidFormat(domain string) bool {
	return domainPattern.MatchString(domain)
}

// Resolve derives the DomainConfig for a domain, caching the result.
// Overrides apply only on the first resolution of a domain.
func (r *Resolver) Resolve(domain string, overrides *Overrides) (*types.DomainConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg, ok := r.cache[domain]; ok {
		return cfg, nil
	}

	if !ValidFormat(domain) {
		return nil, fmt.Errorf("invalid domain format: %q", domain)
	}

	clean := CleanName(domain)
	cfg := &types.DomainConfig{
		Name:            domain,
		CleanName:       clean,
		WorkerName:      clean + "-data-service",
		DatabaseBinding: "DB",
	}
	// DatabaseName stays empty unless overridden; the database phase
	// derives <clean>-<environment>-db per environment

	if !r.skipSubdomains(domain) {
		cfg.Environments = types.EnvironmentURLs{
			Production:  "https://" + domain,
			Staging:     "https://staging." + domain,
			Development: "https://dev." + domain,
		}
	}

	if overrides != nil {
		if overrides.WorkerName != "" {
			cfg.WorkerName = overrides.WorkerName
		}
		if overrides.DatabaseName != "" {
			cfg.DatabaseName = overrides.DatabaseName
		}
		if overrides.DatabaseBinding != "" {
			cfg.DatabaseBinding = overrides.DatabaseBinding
		}
		cfg.ZoneID = overrides.ZoneID
		if overrides.Environments != (types.EnvironmentURLs{}) {
			cfg.Environments = overrides.Environments
		}
		cfg.Dependencies = overrides.Dependencies
		cfg.CORSOrigins = overrides.CORSOrigins
	}

	if !nameCharsValid(cfg.WorkerName) || (cfg.DatabaseName != "" && !nameCharsValid(cfg.DatabaseName)) {
		return nil, fmt.Errorf("derived names for %q contain invalid characters (worker=%q database=%q)",
			domain, cfg.WorkerName, cfg.DatabaseName)
	}

	r.cache[domain] = cfg
	return cfg, nil
}

// ResolveMany resolves a list of domains, stopping at the first error
func (r *Resolver) ResolveMany(domains []string) (map[string]*types.DomainConfig, error) {
	out := make(map[string]*types.DomainConfig, len(domains))
	for _, d := range domains {
		cfg, err := r.Resolve(d, nil)
		if err != nil {
			return nil, err
		}
		out[d] = cfg
	}
	return out, nil
}

// RootDomain returns the registrable root of the domain, consulting the
// configured public-suffix list for multi-label TLDs. For a multi-label
// TLD with no configured suffix the second return value is false and the
// caller should surface a warning rather than trust the guess.
func (r *Resolver) RootDomain(domain string) (string, bool) {
	labels := strings.Split(domain, ".")
	if len(labels) <= 2 {
		return domain, true
	}

	for _, suffix := range r.PublicSuffixes {
		if domain == suffix {
			return domain, true
		}
		if strings.HasSuffix(domain, "."+suffix) {
			prefix := strings.TrimSuffix(domain, "."+suffix)
			prefixLabels := strings.Split(prefix, ".")
			return prefixLabels[len(prefixLabels)-1] + "." + suffix, true
		}
	}

	// Last two labels. Correct for ordinary TLDs; flagged as a guess when
	// the TLD portion could itself be multi-label (short final labels).
	root := labels[len(labels)-2] + "." + labels[len(labels)-1]
	certain := len(labels[len(labels)-2]) > 3
	return root, certain
}

// skipSubdomains reports whether derived environment subdomains should be
// suppressed for this domain
func (r *Resolver) skipSubdomains(domain string) bool {
	for _, pattern := range r.SkipSubdomainPatterns {
		if matchPattern(pattern, domain) {
			return true
		}
	}
	return false
}

// matchPattern supports a single leading "*." wildcard or exact match
func matchPattern(pattern, domain string) bool {
	if rest, ok := strings.CutPrefix(pattern, "*."); ok {
		return domain == rest || strings.HasSuffix(domain, "."+rest)
	}
	return pattern == domain
}

// ValidatePrerequisites checks a domain and the ambient environment for
// deployability. Format problems are issues (valid=false); missing
// credentials and loopback targets are warnings only.
func (r *Resolver) ValidatePrerequisites(domain string) Validation {
	v := Validation{Valid: true}

	switch {
	case isLoopback(domain):
		// Loopback targets are tolerated for local development
		v.Warnings = append(v.Warnings, fmt.Sprintf("domain %q targets a loopback address", domain))
	case !ValidFormat(domain):
		v.Valid = false
		if hasNonASCII(domain) {
			v.Issues = append(v.Issues,
				fmt.Sprintf("domain %q contains non-ASCII characters; internationalized names are not supported", domain))
		} else {
			v.Issues = append(v.Issues, fmt.Sprintf("domain %q is not a valid DNS name", domain))
		}
	}

	if _, certain := r.RootDomain(domain); !certain && !isLoopback(domain) {
		v.Warnings = append(v.Warnings,
			fmt.Sprintf("domain %q may have a multi-label TLD; add it to public_suffixes to derive the root correctly", domain))
	}

	for _, key := range credentialEnvVars {
		if os.Getenv(key) == "" {
			v.Warnings = append(v.Warnings, fmt.Sprintf("environment variable %s is not set", key))
		}
	}
	if os.Getenv("ENVIRONMENT") == "" && os.Getenv("NODE_ENV") == "" {
		v.Warnings = append(v.Warnings, "neither ENVIRONMENT nor NODE_ENV is set; environment must be passed explicitly")
	}

	if len(v.Warnings) > 0 {
		r.logger.Debug().Str("domain", domain).Int("warnings", len(v.Warnings)).Msg("prerequisite warnings")
	}
	return v
}

// TargetEnvironment returns the environment from ENVIRONMENT, falling
// back to NODE_ENV, or "" when neither is set
func TargetEnvironment() types.Environment {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return types.Environment(env)
	}
	if env := os.Getenv("NODE_ENV"); env != "" {
		return types.Environment(env)
	}
	return ""
}

func nameCharsValid(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' {
			continue
		}
		return false
	}
	return true
}

func hasNonASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return true
		}
	}
	return false
}

func isLoopback(domain string) bool {
	return domain == "localhost" ||
		strings.HasSuffix(domain, ".localhost") ||
		strings.HasPrefix(domain, "127.") ||
		domain == "::1"
}
