package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/drydock-sh/drydock/pkg/types"
)

// Scheduling defaults applied when the portfolio file leaves them unset
const (
	DefaultParallelLimit = 3
	DefaultBatchPause    = 2 * time.Second

	// MaxParallelLimit is the hard upper bound on batch size
	MaxParallelLimit = 10

	// ParallelWarnThreshold is where the loader starts warning about
	// provider rate limiting
	ParallelWarnThreshold = 5
)

// Duration is a time.Duration that unmarshals from YAML strings
// ("500ms", "2s") or bare integers (seconds)
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var asInt int64
	if err := value.Decode(&asInt); err == nil {
		*d = Duration(time.Duration(asInt) * time.Second)
		return nil
	}
	var asStr string
	if err := value.Decode(&asStr); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	parsed, err := time.ParseDuration(asStr)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", asStr, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// PortfolioDomain is one domain entry as written in the portfolio file.
// Derivable fields (clean name, default worker and database names) are
// filled by the resolver, not here.
type PortfolioDomain struct {
	Name            string                    `yaml:"name" validate:"required"`
	WorkerName      string                    `yaml:"worker_name,omitempty" validate:"omitempty,worker_name"`
	DatabaseName    string                    `yaml:"database_name,omitempty" validate:"omitempty,worker_name"`
	DatabaseBinding string                    `yaml:"database_binding,omitempty"`
	ZoneID          string                    `yaml:"zone_id,omitempty" validate:"omitempty,len=32,hexadecimal"`
	Environments    map[string]string         `yaml:"environments,omitempty"`
	Dependencies    []string                  `yaml:"dependencies,omitempty"`
	CORSOrigins     map[string][]string       `yaml:"cors_origins,omitempty"`
	SharedDatabases []types.SharedResourceRef `yaml:"shared_databases,omitempty"`
	SharedSecrets   []types.SharedResourceRef `yaml:"shared_secrets,omitempty"`
}

// Portfolio is the parsed portfolio configuration file
type Portfolio struct {
	Environment           string            `yaml:"environment" validate:"omitempty,oneof=production staging development"`
	Domains               []PortfolioDomain `yaml:"domains" validate:"required,min=1,dive"`
	ParallelLimit         int               `yaml:"parallel_limit,omitempty" validate:"omitempty,min=1,max=10"`
	BatchPause            Duration          `yaml:"batch_pause,omitempty" validate:"omitempty,min=0"`
	PublicSuffixes        []string          `yaml:"public_suffixes,omitempty"`
	SkipSubdomainPatterns []string          `yaml:"skip_subdomain_patterns,omitempty"`
}

// newPortfolioValidator registers the custom tag used by domain entries
func newPortfolioValidator() *validator.Validate {
	v := validator.New()
	// worker_name: lowercase alphanumerics and hyphens, as the provider
	// requires for worker and database names
	_ = v.RegisterValidation("worker_name", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
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
	})
	return v
}

// LoadPortfolio reads and validates a portfolio file. It returns the
// parsed portfolio plus non-fatal warnings; a structural or referential
// problem returns an error instead.
func LoadPortfolio(path string) (*Portfolio, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read portfolio file: %w", err)
	}
	return ParsePortfolio(data)
}

// ParsePortfolio parses portfolio YAML content and applies defaults
func ParsePortfolio(data []byte) (*Portfolio, []string, error) {
	var p Portfolio
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, nil, fmt.Errorf("parse portfolio file: %w", err)
	}

	if p.ParallelLimit == 0 {
		p.ParallelLimit = DefaultParallelLimit
	}
	if p.BatchPause == 0 {
		p.BatchPause = Duration(DefaultBatchPause)
	}

	if err := newPortfolioValidator().Struct(&p); err != nil {
		return nil, nil, fmt.Errorf("portfolio validation: %w", err)
	}

	warnings, err := p.check()
	if err != nil {
		return nil, nil, err
	}
	return &p, warnings, nil
}

// check enforces referential consistency and collects warnings
func (p *Portfolio) check() ([]string, error) {
	var warnings []string

	names := make(map[string]bool, len(p.Domains))
	for _, d := range p.Domains {
		if names[d.Name] {
			return nil, fmt.Errorf("duplicate domain %q in portfolio", d.Name)
		}
		names[d.Name] = true
	}

	for _, d := range p.Domains {
		for _, dep := range d.Dependencies {
			if dep == d.Name {
				return nil, fmt.Errorf("domain %q depends on itself", d.Name)
			}
			if !names[dep] {
				return nil, fmt.Errorf("domain %q depends on %q, which is not in the portfolio", d.Name, dep)
			}
		}
		for _, ref := range append(append([]types.SharedResourceRef{}, d.SharedDatabases...), d.SharedSecrets...) {
			for _, peer := range ref.SharedWith {
				if peer != d.Name && !names[peer] {
					warnings = append(warnings,
						fmt.Sprintf("domain %s shares %s with %s, which is not in the portfolio", d.Name, ref.Name, peer))
				}
			}
		}
		for env := range d.Environments {
			if !types.Environment(env).Valid() {
				return nil, fmt.Errorf("domain %q declares unknown environment %q", d.Name, env)
			}
		}
		for env := range d.CORSOrigins {
			if !types.Environment(env).Valid() {
				return nil, fmt.Errorf("domain %q declares cors_origins for unknown environment %q", d.Name, env)
			}
		}
	}

	if p.ParallelLimit > ParallelWarnThreshold {
		warnings = append(warnings,
			fmt.Sprintf("parallel_limit %d may trigger provider rate limiting (recommended <= %d)",
				p.ParallelLimit, ParallelWarnThreshold))
	}
	return warnings, nil
}

// DomainNames returns the configured domain names in file order
func (p *Portfolio) DomainNames() []string {
	names := make([]string, len(p.Domains))
	for i, d := range p.Domains {
		names[i] = d.Name
	}
	return names
}

// Domain returns the entry for name, or nil
func (p *Portfolio) Domain(name string) *PortfolioDomain {
	for i := range p.Domains {
		if p.Domains[i].Name == name {
			return &p.Domains[i]
		}
	}
	return nil
}

// EnvironmentURLs converts the per-entry URL map into the typed form
func (d *PortfolioDomain) EnvironmentURLs() types.EnvironmentURLs {
	return types.EnvironmentURLs{
		Production:  d.Environments[string(types.EnvProduction)],
		Staging:     d.Environments[string(types.EnvStaging)],
		Development: d.Environments[string(types.EnvDevelopment)],
	}
}
