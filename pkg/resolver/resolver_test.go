package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drydock-sh/drydock/pkg/types"
)

func TestCleanName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"api.example.com", "api-example-com"},
		{"Shop.Example.COM", "shop-example-com"},
		{"a_b.example.com", "a-b-example-com"},
		{"-dash.example.com-", "dash-example-com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanName(tt.in), tt.in)
	}
}

func TestValidFormat(t *testing.T) {
	valid := []string{
		"api.example.com",
		"a.co",
		"sub.domain.example.co.uk",
		"xn--punycode.example.com",
	}
	invalid := []string{
		"",
		"localhost",
		"no-tld",
		"UPPER.example.com",
		"-lead.example.com",
		"trail-.example.com",
		"space in.example.com",
		"münchen.example.com",
	}
	for _, d := range valid {
		assert.True(t, ValidFormat(d), d)
	}
	for _, d := range invalid {
		assert.False(t, ValidFormat(d), d)
	}
}

func TestResolveDefaults(t *testing.T) {
	r := New()

	cfg, err := r.Resolve("api.example.com", nil)
	require.NoError(t, err)

	assert.Equal(t, "api-example-com", cfg.CleanName)
	assert.Equal(t, "api-example-com-data-service", cfg.WorkerName)
	assert.Empty(t, cfg.DatabaseName, "database name is derived per environment unless overridden")
	assert.Equal(t, "DB", cfg.DatabaseBinding)
	assert.Equal(t, "https://api.example.com", cfg.Environments.Production)
	assert.Equal(t, "https://staging.api.example.com", cfg.Environments.Staging)
	assert.Equal(t, "https://dev.api.example.com", cfg.Environments.Development)
}

func TestResolveCaches(t *testing.T) {
	r := New()

	first, err := r.Resolve("api.example.com", nil)
	require.NoError(t, err)
	second, err := r.Resolve("api.example.com", &Overrides{WorkerName: "ignored"})
	require.NoError(t, err)

	assert.Same(t, first, second, "cached resolution must return the same config")
	assert.Equal(t, "api-example-com-data-service", second.WorkerName)
}

func TestResolveOverrides(t *testing.T) {
	r := New()

	cfg, err := r.Resolve("shop.example.com", &Overrides{
		WorkerName:   "shop-worker",
		DatabaseName: "shop-db",
		ZoneID:       "0123456789abcdef0123456789abcdef",
		Dependencies: []string{"api.example.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, "shop-worker", cfg.WorkerName)
	assert.Equal(t, "shop-db", cfg.DatabaseName)
	assert.Equal(t, []string{"api.example.com"}, cfg.Dependencies)
}

func TestResolveRejectsBadOverrideNames(t *testing.T) {
	r := New()

	_, err := r.Resolve("api.example.com", &Overrides{WorkerName: "Has Spaces"})
	assert.Error(t, err)
}

func TestResolveRejectsInvalidDomain(t *testing.T) {
	r := New()

	_, err := r.Resolve("not a domain", nil)
	assert.Error(t, err)

	_, err = r.ResolveMany([]string{"good.example.com", "bad domain"})
	assert.Error(t, err)
}

func TestResolveSkipSubdomainPatterns(t *testing.T) {
	r := New()
	r.SkipSubdomainPatterns = []string{"*.workers.dev"}

	cfg, err := r.Resolve("shop.workers.dev", nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Environments.Staging, "synthetic subdomains get no derived environment URLs")

	normal, err := r.Resolve("shop.example.com", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, normal.Environments.Staging)
}

func TestRootDomain(t *testing.T) {
	r := New()
	r.PublicSuffixes = []string{"co.uk"}

	tests := []struct {
		in      string
		want    string
		certain bool
	}{
		{"example.com", "example.com", true},
		{"api.example.com", "example.com", true},
		{"a.b.example.com", "example.com", true},
		{"shop.example.co.uk", "example.co.uk", true},
		{"shop.example.co.jp", "co.jp", false},
	}
	for _, tt := range tests {
		root, certain := r.RootDomain(tt.in)
		assert.Equal(t, tt.want, root, tt.in)
		assert.Equal(t, tt.certain, certain, tt.in)
	}
}

func TestValidatePrerequisites(t *testing.T) {
	t.Setenv("CLOUDFLARE_API_TOKEN", "tok")
	t.Setenv("CLOUDFLARE_ACCOUNT_ID", "acct")
	t.Setenv("CLOUDFLARE_ZONE_ID", "zone")
	t.Setenv("ENVIRONMENT", "staging")

	r := New()

	v := r.ValidatePrerequisites("api.example.com")
	assert.True(t, v.Valid)
	assert.Empty(t, v.Issues)
	assert.Empty(t, v.Warnings)

	v = r.ValidatePrerequisites("münchen.example.com")
	assert.False(t, v.Valid)
	require.NotEmpty(t, v.Issues)
	assert.Contains(t, v.Issues[0], "non-ASCII")

	v = r.ValidatePrerequisites("localhost")
	assert.True(t, v.Valid, "loopback warns but does not fail")
	assert.NotEmpty(t, v.Warnings)
}

func TestValidatePrerequisitesMissingCredentials(t *testing.T) {
	t.Setenv("CLOUDFLARE_API_TOKEN", "")
	t.Setenv("CLOUDFLARE_ACCOUNT_ID", "")
	t.Setenv("CLOUDFLARE_ZONE_ID", "")
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("NODE_ENV", "")

	r := New()
	v := r.ValidatePrerequisites("api.example.com")
	assert.True(t, v.Valid, "missing credentials warn but never fail validation")
	assert.Len(t, v.Warnings, 4)
}

func TestTargetEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("NODE_ENV", "production")
	assert.Equal(t, types.EnvProduction, TargetEnvironment())

	t.Setenv("ENVIRONMENT", "staging")
	assert.Equal(t, types.EnvStaging, TargetEnvironment())

	t.Setenv("ENVIRONMENT", "")
	t.Setenv("NODE_ENV", "")
	assert.Empty(t, string(TargetEnvironment()))
}
