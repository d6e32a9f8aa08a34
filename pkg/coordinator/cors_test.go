package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drydock-sh/drydock/pkg/types"
)

func corsConfig(name string, origins []string) *types.DomainConfig {
	return &types.DomainConfig{
		Name: name,
		Environments: types.EnvironmentURLs{
			Staging: "https://staging." + name,
		},
		CORSOrigins: map[string][]string{
			string(types.EnvStaging): origins,
		},
	}
}

func TestValidateCORSAllowed(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
	}{
		{"exact", []string{"https://staging.shop.example.com"}},
		{"wildcard", []string{"*"}},
		{"suffix", []string{"*.example.com"}},
		{"bare host", []string{"shop.example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configs := []*types.DomainConfig{
				corsConfig("api.example.com", tt.origins),
				corsConfig("shop.example.com", []string{"*"}),
			}
			assert.Empty(t, ValidateCORS(configs, types.EnvStaging))
		})
	}
}

func TestValidateCORSMismatchWarns(t *testing.T) {
	configs := []*types.DomainConfig{
		corsConfig("api.example.com", []string{"https://app.other.io"}),
		corsConfig("shop.example.com", []string{"*"}),
	}

	warnings := ValidateCORS(configs, types.EnvStaging)
	assert.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "api.example.com")
	assert.Contains(t, warnings[0], "shop.example.com")
}

func TestValidateCORSSkipsUndeclared(t *testing.T) {
	configs := []*types.DomainConfig{
		{Name: "api.example.com", Environments: types.EnvironmentURLs{Staging: "https://staging.api.example.com"}},
		corsConfig("shop.example.com", []string{"*"}),
	}
	assert.Empty(t, ValidateCORS(configs, types.EnvStaging),
		"a domain with no declared origins is not checked")
}

func TestOriginAllows(t *testing.T) {
	assert.True(t, originAllows("*", "https://anything.example.com"))
	assert.True(t, originAllows("https://a.example.com", "https://a.example.com"))
	assert.True(t, originAllows("*.example.com", "https://staging.a.example.com"))
	assert.True(t, originAllows("http://a.example.com", "https://a.example.com"))
	assert.False(t, originAllows("https://a.example.com", "https://b.other.io"))
	assert.False(t, originAllows("*.", "https://a.example.com"))
}
