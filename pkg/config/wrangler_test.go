package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drydock-sh/drydock/pkg/types"
)

func readTOML(t *testing.T, path string) map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := map[string]interface{}{}
	require.NoError(t, toml.Unmarshal(data, &doc))
	return doc
}

func TestManagerSetAccountID(t *testing.T) {
	m := NewManager(t.TempDir())

	require.NoError(t, m.SetAccountID("abc123"))

	doc := readTOML(t, m.ActivePath())
	assert.Equal(t, "abc123", doc["account_id"])
}

func TestManagerAddDatabaseBindingReplacesSameName(t *testing.T) {
	m := NewManager(t.TempDir())

	require.NoError(t, m.AddDatabaseBinding(types.EnvProduction, DatabaseBinding{
		Binding: "DB", DatabaseName: "shop-db", DatabaseID: "id-1",
	}))
	require.NoError(t, m.AddDatabaseBinding(types.EnvProduction, DatabaseBinding{
		Binding: "DB", DatabaseName: "shop-db", DatabaseID: "id-2",
	}))

	doc := readTOML(t, m.ActivePath())
	env := doc["env"].(map[string]interface{})["production"].(map[string]interface{})
	bindings := env["d1_databases"].([]interface{})
	require.Len(t, bindings, 1, "same binding name must replace, not duplicate")
	b := bindings[0].(map[string]interface{})
	assert.Equal(t, "id-2", b["database_id"])
}

func TestManagerAddDatabaseBindingDefaultsBindingName(t *testing.T) {
	m := NewManager(t.TempDir())

	require.NoError(t, m.AddDatabaseBinding(types.EnvStaging, DatabaseBinding{
		DatabaseName: "shop-db", DatabaseID: "id-1",
	}))

	doc := readTOML(t, m.ActivePath())
	env := doc["env"].(map[string]interface{})["staging"].(map[string]interface{})
	b := env["d1_databases"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "DB", b["binding"])
}

func TestManagerEditsPreserveUnrelatedContent(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	seed := "name = \"existing-worker\"\nmain = \"src/index.js\"\n"
	require.NoError(t, os.WriteFile(m.ActivePath(), []byte(seed), 0644))

	require.NoError(t, m.SetAccountID("acct"))
	require.NoError(t, m.EnsureEnvironment(types.EnvProduction))

	doc := readTOML(t, m.ActivePath())
	assert.Equal(t, "existing-worker", doc["name"])
	assert.Equal(t, "src/index.js", doc["main"])
	assert.Equal(t, "acct", doc["account_id"])
	assert.Contains(t, doc["env"].(map[string]interface{}), "production")
}

func TestGenerateAndCopyCustomerConfig(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	require.NoError(t, os.WriteFile(m.ActivePath(), []byte("name = \"old\"\n"), 0644))

	path, err := m.GenerateCustomerConfig("shop.example.com", CustomerConfigParams{
		AccountID:   "acct",
		Environment: types.EnvProduction,
		WorkerName:  "shop-example-com-data-service",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(m.CustomerDir, "shop.example.com.production.toml"), path)

	require.NoError(t, m.CopyCustomerConfig(path))

	doc := readTOML(t, m.ActivePath())
	assert.Equal(t, "shop-example-com-data-service", doc["name"])

	// Previous active content must survive as a backup
	backups, err := filepath.Glob(m.ActivePath() + ".*.bak")
	require.NoError(t, err)
	require.NotEmpty(t, backups)
	old, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Contains(t, string(old), "old")
}

func TestCopyCustomerConfigRejectsMalformedTOML(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("= not toml"), 0644))

	err := m.CopyCustomerConfig(bad)
	assert.Error(t, err)
	assert.NoFileExists(t, m.ActivePath(), "a malformed config must not be activated")
}
