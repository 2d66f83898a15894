package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadFromLayersAndDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: db.internal
  name: foco
jwt:
  secret: ${FOCO_TEST_SECRET}
upload:
  max_size_mb: 5
`)
	writeFile(t, dir, "staging.yaml", `
db:
  name: foco_staging
`)
	writeFile(t, dir, "secrets.env", "FOCO_TEST_SECRET=\"from-secrets\"\n")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_NAME", "")

	cfg, err := LoadFrom("staging", dir)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, "foco_staging", cfg.DB.Name)
	assert.Equal(t, "from-secrets", cfg.JWT.Secret)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, "foco_session", cfg.JWT.CookieName)
	assert.Equal(t, int64(5<<20), cfg.MaxUploadBytes())
	assert.Equal(t, 0.5, cfg.Voice.MinConfidence)
	assert.Equal(t, "en", cfg.I18n.DefaultLocale)
}

func TestLoadFromEnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "jwt:\n  secret: file\n")
	t.Setenv("JWT_SECRET", "env")
	t.Setenv("SERVER_PORT", ":9999")

	cfg, err := LoadFrom("local", dir)
	require.NoError(t, err)
	assert.Equal(t, "env", cfg.JWT.Secret)
	assert.Equal(t, ":9999", cfg.Server.Port)
}

func TestLoadFromRequiresSecret(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "db:\n  host: x\n")
	t.Setenv("JWT_SECRET", "")

	_, err := LoadFrom("local", dir)
	assert.Error(t, err)
}

func TestLoadFromMissingBase(t *testing.T) {
	_, err := LoadFrom("local", t.TempDir())
	assert.Error(t, err)
}

func TestLoadFromAdminIDs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
jwt:
  secret: s
admin:
  user_ids:
    - 6f1c2b1e-5d3a-4c1e-9a51-1b2c3d4e5f60
`)
	t.Setenv("JWT_SECRET", "")

	cfg, err := LoadFrom("local", dir)
	require.NoError(t, err)
	require.Len(t, cfg.Admin.IDs(), 1)
	assert.Equal(t, "6f1c2b1e-5d3a-4c1e-9a51-1b2c3d4e5f60", cfg.Admin.IDs()[0].String())

	writeFile(t, dir, "base.yaml", "jwt:\n  secret: s\nadmin:\n  user_ids: [nope]\n")
	_, err = LoadFrom("local", dir)
	assert.Error(t, err)
}
