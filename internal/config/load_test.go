package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrDefault_MissingFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadOrDefault(filepath.Join(dir, "nonexistent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[pair]
decrypted_root = "/vault"
encrypted_root = "/vault.enc"
case_sensitive = true

[safety]
big_delete_threshold = 50
dry_run = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/vault", cfg.Pair.DecryptedRoot)
	assert.Equal(t, "/vault.enc", cfg.Pair.EncryptedRoot)
	assert.True(t, cfg.Pair.CaseSensitive)
	assert.Equal(t, 50, cfg.Safety.BigDeleteThreshold)
	assert.True(t, cfg.Safety.DryRun)
	// Fields left unset in the file retain their defaults.
	assert.Equal(t, defaultLogLevel, cfg.Logging.LogLevel)
}

func TestLoad_UnknownKeyFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	require.NoError(t, os.WriteFile(path, []byte(`
[pair]
decryptedroot = "/vault"
`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
}

func TestLoad_ValidationFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	require.NoError(t, os.WriteFile(path, []byte(`
[logging]
log_level = "verbose"
`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestResolve_CLIOverridesWinOverEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	require.NoError(t, os.WriteFile(path, []byte(`
[logging]
log_level = "warn"
`), 0o600))

	dryRun := true
	cfg, resolvedPath, err := Resolve(
		EnvOverrides{ConfigPath: path, LogLevel: "error"},
		CLIOverrides{LogLevel: "debug", DryRun: &dryRun},
	)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.LogLevel)
	assert.True(t, cfg.Safety.DryRun)
	assert.Equal(t, path, resolvedPath)
}

func TestResolve_NoOverridesUsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	require.NoError(t, os.WriteFile(path, []byte(`
[logging]
log_level = "warn"
`), 0o600))

	cfg, _, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.LogLevel)
	assert.False(t, cfg.Safety.DryRun)
}

func TestReloadFrom_ReappliesOverrideChainAgainstSamePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	require.NoError(t, os.WriteFile(path, []byte(`
[logging]
log_level = "warn"
`), 0o600))

	cfg, resolvedPath, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.LogLevel)

	require.NoError(t, os.WriteFile(path, []byte(`
[logging]
log_level = "debug"
`), 0o600))

	reloaded, err := ReloadFrom(resolvedPath, EnvOverrides{}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "debug", reloaded.Logging.LogLevel, "reload must pick up the edited file")
}
