package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// configFilePermissions is the standard permission mode for config files.
// Owner read/write, group and others read-only.
const configFilePermissions = 0o644

// configDirPermissions is the standard permission mode for config directories.
const configDirPermissions = 0o755

// configTemplate is the default config file content written on first use.
// All settings are present as commented-out defaults so users can discover
// every option without reading docs.
const configTemplate = `# helix-sync configuration

# ── Directory pair ──
[pair]
# decrypted_root = "/home/user/vault"
# encrypted_root = "/home/user/vault.encrypted"
# case_sensitive = true

# ── Safety ──
[safety]
# big_delete_threshold = 1000
# big_delete_percentage = 50
# big_delete_min_items = 10
# dry_run = false
# sync_dir_permissions = "0700"
# sync_file_permissions = "0600"

# ── Logging ──
[logging]
# log_level = "info"
# log_file = ""
# log_format = "auto"
`

// CreateConfig writes the default config template to path if no config file
// exists there yet. The write is atomic (temp file + rename) and parent
// directories are created as needed.
func CreateConfig(path string) error {
	slog.Info("creating config file", "path", path)

	return atomicWriteFile(path, []byte(configTemplate))
}

// atomicWriteFile writes data to a temporary file in the same directory as
// path, then renames it to the target path. This prevents partial writes
// from corrupting the config file on crash. Parent directories are created
// as needed. Files are created with configFilePermissions (0644).
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	// Clean up the temp file on any error path.
	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
