// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for helix-sync. It supports an
// override chain (defaults -> config file -> environment -> CLI flags) and
// never handles crypto material — key derivation and passphrase prompts
// are the repo-init collaborator's concern, not config's.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Pair    PairConfig    `toml:"pair"`
	Safety  SafetyConfig  `toml:"safety"`
	Logging LoggingConfig `toml:"logging"`
}

// PairConfig describes the decrypted/encrypted directory pair a sync cycle
// operates on and the path-comparison rules applied while walking it.
type PairConfig struct {
	DecryptedRoot string `toml:"decrypted_root"`
	EncryptedRoot string `toml:"encrypted_root"`
	// CaseSensitive overrides the platform default for path comparison.
	// Filesystems vary in case sensitivity, so this must be an explicit
	// per-pair setting rather than a global compiled-in constant.
	CaseSensitive bool `toml:"case_sensitive"`
}

// SafetyConfig controls protective thresholds that guard against a
// misclassified run deleting far more than intended.
type SafetyConfig struct {
	BigDeleteThreshold  int    `toml:"big_delete_threshold"`
	BigDeletePercentage int    `toml:"big_delete_percentage"`
	BigDeleteMinItems   int    `toml:"big_delete_min_items"`
	DryRun              bool   `toml:"dry_run"`
	SyncDirPermissions  string `toml:"sync_dir_permissions"`
	SyncFilePermissions string `toml:"sync_file_permissions"`
}

// LoggingConfig controls log output behavior: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFile   string `toml:"log_file"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value" — this matters because --dry-run=false
// is different from not passing --dry-run at all.
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)
	DryRun     *bool  // --dry-run flag
	LogLevel   string // log level override (cmd/helix-sync registers no flag for it)
}
