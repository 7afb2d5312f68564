package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are treated as fatal errors with "did you
// mean?" suggestions — this strictness is deliberate because silently
// ignoring a typo in a config file leads to hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values. This supports the zero-config
// first-run experience: users can start without creating a config file.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain: defaults ->
// config file -> environment variables -> CLI flags. It returns a fully
// validated Config along with the file path it read, ready for use. The
// precedence order ensures CLI flags always win, matching user expectations
// for one-off overrides without editing the config file. The returned path
// is also what a later reload (e.g. on SIGHUP) should re-read, since env
// and CLI overrides for the path itself do not change for the life of the
// process.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, string, error) {
	// 1. Resolve config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := resolveFrom(cfgPath, env, cli)
	if err != nil {
		return nil, "", err
	}

	return cfg, cfgPath, nil
}

// ReloadFrom re-applies the same override chain as Resolve against an
// already-resolved config path, without re-resolving the path itself. It is
// what a running process calls on SIGHUP to pick up edits to its config
// file.
func ReloadFrom(cfgPath string, env EnvOverrides, cli CLIOverrides) (*Config, error) {
	return resolveFrom(cfgPath, env, cli)
}

func resolveFrom(cfgPath string, env EnvOverrides, cli CLIOverrides) (*Config, error) {
	// 2. Load config file (returns defaults if no file exists)
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	// 3. Apply env overrides
	if env.LogLevel != "" {
		cfg.Logging.LogLevel = env.LogLevel
	}

	// 4. Apply CLI overrides (pointer fields: nil = not specified)
	if cli.LogLevel != "" {
		cfg.Logging.LogLevel = cli.LogLevel
	}

	if cli.DryRun != nil {
		cfg.Safety.DryRun = *cli.DryRun
	}

	// 5. Validate the final resolved config
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}
