package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessaline/helix-sync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIContext carries the resolved configuration and global flags through
// to every subcommand. Built once in PersistentPreRunE. Config is held
// behind a Holder rather than a bare pointer so a SIGHUP reload (wired in
// watch.go for the long-running --watch loop) can swap it out while other
// goroutines are mid-read.
type CLIContext struct {
	Holder *config.Holder
	env    config.EnvOverrides
	cli    config.CLIOverrides
	Quiet  bool
	JSON   bool
	Logger *slog.Logger
}

// Config returns the current resolved configuration.
func (cc *CLIContext) Config() *config.Config {
	return cc.Holder.Config()
}

// ReloadConfig re-reads the config file at the Holder's path and swaps the
// result in, re-applying the same env/CLI overrides captured at process
// startup. Called on SIGHUP by watch.go's long-running sync loop.
func (cc *CLIContext) ReloadConfig() error {
	return reloadConfig(cc.Holder, cc.env, cc.cli)
}

// Global persistent flags, bound in newRootCmd.
var (
	flagConfigPath string
	flagDryRun     bool
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// cliCtx holds the effective configuration and logger built by
// PersistentPreRunE, available to every subcommand's RunE.
var cliCtx *CLIContext

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "helix-sync",
		Short:   "Three-way sync between a decrypted tree and its encrypted mirror",
		Long:    "helix-sync reconciles a plaintext directory tree against an encrypted, flat mirror using a persisted sync log as the source of truth for prior state.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadCLIContext(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "simulate the run without touching disk")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newSyncCmd())

	return cmd
}

// loadCLIContext resolves the effective configuration from the override
// chain and stores it, along with a configured logger, in cliCtx.
func loadCLIContext(cmd *cobra.Command) error {
	env := config.ReadEnvOverrides()

	cli := config.CLIOverrides{ConfigPath: flagConfigPath}
	if cmd.Flags().Changed("dry-run") {
		cli.DryRun = &flagDryRun
	}

	cfg, path, err := config.Resolve(env, cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cliCtx = &CLIContext{
		Holder: config.NewHolder(cfg, path),
		env:    env,
		cli:    cli,
		Quiet:  flagQuiet,
		JSON:   flagJSON,
		Logger: buildLogger(cfg),
	}

	return nil
}

// reloadConfig re-resolves the config file at the Holder's path and swaps
// it in. The env/CLI overrides captured at startup (everything but the
// path itself) are re-applied on every reload so a SIGHUP-ed --dry-run
// flag, for instance, still wins over whatever the edited file says.
func reloadConfig(h *config.Holder, env config.EnvOverrides, cli config.CLIOverrides) error {
	cfg, err := config.ReloadFrom(h.Path(), env, cli)
	if err != nil {
		return err
	}

	h.Update(cfg)

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo

	switch cfg.Logging.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
