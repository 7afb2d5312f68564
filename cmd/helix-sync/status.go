package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessaline/helix-sync/internal/sync"
)

// newStatusCmd builds the status subcommand: runs FindChanges and reports
// the plan without applying anything.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what a sync run would change",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context())
		},
	}
}

func runStatus(ctx context.Context) error {
	ctx = shutdownContext(ctx, cliCtx.Logger)

	engine, err := openEngine(true)
	if err != nil {
		return err
	}
	defer engine.Close()

	plan, err := engine.FindChanges(ctx)
	if err != nil {
		return fmt.Errorf("finding changes: %w", err)
	}

	if plan.Total == 0 {
		cliCtx.Statusf("nothing to do\n")
		return nil
	}

	printPlan(os.Stdout, plan)

	return nil
}

// openEngine opens the Engine for the configured pair. whatIf forces
// dry-run mode regardless of the configured safety.dry_run setting, since
// status never mutates anything either way.
func openEngine(whatIf bool) (*sync.Engine, error) {
	cfg := cliCtx.Config()

	return sync.Open(cfg.Pair.DecryptedRoot, cfg.Pair.EncryptedRoot, sync.OpenOptions{
		CaseSensitive: cfg.Pair.CaseSensitive,
		WhatIf:        whatIf || cfg.Safety.DryRun,
		Codec:         unimplementedCodec{},
		NameEncoder:   unimplementedNameEncoder{},
		Logger:        cliCtx.Logger,
	})
}
