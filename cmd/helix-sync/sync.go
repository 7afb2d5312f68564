package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessaline/helix-sync/internal/config"
	"github.com/tessaline/helix-sync/internal/sync"
)

var (
	flagForce bool
	flagWatch bool
)

// newSyncCmd builds the sync subcommand: finds changes and applies them in
// dependency order, stopping only a run that trips the big-delete safety
// threshold unless --force is given.
func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the decrypted tree and its encrypted mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagWatch {
				return runWatch(cmd.Context(), cliCtx.Config().Pair.DecryptedRoot, cliCtx.Config().Pair.EncryptedRoot)
			}

			return runSync(shutdownContext(cmd.Context(), cliCtx.Logger))
		},
	}

	cmd.Flags().BoolVar(&flagForce, "force", false, "apply even if the plan trips the big-delete safety threshold")
	cmd.Flags().BoolVar(&flagWatch, "watch", false, "keep running, re-syncing whenever either root changes")

	return cmd
}

func runSync(ctx context.Context) error {
	engine, err := openEngine(false)
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

	if !flagForce && tripsBigDelete(plan, cliCtx.Config().Safety) {
		return fmt.Errorf("plan removes %d items, exceeding the big-delete safety threshold; rerun with --force to proceed", plan.Removed+plan.Purged)
	}

	applied, failed := 0, 0

	for _, item := range plan.Items {
		if ctx.Err() != nil {
			break
		}

		result := engine.TrySync(ctx, item)
		if result.Err != nil {
			failed++
			cliCtx.Statusf("failed %s: %v\n", item.DecrFileName, result.Err)

			continue
		}

		if result.Applied {
			applied++
		}
	}

	fmt.Fprintf(os.Stdout, "%d applied, %d failed, %d total\n", applied, failed, plan.Total)

	if failed > 0 {
		return fmt.Errorf("sync completed with %d failed item(s)", failed)
	}

	return nil
}

// tripsBigDelete reports whether the plan's combined remove+purge count,
// once it reaches the minimum item count, crosses either the absolute or
// the percentage safety threshold — a plan below both bounds is allowed
// through without confirmation.
func tripsBigDelete(plan sync.Plan, cfg config.SafetyConfig) bool {
	destructive := plan.Removed + plan.Purged
	if destructive < cfg.BigDeleteMinItems {
		return false
	}

	if destructive >= cfg.BigDeleteThreshold {
		return true
	}

	if plan.Total == 0 {
		return false
	}

	percentage := destructive * 100 / plan.Total

	return percentage >= cfg.BigDeletePercentage
}
