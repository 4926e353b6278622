package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/busdemo/internal/core"
	"github.com/jmylchreest/busdemo/internal/model"
)

var pruneOpts struct {
	olderThan string
	keep      int
	dryRun    bool
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old calls from the call log",
	Long: `Remove old calls from the persistent call log.

Without flags the history.prune_older_than and history.keep settings from
the config file apply.

Examples:
  # Remove calls older than 7 days
  busdemo prune --older-than 7d

  # Keep only the 100 most recent calls
  busdemo prune --keep 100

  # Preview what would be removed (dry run)
  busdemo prune --older-than 48h --dry-run`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().StringVar(&pruneOpts.olderThan, "older-than", "",
		"Remove calls older than this duration (e.g., 48h, 7d, 1w)")
	pruneCmd.Flags().IntVar(&pruneOpts.keep, "keep", 0,
		"Keep only the N most recent calls (0=unlimited)")
	pruneCmd.Flags().BoolVar(&pruneOpts.dryRun, "dry-run", false,
		"Show what would be removed without actually removing")
}

func runPrune(cmd *cobra.Command, args []string) error {
	if err := requireHistory(); err != nil {
		return err
	}

	olderThan := cfg.History.PruneOlderThan.Duration()
	keep := cfg.History.Keep
	if cmd.Flags().Changed("older-than") || cmd.Flags().Changed("keep") {
		olderThan, keep = 0, pruneOpts.keep
		if pruneOpts.olderThan != "" {
			var err error
			olderThan, err = core.ParseDuration(pruneOpts.olderThan)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
		}
	}
	if olderThan == 0 && keep == 0 {
		return fmt.Errorf("specify --older-than or --keep")
	}

	records := historyStore.All()
	if len(records) == 0 {
		fmt.Println("No calls in history")
		return nil
	}

	toRemove := pruneCandidates(records, olderThan, keep, time.Now())
	if len(toRemove) == 0 {
		fmt.Println("No calls to remove")
		return nil
	}

	if pruneOpts.dryRun {
		fmt.Printf("Would remove %d call(s):\n", len(toRemove))
		for i, r := range toRemove {
			if i >= 10 {
				fmt.Printf("  ... and %d more\n", len(toRemove)-10)
				break
			}
			fmt.Printf("  - [%s] %s %s (%s)\n", r.Kind, r.Member, r.State, r.RelativeTime())
		}
		return nil
	}

	removed, err := historyStore.Prune(olderThan, keep)
	if err != nil {
		return fmt.Errorf("failed to prune call log: %w", err)
	}

	fmt.Printf("Removed %d call(s)\n", removed)
	return nil
}

// pruneCandidates returns, newest first, the records a prune with these
// settings would remove.
func pruneCandidates(records []model.CallRecord, olderThan time.Duration, keep int, now time.Time) []model.CallRecord {
	core.Sort(records, core.SortOptions{
		Field: core.SortByStarted,
		Order: core.SortDesc,
	})

	cutoff := now.Add(-olderThan)
	var kept, removed []model.CallRecord
	for _, r := range records {
		if olderThan > 0 && r.StartedAt.Before(cutoff) {
			removed = append(removed, r)
			continue
		}
		if keep > 0 && len(kept) >= keep {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	return removed
}
