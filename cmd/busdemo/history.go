package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/busdemo/internal/adapter/output"
	"github.com/jmylchreest/busdemo/internal/core"
	"github.com/jmylchreest/busdemo/internal/model"
	"github.com/jmylchreest/busdemo/internal/store"
)

var historyOpts struct {
	// Filter options
	filter string
	since  string
	kind   string
	mode   string
	failed bool
	search string
	limit  int

	// Sort options
	sortBy    string
	sortOrder string

	// Output options
	template string
	follow   bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query the call log",
	Long: `List the calls recorded in the call log.

Filter expressions are comma-separated field<op>value conditions, all of
which must match. Fields: kind, mode, state, member, dest, path, summary,
error, id, failed, started, duration. Operators: = != ~ ~= > < >= <=.

Examples:
  # Everything from the last hour
  busdemo history --since 1h

  # Failed notifications as JSON
  busdemo history --kind notify --failed --format json

  # Slow introspection calls
  busdemo history --filter "kind=introspect,duration>=500"

  # Print calls as they are recorded by any busdemo process
  busdemo history --follow`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <index|id>",
	Short: "Show one call by 1-based index or id prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)

	// Filter flags
	historyCmd.Flags().StringVar(&historyOpts.filter, "filter", "",
		"Filter expression (e.g., \"kind=notify,failed=true\")")
	historyCmd.Flags().StringVar(&historyOpts.since, "since", "",
		"Show calls from the last duration (e.g., 1h, 7d, 1w)")
	historyCmd.Flags().StringVar(&historyOpts.kind, "kind", "",
		"Filter by kind (notify, introspect, close, caps, info)")
	historyCmd.Flags().StringVar(&historyOpts.mode, "mode", "",
		"Filter by mode (sync, async)")
	historyCmd.Flags().BoolVar(&historyOpts.failed, "failed", false,
		"Only failed calls")
	historyCmd.Flags().StringVarP(&historyOpts.search, "search", "s", "",
		"Search in member, summary and error")
	historyCmd.Flags().IntVarP(&historyOpts.limit, "limit", "n", 0,
		"Maximum number of calls to show (0=unlimited)")

	// Sort flags
	historyCmd.Flags().StringVar(&historyOpts.sortBy, "sort", "started",
		"Sort by field (started, duration, kind)")
	historyCmd.Flags().StringVar(&historyOpts.sortOrder, "order", "desc",
		"Sort order (asc, desc)")

	// Output flags
	historyCmd.Flags().StringVar(&historyOpts.template, "template", "",
		"Custom Go template for dmenu output")
	historyCmd.Flags().BoolVar(&historyOpts.follow, "follow", false,
		"Keep running and print new calls as they are recorded")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if err := requireHistory(); err != nil {
		return err
	}

	records, err := queryHistory(historyStore.All())
	if err != nil {
		return err
	}

	opts := output.DefaultFormatterOptions()
	opts.Template = historyOpts.template
	formatter := newFormatter(opts)
	if err := formatter.Calls(os.Stdout, records); err != nil {
		return err
	}

	if historyOpts.follow {
		return followHistory(formatter)
	}
	return nil
}

// queryHistory applies the filter, search, sort and limit flags.
func queryHistory(records []model.CallRecord) ([]model.CallRecord, error) {
	records, err := filterHistory(records)
	if err != nil {
		return nil, err
	}

	field, err := core.ParseSortField(historyOpts.sortBy)
	if err != nil {
		return nil, err
	}
	order, err := core.ParseSortOrder(historyOpts.sortOrder)
	if err != nil {
		return nil, err
	}
	core.Sort(records, core.SortOptions{Field: field, Order: order})

	if historyOpts.limit > 0 && len(records) > historyOpts.limit {
		records = records[:historyOpts.limit]
	}
	return records, nil
}

// filterHistory applies the filter expression, the shorthand filter flags
// and the search term.
func filterHistory(records []model.CallRecord) ([]model.CallRecord, error) {
	expr, err := core.ParseFilter(historyOpts.filter)
	if err != nil {
		return nil, err
	}

	// The shorthand flags are conditions like any other
	if historyOpts.kind != "" {
		kind, err := core.ParseKind(historyOpts.kind)
		if err != nil {
			return nil, err
		}
		if err := addCondition(expr, "kind="+string(kind)); err != nil {
			return nil, err
		}
	}
	if historyOpts.mode != "" {
		if err := addCondition(expr, "mode="+historyOpts.mode); err != nil {
			return nil, err
		}
	}
	if historyOpts.failed {
		if err := addCondition(expr, "failed=true"); err != nil {
			return nil, err
		}
	}
	if historyOpts.since != "" {
		dur, err := core.ParseDuration(historyOpts.since)
		if err != nil {
			return nil, fmt.Errorf("invalid --since: %w", err)
		}
		if dur > 0 {
			if err := addCondition(expr, "started>="+dur.String()); err != nil {
				return nil, err
			}
		}
	}

	records = core.FilterWithExpr(records, expr)
	return core.Search(records, historyOpts.search), nil
}

func addCondition(expr *core.FilterExpr, cond string) error {
	extra, err := core.ParseFilter(cond)
	if err != nil {
		return err
	}
	expr.Conditions = append(expr.Conditions, extra.Conditions...)
	return nil
}

// followHistory prints finished calls as they reach the log, oldest
// first. Sorting and --limit apply only to the initial listing.
func followHistory(formatter output.Formatter) error {
	ctx, cancel := signalContext()
	defer cancel()

	watcher, err := store.NewFileWatcher(historyStore, historyPath, logger)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer func() { _ = watcher.Stop() }()

	changes := historyStore.Subscribe()
	defer historyStore.Unsubscribe(changes)

	printed := make(map[string]bool)
	for _, r := range historyStore.All() {
		if r.Finished() {
			printed[r.ID] = true
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}

			var fresh []model.CallRecord
			for _, r := range historyStore.All() {
				if r.Finished() && !printed[r.ID] {
					printed[r.ID] = true
					fresh = append(fresh, r)
				}
			}
			fresh, err := filterHistory(fresh)
			if err != nil {
				return err
			}
			if len(fresh) == 0 {
				continue
			}

			core.Sort(fresh, core.SortOptions{Field: core.SortByStarted, Order: core.SortAsc})
			if err := formatter.Calls(os.Stdout, fresh); err != nil {
				return err
			}
		}
	}
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	if err := requireHistory(); err != nil {
		return err
	}

	records := historyStore.All()
	core.Sort(records, core.DefaultSortOptions())

	var rec *model.CallRecord
	if idx, err := strconv.Atoi(args[0]); err == nil && idx > 0 {
		rec = core.LookupByIndex(records, idx)
	} else {
		rec, err = core.LookupByID(records, args[0])
		if err != nil {
			return err
		}
	}
	if rec == nil {
		return fmt.Errorf("no call matches %q", args[0])
	}

	opts := output.DefaultFormatterOptions()
	opts.ShowIndex = false
	return newFormatter(opts).Calls(os.Stdout, []model.CallRecord{*rec})
}
