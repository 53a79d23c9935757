package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"convertd/internal/config"
	"convertd/internal/identity"
	"convertd/internal/ledger"
	"convertd/internal/logging"
)

func newStatusCommand(configFlag *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the processed-file ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFlag)
			if err != nil {
				return err
			}
			logger, _, err := logging.New(logging.Options{Level: "warn", NoColor: true})
			if err != nil {
				return err
			}
			store, err := ledger.Open(cfg.Processing.StateDir, logger)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderStatus(store, limit))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries to show (0 for all)")
	return cmd
}

type statusRow struct {
	id    identity.Identity
	entry ledger.Entry
}

func renderStatus(store *ledger.Store, limit int) string {
	snapshot := store.Snapshot()

	rows := make([]statusRow, 0, len(snapshot))
	var dryRuns int
	for id, entry := range snapshot {
		rows = append(rows, statusRow{id: id, entry: entry})
		if entry.DryRun {
			dryRuns++
		}
	}
	// Newest first; identity breaks timestamp ties so output is stable.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].entry.Timestamp != rows[j].entry.Timestamp {
			return rows[i].entry.Timestamp > rows[j].entry.Timestamp
		}
		return rows[i].id < rows[j].id
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	tableRows := make([][]string, 0, len(rows))
	for _, row := range rows {
		converted := humanize.Time(time.Unix(row.entry.Timestamp, 0))
		duration := (time.Duration(row.entry.DurationSeconds) * time.Second).String()
		mode := ""
		if row.entry.DryRun {
			mode = "dry run"
			duration = "-"
		}
		tableRows = append(tableRows, []string{row.id.Short(), converted, duration, mode})
	}

	out := renderTable(
		[]string{"ID", "Converted", "Duration", "Mode"},
		tableRows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	)
	out += fmt.Sprintf("\nProcessed: %d (%d dry run)\nLedger: %s\n", len(snapshot), dryRuns, store.Path())
	return out
}
