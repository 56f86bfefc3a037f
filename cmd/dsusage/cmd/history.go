/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"

	"github.com/ssargent/dsusage/pkg/storage"
)

const formatTable = "table"

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history [snapshot-id]",
	Short: "Show stored usage snapshots",
	Long: `List the stored usage snapshots, newest first, or show a single snapshot.

Examples:
  dsusage history --limit 5
  dsusage history 2mMvxyY6WP4u1bq2hqwjkSC4cGQ -o yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		output, _ := cmd.Flags().GetString("output")

		store, err := openSnapshotStore(configFrom(cmd))
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 1 {
			id, err := ksuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid snapshot id %q: %w", args[0], err)
			}
			snap, err := store.Get(id)
			if err != nil {
				return err
			}
			if output == formatTable {
				return outputSnapshotsTable(cmd, []storage.Snapshot{*snap})
			}
			return writeDocument(cmd, snap.Usage.Render(), output)
		}

		snaps, err := store.List(limit)
		if err != nil {
			return err
		}
		if output != formatTable {
			return fmt.Errorf("listing supports only table output, got %q", output)
		}
		return outputSnapshotsTable(cmd, snaps)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 10, "Maximum number of snapshots to list (0 for all)")
	historyCmd.Flags().StringP("output", "o", formatTable, "Output format: table, json or yaml (json and yaml need a snapshot id)")
}

// outputSnapshotsTable prints snapshots as a table
func outputSnapshotsTable(cmd *cobra.Command, snaps []storage.Snapshot) error {
	if len(snaps) == 0 {
		cmd.Println("No snapshots found")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "ID\tTAKEN\tVERSION\tSTREAMS\tINDICES\tFS EXPLICIT\tFS EFFECTIVE\tFS INDICES")
	for _, snap := range snaps {
		s := snap.Usage.Stats
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			snap.ID,
			snap.Time().Format(time.RFC3339),
			snap.Version,
			s.TotalDataStreamCount,
			s.IndicesBehindDataStream,
			s.FailureStoreExplicitlyEnabledCount,
			s.FailureStoreEffectivelyEnabledCount,
			s.FailureStoreIndicesCount,
		)
	}

	return w.Flush()
}
