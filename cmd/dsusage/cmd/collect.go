/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ssargent/dsusage/pkg/config"
	"github.com/ssargent/dsusage/pkg/logging"
	"github.com/ssargent/dsusage/pkg/reporter"
	"github.com/ssargent/dsusage/pkg/storage"
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect usage once and store a snapshot",
	Long: `Collect data streams usage from the cluster state file, store it in the snapshot
history and print the report.

Examples:
  dsusage collect
  dsusage collect --state ./cluster-state.yaml --no-store -o yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		statePath, _ := cmd.Flags().GetString("state")
		output, _ := cmd.Flags().GetString("output")
		noStore, _ := cmd.Flags().GetBool("no-store")

		cfg := configFrom(cmd)
		if statePath == "" {
			statePath = cfg.Cluster.StatePath
		}

		repCfg := reporter.Config{
			Logger: logging.Named("reporter"),
			Retain: cfg.Reporting.Retain,
		}
		if !noStore {
			store, err := openSnapshotStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			repCfg.Sink = store
		}

		rep, err := reporter.New(reporter.FileSource(statePath), repCfg).Report(cmd.Context())
		if err != nil {
			return err
		}

		if !rep.ID.IsNil() {
			cmd.Printf("Snapshot %s\n", rep.ID)
		}
		return writeDocument(cmd, rep.Usage.Render(), output)
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)
	collectCmd.Flags().String("state", "", "Cluster state file (default from config)")
	collectCmd.Flags().StringP("output", "o", formatJSON, "Output format: json or yaml")
	collectCmd.Flags().Bool("no-store", false, "Do not store the report in the snapshot history")
}

// snapshotDir is where the snapshot history lives inside the data directory
func snapshotDir(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "snapshots")
}

// openSnapshotStore opens the snapshot history through the dependency container
func openSnapshotStore(cfg *config.Config) (*storage.SnapshotStore, error) {
	if container == nil {
		return nil, errors.New("dependency container not initialized")
	}
	version, err := cfg.TransportVersion()
	if err != nil {
		return nil, err
	}
	return container.GetStoreOpener()(snapshotDir(cfg), version)
}
