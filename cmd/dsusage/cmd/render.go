/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ssargent/dsusage/pkg/codec"
	"github.com/ssargent/dsusage/pkg/collector"
	"github.com/ssargent/dsusage/pkg/usage"
)

// renderCmd represents the render command
var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render usage computed from a cluster state file",
	Long: `Collect data streams usage from a cluster state file and print the rendered report.
With --version the counters a peer on that version would not receive are shown as zero.

Examples:
  dsusage render --state ./cluster-state.yaml
  dsusage render --output yaml --version 8.15.0`,
	RunE: func(cmd *cobra.Command, args []string) error {
		statePath, _ := cmd.Flags().GetString("state")
		output, _ := cmd.Flags().GetString("output")
		statsOnly, _ := cmd.Flags().GetBool("stats-only")

		if statePath == "" {
			statePath = configFrom(cmd).Cluster.StatePath
		}
		state, err := collector.LoadState(statePath)
		if err != nil {
			return err
		}

		stats := collector.Collect(state)
		if raw, _ := cmd.Flags().GetString("version"); raw != "" {
			version, err := resolveVersion(cmd)
			if err != nil {
				return err
			}
			stats = codec.MaskForVersion(stats, version)
		}

		if statsOnly {
			return writeDocument(cmd, codec.RenderStats(stats), output)
		}
		return writeDocument(cmd, usage.NewDataStreamsUsage(stats).Render(), output)
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().String("state", "", "Cluster state file (default from config)")
	renderCmd.Flags().String("version", "", "Show the report as a peer on this transport version sees it")
	renderCmd.Flags().StringP("output", "o", formatJSON, "Output format: json or yaml")
	renderCmd.Flags().Bool("stats-only", false, "Render only the data stream counters, without the feature envelope")
}
