/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ssargent/dsusage/pkg/collector"
	"github.com/ssargent/dsusage/pkg/logging"
	"github.com/ssargent/dsusage/pkg/usage"
)

// encodeCmd represents the encode command
var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode a usage report in wire form",
	Long: `Encode a data streams usage report for a transport version.

The report comes either from a rendered JSON document (--file) or is collected
from a cluster state file (--state). Fields the version does not carry are dropped.

Examples:
  dsusage encode --file usage.json --version 8.15.0
  dsusage encode --state ./cluster-state.yaml --format raw > usage.bin
  echo '{"data_streams":10,"indices_count":25}' | dsusage encode --file -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		statePath, _ := cmd.Flags().GetString("state")
		format, _ := cmd.Flags().GetString("format")

		version, err := resolveVersion(cmd)
		if err != nil {
			return err
		}

		var u usage.DataStreamsUsage
		switch {
		case file != "" && statePath != "":
			return errors.New("--file and --state are mutually exclusive")
		case file != "":
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			if u, err = usage.ParseJSON(data); err != nil {
				return fmt.Errorf("failed to parse usage document: %w", err)
			}
		default:
			if statePath == "" {
				statePath = configFrom(cmd).Cluster.StatePath
			}
			state, err := collector.LoadState(statePath)
			if err != nil {
				return err
			}
			u = usage.NewDataStreamsUsage(collector.Collect(state))
		}

		data, err := usage.Marshal(u, version)
		if err != nil {
			return fmt.Errorf("failed to encode usage: %w", err)
		}
		logging.Debug("usage encoded", zap.String("transport_version", version.String()), zap.Int("bytes", len(data)))

		return writeWire(cmd, data, format)
	},
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	encodeCmd.Flags().String("file", "", "Rendered JSON usage document to encode (- for stdin)")
	encodeCmd.Flags().String("state", "", "Cluster state file to collect usage from (default from config)")
	encodeCmd.Flags().String("version", "", "Transport version to encode for (default from config)")
	encodeCmd.Flags().String("format", formatHex, "Output format: hex or raw")
}
