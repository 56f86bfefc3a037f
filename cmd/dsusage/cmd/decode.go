/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/dsusage/pkg/usage"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode [hex]",
	Short: "Decode a wire-form usage report",
	Long: `Decode a data streams usage report that was encoded for a transport version
and print its rendered form.

Examples:
  dsusage decode 0c646174615f73747265616d7301010a19030207
  dsusage decode --file usage.bin --input raw --version 8.15.0 --output yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")

		version, err := resolveVersion(cmd)
		if err != nil {
			return err
		}

		var raw []byte
		switch {
		case len(args) == 1 && file != "":
			return errors.New("pass either a hex argument or --file, not both")
		case len(args) == 1:
			raw = []byte(args[0])
			input = formatHex
		case file != "":
			if raw, err = readInput(cmd, file); err != nil {
				return err
			}
		default:
			return errors.New("nothing to decode: pass a hex argument or --file")
		}

		data, err := parseWire(raw, input)
		if err != nil {
			return err
		}

		u, err := usage.Unmarshal(data, version)
		if err != nil {
			if usage.IsMalformed(err) {
				return fmt.Errorf("malformed usage report for version %s: %w", version, err)
			}
			return err
		}

		return writeDocument(cmd, u.Render(), output)
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().String("file", "", "File holding the encoded report (- for stdin)")
	decodeCmd.Flags().String("input", formatHex, "Input format for --file: hex or raw")
	decodeCmd.Flags().String("version", "", "Transport version the report was encoded for (default from config)")
	decodeCmd.Flags().StringP("output", "o", formatJSON, "Output format: json or yaml")
}
