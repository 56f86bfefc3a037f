/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/dsusage/pkg/codec"
	"github.com/ssargent/dsusage/pkg/transport"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatHex  = "hex"
	formatRaw  = "raw"
)

// readInput reads a file, or stdin when path is "-"
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// resolveVersion parses the --version flag, defaulting to the configured version
func resolveVersion(cmd *cobra.Command) (transport.Version, error) {
	raw, _ := cmd.Flags().GetString("version")
	if raw == "" {
		return configFrom(cmd).TransportVersion()
	}
	return transport.Parse(raw)
}

// writeDocument prints a rendered document as JSON or YAML
func writeDocument(cmd *cobra.Command, doc *codec.Document, format string) error {
	out := cmd.OutOrStdout()
	switch format {
	case formatJSON:
		data, err := doc.MarshalJSON()
		if err != nil {
			return fmt.Errorf("failed to render document: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case formatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to render document: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q (want json or yaml)", format)
	}
}

// writeWire prints encoded bytes as hex or raw
func writeWire(cmd *cobra.Command, data []byte, format string) error {
	out := cmd.OutOrStdout()
	switch format {
	case formatHex:
		_, err := fmt.Fprintln(out, hex.EncodeToString(data))
		return err
	case formatRaw:
		_, err := out.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported wire format %q (want hex or raw)", format)
	}
}

// parseWire turns hex or raw input into bytes
func parseWire(data []byte, format string) ([]byte, error) {
	switch format {
	case formatHex:
		decoded, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("invalid hex input: %w", err)
		}
		return decoded, nil
	case formatRaw:
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported wire format %q (want hex or raw)", format)
	}
}
