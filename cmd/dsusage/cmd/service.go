/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const unitTemplate = `[Unit]
Description=dsusage data streams usage reporter
After=network-online.target
Wants=network-online.target

[Service]
User=%s
Group=%s
ExecStart=%s serve --config %s
Restart=on-failure
NoNewPrivileges=true
UMask=0077
ReadWritePaths=%s
ReadOnlyPaths=%s

[Install]
WantedBy=multi-user.target
`

// serviceCmd represents the service command
var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Run dsusage as a systemd service",
	Long: `Helpers for running dsusage under systemd.

The generated unit runs 'dsusage serve' with the given config file, restarts it on
failure and only lets it write to its data directory.`,
}

// unitServiceCmd represents the service unit command
var unitServiceCmd = &cobra.Command{
	Use:   "unit",
	Short: "Print or write a systemd unit for dsusage serve",
	Long: `Generate a systemd unit for 'dsusage serve'.

Examples:
  dsusage service unit --config /etc/dsusage/config.yaml
  sudo dsusage service unit --user dsusage --write /etc/systemd/system/dsusage.service`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		binary, _ := cmd.Flags().GetString("binary")
		writePath, _ := cmd.Flags().GetString("write")

		path, err := filepath.Abs(configPath(cmd))
		if err != nil {
			return fmt.Errorf("invalid config path: %w", err)
		}
		cfg := configFrom(cmd)

		unit := systemdUnit(user, binary, path, cfg.DataDir, cfg.Cluster.StatePath)
		if writePath == "" {
			cmd.Print(unit)
			return nil
		}

		if err := os.WriteFile(writePath, []byte(unit), 0644); err != nil {
			return fmt.Errorf("failed to write unit file: %w", err)
		}
		cmd.Printf("Unit written to %s\n", writePath)
		cmd.Printf("Enable it with:\n  systemctl daemon-reload && systemctl enable --now %s\n", filepath.Base(writePath))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serviceCmd)
	serviceCmd.AddCommand(unitServiceCmd)

	unitServiceCmd.Flags().String("user", "dsusage", "User to run the service as")
	unitServiceCmd.Flags().String("binary", "/usr/local/bin/dsusage", "Path of the installed dsusage binary")
	unitServiceCmd.Flags().String("write", "", "Write the unit to this path instead of printing it")
}

// systemdUnit renders the unit file
func systemdUnit(user, binary, configPath, dataDir, statePath string) string {
	return fmt.Sprintf(unitTemplate, user, user, binary, configPath, dataDir, statePath)
}
