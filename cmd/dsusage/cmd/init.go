/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/dsusage/pkg/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with a generated API key",
	Long: `Create the dsusage configuration file and data directory.

This command will:
- Write a config file with defaults and a freshly generated API key
- Create the data directory that holds the snapshot history

Examples:
  dsusage init
  dsusage init --config ./dsusage.yaml --data-dir ./data --print-key`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		force, _ := cmd.Flags().GetBool("force")
		printKey, _ := cmd.Flags().GetBool("print-key")

		path := configPath(cmd)
		if config.ConfigExists(path) && !force {
			cmd.Printf("Configuration already exists at %s. Use --force to overwrite.\n", path)
			return nil
		}

		cfg, err := config.BootstrapConfig(path, dataDir)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		cmd.Printf("Configuration created at %s\n", path)
		cmd.Printf("Data directory: %s\n", cfg.DataDir)
		if printKey {
			cmd.Printf("API key: %s\n", cfg.Security.APIKey)
		}
		cmd.Printf("\nStart the server with:\n  dsusage serve --config %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().String("data-dir", "./data", "Data directory for the snapshot history")
	initCmd.Flags().Bool("force", false, "Overwrite an existing configuration")
	initCmd.Flags().Bool("print-key", false, "Print the generated API key")
}
