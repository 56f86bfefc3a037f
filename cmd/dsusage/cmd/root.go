/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ssargent/dsusage/pkg/config"
	"github.com/ssargent/dsusage/pkg/di"
	"github.com/ssargent/dsusage/pkg/logging"
)

type configKey struct{}

var container *di.Container

// SetContainer injects the dependency container
func SetContainer(c *di.Container) {
	container = c
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dsusage",
	Short: "dsusage - data streams feature usage",
	Long: `dsusage computes data streams feature usage from a cluster state description,
encodes it in the versioned transport format, renders it, keeps a snapshot history
and serves it over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		logger, err := logging.New(cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		logging.SetGlobal(logger)
		logging.Debug("configuration loaded", zap.String("transport_version", cfg.Transport.Version))

		cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/dsusage/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (debug, info, warn, error)")
}

// configPath returns the --config flag or the default location
func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	return path
}

// loadConfig reads the config file, falling back to defaults when there is none
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath(cmd)
	if !config.ConfigExists(path) {
		return config.DefaultConfig(), nil
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// configFrom returns the config loaded by the root command
func configFrom(cmd *cobra.Command) *config.Config {
	if cfg, ok := cmd.Context().Value(configKey{}).(*config.Config); ok {
		return cfg
	}
	return config.DefaultConfig()
}
