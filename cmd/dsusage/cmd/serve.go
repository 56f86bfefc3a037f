/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ssargent/dsusage/pkg/api"
	"github.com/ssargent/dsusage/pkg/collector"
	"github.com/ssargent/dsusage/pkg/logging"
	"github.com/ssargent/dsusage/pkg/reporter"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Collect usage periodically and serve it over HTTP",
	Long: `Start the usage reporter and the REST API server.

The reporter collects usage from the cluster state file every reporting interval
(and on every change of the file when watching is enabled), stores snapshots and
publishes the counters as Prometheus gauges.

Examples:
  dsusage serve
  dsusage serve --port 9400 --bind 0.0.0.0 --api-key mysecretkey
  dsusage serve --state ./cluster-state.yaml --watch=false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configFrom(cmd)

		if cmd.Flags().Changed("port") {
			cfg.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("bind") {
			cfg.Bind, _ = cmd.Flags().GetString("bind")
		}
		if cmd.Flags().Changed("api-key") {
			cfg.Security.APIKey, _ = cmd.Flags().GetString("api-key")
		}
		if cmd.Flags().Changed("state") {
			cfg.Cluster.StatePath, _ = cmd.Flags().GetString("state")
		}
		if cmd.Flags().Changed("watch") {
			cfg.Cluster.Watch, _ = cmd.Flags().GetBool("watch")
		}

		if cfg.Security.APIKey == "" || cfg.Security.APIKey == "auto" {
			return errors.New("no API key configured: run 'dsusage init' or pass --api-key")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		version, err := cfg.TransportVersion()
		if err != nil {
			return err
		}

		logger := logging.Named("serve")

		store, err := openSnapshotStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics := api.NewMetrics(registry)

		source := reporter.FileSource(cfg.Cluster.StatePath)
		var watcher *collector.Watcher
		if cfg.Cluster.Watch {
			watcher, err = collector.NewWatcher(cfg.Cluster.StatePath, logging.Named("watcher"))
			if err != nil {
				return err
			}
			source = reporter.WatcherSource(watcher)
		}

		rep := reporter.New(source, reporter.Config{
			Sink:     store,
			Recorder: metrics,
			Logger:   logging.Named("reporter"),
			Retain:   cfg.Reporting.Retain,
		})

		server := container.GetServerFactory().CreateServer(rep, store, api.ServerConfig{
			Port:    cfg.Port,
			Bind:    cfg.Bind,
			APIKey:  cfg.Security.APIKey,
			Version: &version,
		}, metrics, logging.Named("api"))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return server.Start(gctx)
		})
		g.Go(func() error {
			return rep.Run(gctx, cfg.Reporting.Interval)
		})
		if watcher != nil {
			watcher.OnChange(func(*collector.ClusterState) {
				if _, err := rep.Report(gctx); err != nil && gctx.Err() == nil {
					logger.Warn("report after cluster state change failed", zap.Error(err))
				}
			})
			g.Go(func() error {
				return watcher.Run(gctx)
			})
		}

		logger.Info("dsusage serving",
			zap.String("state", cfg.Cluster.StatePath),
			zap.Bool("watch", cfg.Cluster.Watch),
			zap.Duration("interval", cfg.Reporting.Interval),
		)

		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 9300, "Port to listen on (default from config)")
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind to (default from config)")
	serveCmd.Flags().String("api-key", "", "API key for client authentication (default from config)")
	serveCmd.Flags().String("state", "", "Cluster state file (default from config)")
	serveCmd.Flags().Bool("watch", true, "Reload the cluster state file when it changes")
}
