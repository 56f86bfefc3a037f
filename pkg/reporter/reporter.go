// Package reporter periodically collects data stream usage, records it and
// keeps the latest report in memory for the API.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/ssargent/dsusage/pkg/codec"
	"github.com/ssargent/dsusage/pkg/collector"
	"github.com/ssargent/dsusage/pkg/usage"
)

// ErrNoSource is returned by Report when the reporter has no state source
var ErrNoSource = errors.New("no cluster state source")

// StateSource returns the cluster state to compute usage from
type StateSource func() (*collector.ClusterState, error)

// FileSource reads the cluster state file on every call
func FileSource(path string) StateSource {
	return func() (*collector.ClusterState, error) {
		return collector.LoadState(path)
	}
}

// WatcherSource returns whatever state the watcher loaded last
func WatcherSource(w *collector.Watcher) StateSource {
	return func() (*collector.ClusterState, error) {
		return w.Current(), nil
	}
}

// SnapshotSink persists reports
type SnapshotSink interface {
	Put(u usage.DataStreamsUsage) (ksuid.KSUID, error)
	Prune(keep int) (int, error)
}

// StatsRecorder receives the stats of every report
type StatsRecorder interface {
	RecordUsage(stats codec.DataStreamStats)
	RecordReport(success bool, duration time.Duration)
}

// Report is one collected usage report
type Report struct {
	ID          ksuid.KSUID
	CollectedAt time.Time
	Usage       usage.DataStreamsUsage
}

// Config holds the optional collaborators of a Reporter
type Config struct {
	Sink     SnapshotSink
	Recorder StatsRecorder
	Logger   *zap.Logger
	// Retain is how many snapshots to keep; 0 keeps all of them
	Retain int
}

// Reporter turns cluster state into usage reports
type Reporter struct {
	source   StateSource
	sink     SnapshotSink
	recorder StatsRecorder
	logger   *zap.Logger
	retain   int

	latest atomic.Pointer[Report]
}

// New creates a reporter reading from source
func New(source StateSource, cfg Config) *Reporter {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		source:   source,
		sink:     cfg.Sink,
		recorder: cfg.Recorder,
		logger:   logger,
		retain:   cfg.Retain,
	}
}

// Latest returns the most recent report, if any
func (r *Reporter) Latest() (*Report, bool) {
	rep := r.latest.Load()
	return rep, rep != nil
}

// Report collects usage once, persists it and makes it the latest report
func (r *Reporter) Report(ctx context.Context) (*Report, error) {
	start := time.Now()
	rep, err := r.report(ctx)
	if r.recorder != nil {
		r.recorder.RecordReport(err == nil, time.Since(start))
	}
	if err != nil {
		return nil, err
	}

	r.latest.Store(rep)
	r.logger.Info("usage reported",
		zap.String("id", rep.ID.String()),
		zap.Uint64("data_streams", rep.Usage.Stats.TotalDataStreamCount),
		zap.Uint64("indices_count", rep.Usage.Stats.IndicesBehindDataStream),
		zap.Uint64("failure_indices_count", rep.Usage.Stats.FailureStoreIndicesCount),
	)
	return rep, nil
}

func (r *Reporter) report(ctx context.Context) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.source == nil {
		return nil, ErrNoSource
	}

	state, err := r.source()
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster state: %w", err)
	}

	stats := collector.Collect(state)
	rep := &Report{
		CollectedAt: time.Now().UTC(),
		Usage:       usage.NewDataStreamsUsage(stats),
	}

	if r.sink != nil {
		id, err := r.sink.Put(rep.Usage)
		if err != nil {
			return nil, fmt.Errorf("failed to persist usage: %w", err)
		}
		rep.ID = id
		rep.CollectedAt = id.Time()

		if r.retain > 0 {
			removed, err := r.sink.Prune(r.retain)
			if err != nil {
				// The report itself is stored; pruning is retried next time
				r.logger.Warn("failed to prune snapshots", zap.Error(err))
			} else if removed > 0 {
				r.logger.Debug("pruned snapshots", zap.Int("removed", removed))
			}
		}
	}

	if r.recorder != nil {
		r.recorder.RecordUsage(stats)
	}
	return rep, nil
}

// Run reports immediately and then every interval until ctx is done.
// Failed reports are logged and do not stop the loop.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("report interval must be positive: %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Report(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("usage report failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
