// Package api provides interfaces for dependency injection
package api

import (
	"context"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/ssargent/dsusage/pkg/reporter"
	"github.com/ssargent/dsusage/pkg/storage"
)

// IUsageReporter produces usage reports
type IUsageReporter interface {
	Latest() (*reporter.Report, bool)
	Report(ctx context.Context) (*reporter.Report, error)
}

// ISnapshotStore gives read access to stored usage snapshots
type ISnapshotStore interface {
	Get(id ksuid.KSUID) (*storage.Snapshot, error)
	List(limit int) ([]storage.Snapshot, error)
}

// ServerStarter defines the interface for starting the API server
type ServerStarter interface {
	// Start serves until ctx is done, then shuts down gracefully
	Start(ctx context.Context) error
}

// ServerFactory creates server instances
type ServerFactory interface {
	// CreateServer creates a server for the given collaborators
	CreateServer(
		reporter IUsageReporter,
		snapshots ISnapshotStore,
		config ServerConfig,
		metrics *Metrics,
		logger *zap.Logger,
	) ServerStarter
}
