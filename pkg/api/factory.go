// Package api provides factory implementations for dependency injection
package api

import "go.uber.org/zap"

// DefaultServerFactory is the default implementation of ServerFactory
type DefaultServerFactory struct{}

// NewServerFactory creates a new server factory
func NewServerFactory() ServerFactory {
	return &DefaultServerFactory{}
}

// CreateServer creates an HTTP server
func (f *DefaultServerFactory) CreateServer(
	reporter IUsageReporter,
	snapshots ISnapshotStore,
	config ServerConfig,
	metrics *Metrics,
	logger *zap.Logger,
) ServerStarter {
	return NewServer(reporter, snapshots, config, metrics, logger)
}
