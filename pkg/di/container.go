// Package di provides dependency injection container
package di

import (
	"github.com/ssargent/dsusage/pkg/api"       //nolint:depguard
	"github.com/ssargent/dsusage/pkg/storage"   //nolint:depguard
	"github.com/ssargent/dsusage/pkg/transport" //nolint:depguard
)

// StoreOpener opens the snapshot store at path, encoding new snapshots at version
type StoreOpener func(path string, version transport.Version) (*storage.SnapshotStore, error)

// Container holds all the dependencies for the application
type Container struct {
	storeOpener   StoreOpener
	serverFactory api.ServerFactory
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		storeOpener:   storage.NewSnapshotStore,
		serverFactory: api.NewServerFactory(),
	}
}

// GetStoreOpener returns the snapshot store opener
func (c *Container) GetStoreOpener() StoreOpener {
	return c.storeOpener
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// SetStoreOpener allows overriding the snapshot store opener (for testing)
func (c *Container) SetStoreOpener(opener StoreOpener) {
	c.storeOpener = opener
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}
