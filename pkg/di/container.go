// Package di provides dependency injection container
package di

import (
	"github.com/MathisTLD/multiparse/pkg/api"     //nolint:depguard
	"github.com/MathisTLD/multiparse/pkg/storage" //nolint:depguard
)

// StoreOpener opens the part store used by the CLI commands
type StoreOpener func(config storage.StoreConfig) (*storage.PartStore, error)

// Container holds all the dependencies for the application
type Container struct {
	storeOpener   StoreOpener
	serverFactory api.ServerFactory
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		storeOpener:   storage.Open,
		serverFactory: api.NewServerFactory(),
	}
}

// GetStoreOpener returns the part store opener
func (c *Container) GetStoreOpener() StoreOpener {
	return c.storeOpener
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// SetStoreOpener allows overriding the store opener (for testing)
func (c *Container) SetStoreOpener(opener StoreOpener) {
	c.storeOpener = opener
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}
