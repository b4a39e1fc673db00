// Package store defines the composite Store interface for all dispatch
// persistence.
//
// Each subsystem defines its own store interface next to its domain types,
// and the aggregate Store composes them all. Backends implement the whole
// surface so one connection serves every subsystem.
package store

import (
	"context"

	"github.com/veloxpay/dispatch/catalog"
	"github.com/veloxpay/dispatch/delivery"
	"github.com/veloxpay/dispatch/dlq"
	"github.com/veloxpay/dispatch/event"
	"github.com/veloxpay/dispatch/history"
	"github.com/veloxpay/dispatch/subscription"
)

// Store is the aggregate persistence interface.
type Store interface {
	catalog.Store
	subscription.Store
	event.Store
	delivery.Store
	history.Store
	dlq.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
