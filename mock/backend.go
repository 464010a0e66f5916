// Package mock provides test doubles for relay interfaces using function fields.
package mock

import (
	"context"

	"github.com/fwojciec/relay"
)

// Interface compliance checks.
var (
	_ relay.Backend     = (*Backend)(nil)
	_ relay.Backend     = (*CompleterBackend)(nil)
	_ relay.Completer   = (*CompleterBackend)(nil)
	_ relay.ModelLister = (*ModelLister)(nil)
)

// Backend is a test double for relay.Backend.
// Set StreamFn before calling Stream.
type Backend struct {
	StreamFn func(ctx context.Context, req relay.Request) (relay.Stream, error)
}

// Stream delegates to StreamFn.
func (b *Backend) Stream(ctx context.Context, req relay.Request) (relay.Stream, error) {
	return b.StreamFn(ctx, req)
}

// CompleterBackend is a test double for a backend that also implements
// relay.Completer.
type CompleterBackend struct {
	Backend
	CompleteFn func(ctx context.Context, req relay.Request) (relay.Reply, error)
}

// Complete delegates to CompleteFn.
func (b *CompleterBackend) Complete(ctx context.Context, req relay.Request) (relay.Reply, error) {
	return b.CompleteFn(ctx, req)
}

// ModelLister is a test double for relay.ModelLister.
type ModelLister struct {
	ListModelsFn func(ctx context.Context) ([]relay.Model, error)
}

// ListModels delegates to ListModelsFn.
func (m *ModelLister) ListModels(ctx context.Context) ([]relay.Model, error) {
	return m.ListModelsFn(ctx)
}
