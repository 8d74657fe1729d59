package service

import (
	"context"
	"errors"

	"birthday-wall/backend/pkg/blob"
	"birthday-wall/backend/pkg/resilience"
)

// guardedStore runs every blob store call through a circuit breaker
type guardedStore struct {
	store   blob.Store
	breaker *resilience.CircuitBreaker
}

// NewGuardedStore wraps store so a failing backend trips breaker. The
// breaker should be built with IsStoreFailure as its failure predicate.
func NewGuardedStore(store blob.Store, breaker *resilience.CircuitBreaker) blob.Store {
	return &guardedStore{store: store, breaker: breaker}
}

// IsStoreFailure reports whether err means the backend is unhealthy, as
// opposed to an answer about a particular key
func IsStoreFailure(err error) bool {
	switch {
	case errors.Is(err, blob.ErrNotFound),
		errors.Is(err, blob.ErrExists),
		errors.Is(err, blob.ErrInvalidKey),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func (g *guardedStore) List(ctx context.Context, prefix string) ([]blob.Object, error) {
	var out []blob.Object
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.store.List(ctx, prefix)
		return err
	})
	return out, err
}

func (g *guardedStore) Get(ctx context.Context, key string) ([]byte, blob.Object, error) {
	var data []byte
	var obj blob.Object
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		data, obj, err = g.store.Get(ctx, key)
		return err
	})
	return data, obj, err
}

func (g *guardedStore) Put(ctx context.Context, key string, content []byte, opts blob.PutOptions) (blob.Object, error) {
	var obj blob.Object
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		obj, err = g.store.Put(ctx, key, content, opts)
		return err
	})
	return obj, err
}

func (g *guardedStore) Delete(ctx context.Context, key string) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.store.Delete(ctx, key)
	})
}

// Ping bypasses the breaker so health checks see the real backend state
func (g *guardedStore) Ping(ctx context.Context) error {
	if p, ok := g.store.(blob.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
