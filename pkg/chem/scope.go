package chem

import (
	"context"
	"fmt"
	"sync"
)

var (
	defaultMu       sync.RWMutex
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, loading the built-in element
// table on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := NewDefaultRegistry()
		if err != nil {
			panic(fmt.Sprintf("chem: built-in element table: %v", err))
		}
		defaultMu.Lock()
		if defaultRegistry == nil {
			defaultRegistry = r
		}
		defaultMu.Unlock()
	})

	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultRegistry
}

// SetDefault replaces the process-wide registry and returns the previous one.
func SetDefault(r *Registry) *Registry {
	prev := Default()
	defaultMu.Lock()
	defaultRegistry = r
	defaultMu.Unlock()
	return prev
}

// Scoped installs r as the default registry while fn runs. The previous
// registry is restored when fn returns or panics. Nested calls restore in
// reverse order.
func Scoped(r *Registry, fn func() error) error {
	prev := SetDefault(r)
	defer SetDefault(prev)
	return fn()
}

type registryKey struct{}

// NewContext returns a context that carries r.
func NewContext(ctx context.Context, r *Registry) context.Context {
	return context.WithValue(ctx, registryKey{}, r)
}

// FromContext returns the registry carried by ctx, or Default.
func FromContext(ctx context.Context) *Registry {
	if r, ok := ctx.Value(registryKey{}).(*Registry); ok && r != nil {
		return r
	}
	return Default()
}
