package casseq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Registry shares one generator per backend endpoint. Processes that talk
// to several namespaces on the same backend should go through a Registry
// instead of calling New per call site, so they hold one session and one
// admission gate per endpoint rather than one per caller.
//
// Sharing is explicit. Nothing here is process-global: two Registries know
// nothing about each other.
type Registry struct {
	base Options

	mu      sync.Mutex
	entries map[string]*registryEntry
	closed  bool
}

type registryEntry struct {
	once sync.Once
	gen  Generator
	err  error
}

// NewRegistry returns an empty registry. base supplies everything but the
// endpoint, which each Get names explicitly.
func NewRegistry(base Options) *Registry {
	return &Registry{base: base, entries: make(map[string]*registryEntry)}
}

// Get returns the shared generator for endpoint, dialing on first use.
// Concurrent Gets for one endpoint dial exactly once and share the result.
// A failed dial is not cached; the next Get tries again. An empty endpoint
// falls back to the base Options endpoint, then to DefaultEndpoint. After
// Close, Get reports ErrRegistryClosed; a Get racing Close lands on one
// side or the other, never on a nil generator.
func (r *Registry) Get(ctx context.Context, endpoint string) (Generator, error) {
	key := strings.TrimSpace(endpoint)
	if key == "" {
		key = coalesce(r.base.Endpoint, DefaultEndpoint)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	e, ok := r.entries[key]
	if !ok {
		e = &registryEntry{}
		r.entries[key] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		opts := r.base
		opts.Endpoint = key
		e.gen, e.err = New(ctx, opts)
	})
	// Both nil means Close consumed the once before the dial ran.
	if e.gen == nil && e.err == nil {
		return nil, ErrRegistryClosed
	}
	if e.err != nil {
		r.mu.Lock()
		if r.entries[key] == e {
			delete(r.entries, key)
		}
		r.mu.Unlock()
		return nil, e.err
	}
	return e.gen, nil
}

// Close closes every generator the registry built. It waits for dials still
// in flight so their generators are closed too, not leaked. The registry
// rejects further Gets afterwards.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	var errs []error
	for key, e := range entries {
		e.once.Do(func() {})
		if e.gen == nil {
			continue
		}
		if err := e.gen.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
