package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"lyrics-sync-go/circuitbreaker"
)

// Provider defines the interface that all lyrics providers must implement
type Provider interface {
	// Name returns the provider's identifier (e.g., "lrclib", "spotify_lyrics")
	Name() string

	// Fetch answers query. A provider that has no lyrics returns a NotFound result, not an error.
	Fetch(ctx context.Context, query Query) (*Fetched, error)
}

// Registry holds the providers available to the fetch chain
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider, replacing any provider with the same name
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", name)
	}
	return p, nil
}

// List returns all registered provider names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has checks if a provider is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// Chain returns the providers named in names, in that order.
// The order is configuration and is never derived from registration order.
func (r *Registry) Chain(names []string) ([]Provider, error) {
	chain := make([]Provider, 0, len(names))
	for _, name := range names {
		p, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		chain = append(chain, p)
	}
	return chain, nil
}

// guarded wraps a provider with a circuit breaker
type guarded struct {
	Provider
	breaker *circuitbreaker.CircuitBreaker
}

// WithBreaker returns p guarded by cb. While the circuit is open Fetch fails fast with a
// ProviderError wrapping circuitbreaker.ErrCircuitOpen. Context cancellation does not count as
// an upstream failure.
func WithBreaker(p Provider, cb *circuitbreaker.CircuitBreaker) Provider {
	return &guarded{Provider: p, breaker: cb}
}

func (g *guarded) Fetch(ctx context.Context, query Query) (*Fetched, error) {
	var fetched *Fetched
	err := g.breaker.Execute(func() error {
		var err error
		fetched, err = g.Provider.Fetch(ctx, query)
		return err
	}, isUpstreamFailure)

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return nil, NewProviderError(g.Name(), "skipped", err)
	}
	return fetched, err
}

func isUpstreamFailure(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, ErrNotFound)
}
