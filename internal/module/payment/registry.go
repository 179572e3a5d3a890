package payment

import (
	"fmt"
	"sort"
	"sync"

	"github.com/blogauto/server/internal/module/payment/domain"
	"github.com/blogauto/server/internal/module/payment/provider"
)

// Registry holds the constructed processors. Processors are built once
// and shared; construction failures are cached so a misconfigured
// provider fails the same way on every call.
type Registry struct {
	mu         sync.RWMutex
	processors map[domain.Provider]provider.Processor
	failures   map[domain.Provider]error
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		processors: make(map[domain.Provider]provider.Processor),
		failures:   make(map[domain.Provider]error),
	}
}

// Register stores a processor for the provider.
func (r *Registry) Register(p domain.Provider, proc provider.Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[p] = proc
	delete(r.failures, p)
}

// RegisterFailure records that the provider's processor could not be
// constructed.
func (r *Registry) RegisterFailure(p domain.Provider, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[p] = err
}

// Get returns the processor for the provider, or the cached
// construction error.
func (r *Registry) Get(p domain.Provider) (provider.Processor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err, ok := r.failures[p]; ok {
		return nil, err
	}
	proc, ok := r.processors[p]
	if !ok {
		return nil, fmt.Errorf("no processor registered for provider %s", p)
	}
	return proc, nil
}

// Providers returns the providers with a registered processor, sorted
// by name.
func (r *Registry) Providers() []domain.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Provider, 0, len(r.processors))
	for p := range r.processors {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
