package adapters

import (
	"strings"

	"github.com/briefworks/briefworks/internal/payment/domain"
)

// Registry resolves webhook adapters by provider name.
type Registry struct {
	adapters map[string]domain.Adapter
}

func NewRegistry(adapters ...domain.Adapter) *Registry {
	registry := &Registry{adapters: make(map[string]domain.Adapter, len(adapters))}
	for _, adapter := range adapters {
		registry.adapters[strings.ToLower(adapter.Provider())] = adapter
	}
	return registry
}

func (r *Registry) Get(provider string) (domain.Adapter, error) {
	adapter, ok := r.adapters[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	return adapter, nil
}
