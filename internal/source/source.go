package source

import (
	"context"
	"fmt"

	"prism/internal/config"
	"prism/internal/domain"
)

// Fetcher retrieves a URL body. Retry and timeouts are its concern.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Adapter fetches one source and normalizes what it finds. Each call is a
// fresh pass with no memory of earlier ones.
type Adapter interface {
	Fetch(ctx context.Context, src config.SourceConfig) (*domain.FetchResult, error)
}

// Registry dispatches a source to the adapter registered for its type.
type Registry struct {
	adapters map[config.SourceType]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[config.SourceType]Adapter)}
}

func (r *Registry) Register(t config.SourceType, a Adapter) {
	r.adapters[t] = a
}

func (r *Registry) Fetch(ctx context.Context, src config.SourceConfig) (*domain.FetchResult, error) {
	a, ok := r.adapters[src.Type]
	if !ok {
		return nil, fmt.Errorf("no adapter for source type %q", src.Type)
	}
	return a.Fetch(ctx, src)
}
