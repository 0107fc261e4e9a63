package source

import (
	"context"
	"fmt"

	"github.com/timmy/subtitles/internal/domain"
)

// Registry routes a source type to its resolver.
type Registry struct {
	resolvers map[domain.SourceType]Resolver
}

// NewRegistry registers the given resolvers; a later resolver for the same type wins.
func NewRegistry(resolvers ...Resolver) *Registry {
	r := &Registry{resolvers: make(map[domain.SourceType]Resolver, len(resolvers))}
	for _, res := range resolvers {
		r.resolvers[res.SourceType()] = res
	}
	return r
}

// Get returns the resolver for a source type.
func (r *Registry) Get(sourceType domain.SourceType) (Resolver, error) {
	res, ok := r.resolvers[sourceType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedSourceType, sourceType)
	}
	return res, nil
}

// Supports reports whether a resolver is registered for sourceType.
func (r *Registry) Supports(sourceType domain.SourceType) bool {
	_, ok := r.resolvers[sourceType]
	return ok
}

// Resolve dispatches to the resolver registered for sourceType.
func (r *Registry) Resolve(ctx context.Context, sourceURL string, sourceType domain.SourceType) (string, error) {
	res, err := r.Get(sourceType)
	if err != nil {
		return "", err
	}
	return res.Resolve(ctx, sourceURL)
}
