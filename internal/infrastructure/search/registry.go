// Package search dispatches queries to paid web search providers.
package search

import (
	"context"
	"fmt"
	"net/http"
)

// Request carries the parameters every provider understands.
type Request struct {
	Query      string
	APIKey     string
	MaxResults int
}

// Result is one organic hit before normalization.
type Result struct {
	Title  string
	URL    string
	Source string
}

// Provider captures a single search backend (serper, brave, serpapi).
type Provider interface {
	Name() string
	Search(ctx context.Context, client *http.Client, req Request) ([]Result, error)
}

// Registry keeps a mapping from provider names to their implementations.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

// DefaultRegistry holds every built-in provider.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&Serper{})
	r.Register(&Brave{})
	r.Register(&SerpAPI{})
	return r
}

// Register adds or replaces a provider implementation.
func (r *Registry) Register(p Provider) {
	if r.providers == nil {
		r.providers = map[string]Provider{}
	}
	r.providers[p.Name()] = p
}

// Resolve returns a provider by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Provider, error) {
	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("search provider %s is not registered", name)
}
