package search

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"NewsGrinder/internal/domain"
	"NewsGrinder/internal/metrics"
	"NewsGrinder/internal/ports"
	"NewsGrinder/internal/sources"
)

const searchChannel = "external"

// Options selects and tunes the provider.
type Options struct {
	Enabled        bool
	Provider       string
	APIKey         string
	MaxResults     int
	Timeout        time.Duration
	AggregatorHost string
}

// Client normalizes provider hits into candidates.
type Client struct {
	opts       Options
	registry   *Registry
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

var _ ports.ExternalSearcher = (*Client)(nil)

// New builds a client. A nil registry means DefaultRegistry.
func New(opts Options, registry *Registry, logger *slog.Logger, m *metrics.Metrics) *Client {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Provider == "" {
		opts.Provider = "serper"
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.AggregatorHost == "" {
		opts.AggregatorHost = "news.google.com"
	}
	return &Client{
		opts:       opts,
		registry:   registry,
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger,
		metrics:    m,
	}
}

// Enabled reports whether external search is configured with a key.
func (c *Client) Enabled() bool {
	return c != nil && c.opts.Enabled && strings.TrimSpace(c.opts.APIKey) != ""
}

// SearchExternal runs query on the configured provider. Errors are logged
// and yield nil.
func (c *Client) SearchExternal(ctx context.Context, query string) []domain.Candidate {
	query = strings.TrimSpace(query)
	if !c.Enabled() || query == "" {
		return nil
	}
	provider, err := c.registry.Resolve(c.opts.Provider)
	if err != nil {
		c.logger.Warn("external search unsupported provider", "provider", c.opts.Provider)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	results, err := provider.Search(ctx, c.httpClient, Request{
		Query:      query,
		APIKey:     c.opts.APIKey,
		MaxResults: c.opts.MaxResults,
	})
	if err != nil {
		c.logger.Warn("external search failed", "provider", provider.Name(), "query", query, "error", err)
		c.metrics.Search(searchChannel, "error")
		return nil
	}

	out := make([]domain.Candidate, 0, len(results))
	for _, r := range results {
		if cand, ok := c.normalize(r); ok {
			out = append(out, cand)
		}
	}
	if len(out) == 0 {
		c.metrics.Search(searchChannel, "empty")
	} else {
		c.metrics.Search(searchChannel, "ok")
	}
	return out
}

// normalize moves aggregator links to GnURL and infers a missing source
// from the host.
func (c *Client) normalize(r Result) (domain.Candidate, bool) {
	link := strings.TrimSpace(r.URL)
	if link == "" {
		return domain.Candidate{}, false
	}
	cand := domain.Candidate{TitleEn: strings.TrimSpace(r.Title), URL: link}
	if sources.Host(link) == c.opts.AggregatorHost {
		cand.GnURL = link
		cand.URL = ""
	}
	cand.Source = strings.TrimSpace(r.Source)
	if cand.Source == "" {
		cand.Source = sources.FromURL(link)
	}
	return cand, true
}
