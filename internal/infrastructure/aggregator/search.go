package aggregator

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"NewsGrinder/internal/infrastructure/parser"
	"NewsGrinder/internal/metrics"
	"NewsGrinder/internal/ports"
	"NewsGrinder/internal/ratelimit"
)

const searchChannel = "aggregator"

// Searcher queries the aggregator RSS search.
type Searcher struct {
	client  *http.Client
	baseURL string
	params  string
	gate    *ratelimit.Gate
	logger  *slog.Logger
	metrics *metrics.Metrics
}

var _ ports.NewsSearcher = (*Searcher)(nil)

// NewSearcher builds a searcher; params is the fixed query string appended
// to every search, e.g. "hl=en-US&gl=US&ceid=US:en".
func NewSearcher(client *http.Client, baseURL, params string, gate *ratelimit.Gate, logger *slog.Logger, m *metrics.Metrics) *Searcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		params:  strings.TrimLeft(params, "?&"),
		gate:    gate,
		logger:  logger,
		metrics: m,
	}
}

// SearchNews returns the stories matching query. Any failure yields nil.
func (s *Searcher) SearchNews(ctx context.Context, query string) []ports.NewsItem {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if s.gate != nil {
		if err := s.gate.Wait(ctx); err != nil {
			return nil
		}
	}

	endpoint := s.baseURL + "/rss/search?q=" + url.QueryEscape(query)
	if s.params != "" {
		endpoint += "&" + s.params
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		s.fail(query, err)
		return nil
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.fail(query, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("aggregator search failed", "query", query, "status", resp.Status)
		s.metrics.Search(searchChannel, "error")
		return nil
	}

	feed, err := parser.ParseSearchFeed(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		s.fail(query, err)
		return nil
	}

	items := make([]ports.NewsItem, 0, len(feed))
	for _, it := range feed {
		items = append(items, ports.NewsItem{Candidate: it.Candidate, Articles: it.Articles})
	}
	if len(items) == 0 {
		s.metrics.Search(searchChannel, "empty")
	} else {
		s.metrics.Search(searchChannel, "ok")
	}
	return items
}

// Host is the aggregator hostname, used to restrict external queries to it.
func (s *Searcher) Host() string {
	parsed, err := url.Parse(s.baseURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}

func (s *Searcher) fail(query string, err error) {
	s.logger.Warn("aggregator search failed", "query", query, "error", err)
	s.metrics.Search(searchChannel, "error")
}
