package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	serperEndpoint  = "https://google.serper.dev/search"
	braveEndpoint   = "https://api.search.brave.com/res/v1/web/search"
	serpapiEndpoint = "https://serpapi.com/search.json"
	maxResponseSize = 2 << 20
)

// Serper queries google.serper.dev.
type Serper struct {
	Endpoint string
}

// Name implements Provider.
func (s *Serper) Name() string { return "serper" }

// Search implements Provider.
func (s *Serper) Search(ctx context.Context, client *http.Client, req Request) ([]Result, error) {
	body, err := json.Marshal(map[string]any{"q": req.Query, "num": req.MaxResults})
	if err != nil {
		return nil, fmt.Errorf("marshal serper request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(s.Endpoint, serperEndpoint), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-KEY", req.APIKey)

	var payload struct {
		Organic []struct {
			Title  string `json:"title"`
			Link   string `json:"link"`
			Source string `json:"source"`
		} `json:"organic"`
	}
	if err := doJSON(client, httpReq, &payload); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(payload.Organic))
	for _, it := range payload.Organic {
		out = append(out, Result{Title: it.Title, URL: it.Link, Source: it.Source})
	}
	return out, nil
}

// Brave queries the Brave web search API.
type Brave struct {
	Endpoint string
}

// Name implements Provider.
func (b *Brave) Name() string { return "brave" }

// Search implements Provider.
func (b *Brave) Search(ctx context.Context, client *http.Client, req Request) ([]Result, error) {
	q := url.Values{}
	q.Set("q", req.Query)
	q.Set("count", strconv.Itoa(req.MaxResults))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(b.Endpoint, braveEndpoint)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Subscription-Token", req.APIKey)

	var payload struct {
		Web struct {
			Results []struct {
				Title  string `json:"title"`
				URL    string `json:"url"`
				Source string `json:"source"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := doJSON(client, httpReq, &payload); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(payload.Web.Results))
	for _, it := range payload.Web.Results {
		out = append(out, Result{Title: it.Title, URL: it.URL, Source: it.Source})
	}
	return out, nil
}

// SerpAPI queries serpapi.com with the google engine.
type SerpAPI struct {
	Endpoint string
}

// Name implements Provider.
func (s *SerpAPI) Name() string { return "serpapi" }

// Search implements Provider.
func (s *SerpAPI) Search(ctx context.Context, client *http.Client, req Request) ([]Result, error) {
	q := url.Values{}
	q.Set("q", req.Query)
	q.Set("engine", "google")
	q.Set("num", strconv.Itoa(req.MaxResults))
	q.Set("api_key", req.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(s.Endpoint, serpapiEndpoint)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	var payload struct {
		OrganicResults []struct {
			Title  string `json:"title"`
			Link   string `json:"link"`
			Source string `json:"source"`
		} `json:"organic_results"`
	}
	if err := doJSON(client, httpReq, &payload); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(payload.OrganicResults))
	for _, it := range payload.OrganicResults {
		out = append(out, Result{Title: it.Title, URL: it.Link, Source: it.Source})
	}
	return out, nil
}

func endpoint(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}

func doJSON(client *http.Client, req *http.Request, into any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("search error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(into); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
