package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type captured struct {
	method string
	path   string
	query  map[string]string
	header map[string]string
	body   map[string]any
}

func capture(r *http.Request) captured {
	c := captured{
		method: r.Method,
		path:   r.URL.Path,
		query:  map[string]string{},
		header: map[string]string{},
	}
	for k := range r.URL.Query() {
		c.query[k] = r.URL.Query().Get(k)
	}
	for _, h := range []string{"X-API-KEY", "X-Subscription-Token", "Content-Type"} {
		c.header[h] = r.Header.Get(h)
	}
	if r.Method == http.MethodPost {
		_ = json.NewDecoder(r.Body).Decode(&c.body)
	}
	return c
}

func serve(t *testing.T, response string) (*httptest.Server, chan captured) {
	t.Helper()
	seen := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- capture(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func clientFor(p Provider) *Client {
	r := NewRegistry()
	r.Register(p)
	return New(Options{Enabled: true, Provider: p.Name(), APIKey: "key", MaxResults: 6}, r, nil, nil)
}

func TestSerperProvider(t *testing.T) {
	t.Parallel()

	srv, seen := serve(t, `{"organic":[
		{"title":"Storm hits coast","link":"https://www.bbc.com/news/storm","source":"BBC"},
		{"title":"Storm page","link":"https://news.google.com/rss/articles/G1"},
		{"title":"no link"}
	]}`)
	got := clientFor(&Serper{Endpoint: srv.URL}).SearchExternal(context.Background(), "storm")

	req := <-seen
	if req.method != http.MethodPost || req.header["X-API-KEY"] != "key" || req.body["q"] != "storm" || req.body["num"] != float64(6) {
		t.Fatalf("unexpected serper request %+v", req)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %+v", got)
	}
	if got[0].URL != "https://www.bbc.com/news/storm" || got[0].Source != "BBC" || got[0].GnURL != "" {
		t.Fatalf("unexpected direct candidate %+v", got[0])
	}
	if got[1].GnURL != "https://news.google.com/rss/articles/G1" || got[1].URL != "" || got[1].Source != "Google" {
		t.Fatalf("expected aggregator link moved to gnUrl, got %+v", got[1])
	}
}

func TestBraveProvider(t *testing.T) {
	t.Parallel()

	srv, seen := serve(t, `{"web":{"results":[{"title":"Rates","url":"https://www.reuters.com/markets/rates"}]}}`)
	got := clientFor(&Brave{Endpoint: srv.URL}).SearchExternal(context.Background(), "rates")

	req := <-seen
	if req.method != http.MethodGet || req.query["q"] != "rates" || req.query["count"] != "6" || req.header["X-Subscription-Token"] != "key" {
		t.Fatalf("unexpected brave request %+v", req)
	}
	if len(got) != 1 || got[0].Source != "Reuters" {
		t.Fatalf("expected source inferred from host, got %+v", got)
	}
}

func TestSerpAPIProvider(t *testing.T) {
	t.Parallel()

	srv, seen := serve(t, `{"organic_results":[{"title":"Vote","link":"https://example-news.com/a/vote","source":"Example"}]}`)
	got := clientFor(&SerpAPI{Endpoint: srv.URL}).SearchExternal(context.Background(), "vote")

	req := <-seen
	if req.query["engine"] != "google" || req.query["api_key"] != "key" || req.query["num"] != "6" || req.query["q"] != "vote" {
		t.Fatalf("unexpected serpapi request %+v", req)
	}
	if len(got) != 1 || got[0].TitleEn != "Vote" || got[0].Source != "Example" {
		t.Fatalf("unexpected candidates %+v", got)
	}
}

func TestClientDisabledAndErrors(t *testing.T) {
	t.Parallel()

	if New(Options{Enabled: true}, nil, nil, nil).Enabled() {
		t.Fatal("client without api key must be disabled")
	}
	if New(Options{APIKey: "key"}, nil, nil, nil).Enabled() {
		t.Fatal("client must honor the enabled flag")
	}
	if got := New(Options{Enabled: true, APIKey: "key", Provider: "bing"}, nil, nil, nil).SearchExternal(context.Background(), "x"); got != nil {
		t.Fatalf("unsupported provider should yield nil, got %+v", got)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusPaymentRequired)
	}))
	defer srv.Close()
	if got := clientFor(&Serper{Endpoint: srv.URL}).SearchExternal(context.Background(), "x"); got != nil {
		t.Fatalf("provider error should yield nil, got %+v", got)
	}
}

func TestDefaultRegistry(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()
	for _, name := range []string{"serper", "brave", "serpapi"} {
		if _, err := r.Resolve(name); err != nil {
			t.Fatalf("resolve %s: %v", name, err)
		}
	}
	if _, err := r.Resolve("bing"); err == nil {
		t.Fatal("expected an error for an unknown provider")
	}
}
