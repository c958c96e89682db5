package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

const articlePage = `<html><body><c-wiz><div jscontroller="abc" data-n-a-sg="SIG" data-n-a-ts="1700000000"></div></c-wiz></body></html>`

func batchBody(t *testing.T, link string) string {
	t.Helper()
	inner, err := json.Marshal([]any{"garturlres", link, 1})
	if err != nil {
		t.Fatalf("marshal inner: %v", err)
	}
	outer, err := json.Marshal([][]any{{"wrb.fr", "Fbv4je", string(inner), nil, nil, nil, "generic"}})
	if err != nil {
		t.Fatalf("marshal outer: %v", err)
	}
	return ")]}'\n\n" + string(outer) + "\n\n25\n[[\"e\",4,null,null,131]]"
}

func TestDecoderDecode(t *testing.T) {
	t.Parallel()

	body := batchBody(t, "https://www.reuters.com/world/rates")
	forms := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/articles/CBMiAAA":
			_, _ = w.Write([]byte(articlePage))
		case r.Method == http.MethodPost && r.URL.Path == batchPath:
			forms <- r.FormValue("f.req")
			_, _ = w.Write([]byte(body))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := NewDecoder(srv.Client(), srv.URL, nil, 5, nil)
	link, err := d.Decode(context.Background(), srv.URL+"/rss/articles/CBMiAAA?oc=5")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if link != "https://www.reuters.com/world/rates" {
		t.Fatalf("unexpected url %q", link)
	}
	got := <-forms
	if !strings.Contains(got, `\"CBMiAAA\",1700000000,\"SIG\"`) {
		t.Fatalf("payload misses article tokens: %s", got)
	}
	if !strings.HasPrefix(got, `[[["Fbv4je",`) {
		t.Fatalf("unexpected payload envelope: %s", got)
	}
}

func TestDecoderRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	body := batchBody(t, "https://www.bbc.com/news/x")
	var pages atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if pages.Add(1) == 1 {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte(articlePage))
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	d := NewDecoder(srv.Client(), srv.URL, nil, 5, nil)
	link, err := d.Decode(context.Background(), "https://news.google.com/rss/articles/X1")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if link != "https://www.bbc.com/news/x" || pages.Load() != 2 {
		t.Fatalf("expected success on second attempt, got %q after %d pages", link, pages.Load())
	}
}

func TestDecoderStopsOnRateLimit(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDecoder(srv.Client(), srv.URL, nil, 5, nil)
	_, err := d.Decode(context.Background(), "https://news.google.com/rss/articles/X1")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single request, got %d", hits.Load())
	}
}

func TestDecoderRejectsLinkWithoutID(t *testing.T) {
	t.Parallel()

	d := NewDecoder(nil, "https://news.google.com", nil, 1, nil)
	if _, err := d.Decode(context.Background(), "https://news.google.com/"); err == nil {
		t.Fatal("expected an error for a link without an article id")
	}
}

func TestParseBatchResponseErrors(t *testing.T) {
	t.Parallel()

	for _, body := range []string{"", ")]}'\n\nnot json", ")]}'\n\n[[\"wrb.fr\",\"Fbv4je\",null]]"} {
		if _, err := parseBatchResponse(body); err == nil {
			t.Fatalf("expected an error for %q", body)
		}
	}
}

const feed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>search</title>
<item>
<title>Storm hits coast - Reuters</title>
<link>https://news.google.com/rss/articles/R1</link>
<description>&lt;ol&gt;&lt;li&gt;&lt;a href="https://news.google.com/rss/articles/B1"&gt;Storm&lt;/a&gt;&lt;font&gt;BBC&lt;/font&gt;&lt;/li&gt;&lt;/ol&gt;</description>
<source url="https://www.reuters.com">Reuters</source>
</item>
</channel></rss>`

func TestSearcherSearchNews(t *testing.T) {
	t.Parallel()

	queries := make(chan [2]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rss/search" {
			http.NotFound(w, r)
			return
		}
		queries <- [2]string{r.URL.Query().Get("q"), r.URL.Query().Get("hl")}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	s := NewSearcher(srv.Client(), srv.URL, "hl=en-US&gl=US&ceid=US:en", nil, nil, nil)
	items := s.SearchNews(context.Background(), `"Storm hits coast"`)
	if q := <-queries; q[0] != `"Storm hits coast"` || q[1] != "en-US" {
		t.Fatalf("unexpected request q=%q hl=%q", q[0], q[1])
	}
	if len(items) != 1 || items[0].Source != "Reuters" || items[0].GnURL != "https://news.google.com/rss/articles/R1" {
		t.Fatalf("unexpected items %+v", items)
	}
	if len(items[0].Articles) != 1 || items[0].Articles[0].Source != "BBC" {
		t.Fatalf("unexpected related coverage %+v", items[0].Articles)
	}
}

func TestSearcherFailuresAreEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewSearcher(srv.Client(), srv.URL, "", nil, nil, nil)
	if items := s.SearchNews(context.Background(), "anything"); items != nil {
		t.Fatalf("expected nil, got %+v", items)
	}
	if items := s.SearchNews(context.Background(), "  "); items != nil {
		t.Fatalf("expected nil for blank query, got %+v", items)
	}
	if host := NewSearcher(nil, "https://news.google.com/", "", nil, nil, nil).Host(); host != "news.google.com" {
		t.Fatalf("unexpected host %q", host)
	}
}
