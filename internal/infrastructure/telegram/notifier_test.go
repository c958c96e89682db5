package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPublishDigest(t *testing.T) {
	t.Parallel()

	texts := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" || r.FormValue("chat_id") != "42" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		texts <- r.FormValue("text")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewNotifier("TOKEN", "42").WithAPI(srv.URL)
	if err := n.PublishDigest(context.Background(), "#7 X raises rates (Reuters)\nphase=fallback_failed"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := <-texts; !strings.HasPrefix(got, "#7 X raises rates") {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestPublishDigestErrors(t *testing.T) {
	t.Parallel()

	if err := NewNotifier("", "").PublishDigest(context.Background(), "x"); err == nil {
		t.Fatal("expected misconfiguration error")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()
	if err := NewNotifier("T", "1").WithAPI(srv.URL).PublishDigest(context.Background(), "x"); err == nil {
		t.Fatal("expected an API error")
	}
}

func TestSplit(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("line of text\n", 10)
	parts := split(text, 30)
	for _, p := range parts {
		if len([]rune(p)) > 30 {
			t.Fatalf("part exceeds limit: %q", p)
		}
	}
	if strings.Join(parts, "\n") != strings.TrimSpace(text) {
		t.Fatalf("split lost content: %q", parts)
	}
	if got := split("short", 30); len(got) != 1 || got[0] != "short" {
		t.Fatalf("unexpected split %q", got)
	}
}
