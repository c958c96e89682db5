package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"NewsGrinder/internal/domain"
	"NewsGrinder/internal/infrastructure/scheduler"
	"NewsGrinder/internal/table"
)

const story = "https://www.example.com/2026/10/storm-story"

func newTestAdder(h *harness, tbl *table.Table) *Adder {
	a := NewAdder(tbl, h.orchestrator(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) }
	return a
}

func TestAddDirectURL(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.fetcher.pages[story] = article("story")
	tbl := table.New(domain.Sheet{Rows: []domain.Row{{"id": "4", "titleEn": "Existing"}}})

	e, err := newTestAdder(h, tbl).Add(context.Background(), story, AddOptions{Topic: "Ukraine", Priority: "2"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if e.ID != 5 || e.Date != "2026-10-14" || e.Source != "Example" || e.URL != story || e.GnURL != "" {
		t.Fatalf("unexpected event %+v", e)
	}
	if e.Topic != "Ukraine" || e.Priority != "2" || e.TitleRu != "Заголовок" {
		t.Fatalf("forced fields not applied: %+v", e)
	}
	if e.AITopic != "Tech News" || e.AIPriority != "3" || e.Summary == "" {
		t.Fatalf("model answer not recorded: %+v", e)
	}
	if e.Extra[ManualColumn] != "true" {
		t.Fatalf("manual marker missing: %+v", e.Extra)
	}
	if tbl.Len() != 2 {
		t.Fatalf("expected the event to be appended, got %d rows", tbl.Len())
	}
	if got := h.archive.items[5]; got.URL != story || got.Text != e.Text {
		t.Fatalf("artifact not archived: %+v", got)
	}
}

func TestAddSkipsSummarizedRow(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.decoder.steps[gnPrimary] = []decodeStep{{url: story}}
	tbl := table.New(domain.Sheet{Rows: []domain.Row{{"id": "5", "url": story, "summary": "done"}}})

	e, err := newTestAdder(h, tbl).Add(context.Background(), gnPrimary, AddOptions{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if e.ID != 5 || e.Summary != "done" {
		t.Fatalf("expected the existing row, got %+v", e)
	}
	if len(h.fetcher.calls) != 0 || tbl.Len() != 1 {
		t.Fatalf("existing summary should not be refetched: calls %v rows %d", h.fetcher.calls, tbl.Len())
	}
}

func TestAddErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		page string
		want error
	}{
		{name: "no page", page: "", want: ErrNoPage},
		{name: "short text", page: "too short", want: ErrShortText},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness()
			h.fetcher.pages[story] = tt.page
			tbl := table.New(domain.Sheet{})
			_, err := newTestAdder(h, tbl).Add(context.Background(), story, AddOptions{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if tbl.Len() != 0 {
				t.Fatal("failed add should not append")
			}
		})
	}
}

func TestAddUsesBrowserWhenFetchFails(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.browser.pages[story] = article("browsed")
	tbl := table.New(domain.Sheet{})

	e, err := newTestAdder(h, tbl).Add(context.Background(), story, AddOptions{Title: "Свой заголовок"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if e.Text != article("browsed") || e.TitleRu != "Свой заголовок" {
		t.Fatalf("unexpected event %+v", e)
	}
	if h.archive.items[e.ID].Title != "Свой заголовок" {
		t.Fatalf("archive should keep the forced title, got %+v", h.archive.items[e.ID])
	}
}

func TestAddMarked(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.decoder.steps[gnPrimary] = []decodeStep{{url: story}}
	h.fetcher.pages[story] = article("story")
	tbl := table.New(domain.Sheet{Rows: []domain.Row{
		{"id": "7", "gnUrl": gnPrimary, "manual": ManualAdd, "topic": "Ukraine", "titleRu": "Свой"},
		{"id": "8", "manual": ManualAdd},
		{"id": "9", "url": "https://example.org/other"},
	}})

	done, err := newTestAdder(h, tbl).AddMarked(context.Background())
	if err != nil {
		t.Fatalf("add marked: %v", err)
	}
	if len(done) != 1 || done[0].ID != 7 {
		t.Fatalf("expected row 7 only, got %+v", done)
	}
	e := done[0]
	if e.Extra[ManualColumn] != ManualDone || e.Topic != "Ukraine" || e.TitleRu != "Свой" || e.URL != story {
		t.Fatalf("unexpected row %+v", e)
	}
	if tbl.Len() != 3 {
		t.Fatalf("marked row should be completed in place, got %d rows", tbl.Len())
	}
}

func TestAddHoldsAutosave(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.fetcher.pages[story] = article("story")
	h.fetcher.pages[story+"-2"] = article("second")
	tbl := table.New(domain.Sheet{})
	autosave := &fakeAutosave{}
	a := newTestAdder(h, tbl)
	a.autosave = autosave

	added, err := a.AddAll(context.Background(), []string{story, story + "-2", story + "-missing"}, AddOptions{})
	if !errors.Is(err, ErrNoPage) {
		t.Fatalf("expected the missing page to be reported, got %v", err)
	}
	if len(added) != 2 || tbl.Len() != 2 {
		t.Fatalf("expected two added rows, got %d (table %d)", len(added), tbl.Len())
	}
	if len(autosave.calls) != 2 || autosave.calls[0] != "pause" || autosave.calls[1] != "resume" {
		t.Fatalf("autosave should be held once around the batch, got %v", autosave.calls)
	}
}

func TestAddMarkedWithBackgroundAutosave(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.fetcher.delay = 5 * time.Millisecond
	var rows []domain.Row
	for _, id := range []string{"1", "2", "3"} {
		link := story + "-" + id
		h.fetcher.pages[link] = article("story" + id)
		rows = append(rows, domain.Row{"id": id, "url": link, "manual": ManualAdd})
	}
	tbl := table.New(domain.Sheet{Rows: rows})

	var mu sync.Mutex
	var saved []domain.Sheet
	autosave := scheduler.NewAutosave(time.Millisecond, func(context.Context) error {
		sheet := tbl.Snapshot()
		mu.Lock()
		saved = append(saved, sheet)
		mu.Unlock()
		return nil
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	tbl.OnChange(autosave.Queue)

	a := newTestAdder(h, tbl)
	a.autosave = autosave
	done, err := a.AddMarked(context.Background())
	if err != nil {
		t.Fatalf("add marked: %v", err)
	}
	if len(done) != 3 {
		t.Fatalf("expected three completed rows, got %d", len(done))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(saved) != 1 {
		t.Fatalf("expected a single save after the batch, got %d", len(saved))
	}
	for _, row := range saved[0].Rows {
		if row[ManualColumn] != ManualDone || row["summary"] == "" {
			t.Fatalf("saved snapshot is incomplete: %+v", row)
		}
	}
}
