package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"NewsGrinder/internal/domain"
	"NewsGrinder/internal/infrastructure/scheduler"
	"NewsGrinder/internal/ports"
	"NewsGrinder/internal/table"
)

func TestSelectSkipsSummarizedAndOther(t *testing.T) {
	t.Parallel()

	events := []*domain.Event{
		{ID: 1, Summary: "done"},
		{ID: 2, Topic: "other"},
		{ID: 3, Topic: " Other "},
		{ID: 4, Topic: "Tech News"},
		{ID: 5},
	}
	work := Select(events)
	if len(work) != 2 || work[0].ID != 4 || work[1].ID != 5 {
		t.Fatalf("unexpected selection %+v", work)
	}
}

func TestBuildDigest(t *testing.T) {
	t.Parallel()

	if got := BuildDigest(nil, 5); got != "" {
		t.Fatalf("expected empty digest, got %q", got)
	}

	failures := []Failure{
		{ID: 1, Title: "Storm", Source: "Reuters", Phase: "fallback_failed", Status: "fail"},
		{ID: 2, Title: "Quake", Phase: "verify_mismatch", Status: "fail", Reason: "different story"},
		{ID: 3, Title: "Flood"},
	}
	digest := BuildDigest(failures, 2)
	for _, want := range []string{
		"Events without summary: 3",
		"- #1 Storm (Reuters): fallback_failed fail",
		"- #2 Quake: verify_mismatch fail, different story",
		"... and 1 more",
	} {
		if !strings.Contains(digest, want) {
			t.Fatalf("digest %q lacks %q", digest, want)
		}
	}
	if strings.Contains(digest, "Flood") {
		t.Fatalf("digest should be bounded, got %q", digest)
	}
}

func TestPipelineRun(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.archive.items[3] = ports.Artifact{URL: reuters, Title: "Storm hits coast", Text: article("storm")}

	tbl := table.New(domain.Sheet{
		Headers: []string{"id", "topic", "titleEn", "summary"},
		Rows: []domain.Row{
			{"id": "1", "titleEn": "Old news", "summary": "already done", "topic": "Tech News"},
			{"id": "2", "titleEn": "Skip me", "topic": "other"},
			{"id": "3", "titleEn": "Storm hits coast"},
			{"id": "4", "titleEn": "No page anywhere"},
		},
	})
	var changes int
	tbl.OnChange(func() { changes++ })

	notifier := &fakeNotifier{}
	autosave := &fakeAutosave{}
	p := NewPipeline(PipelineDeps{
		Table:        tbl,
		Orchestrator: h.orchestrator(),
		Autosave:     autosave,
		Notifier:     notifier,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		TopicIDs:     map[string]int{"Tech News": 1, "other": 9},
	})

	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.OK != 1 || stats.Failed != 1 || stats.RunID == "" {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(stats.Failures) != 1 || stats.Failures[0].ID != 4 || stats.Failures[0].Phase != "fallback_failed" || stats.Failures[0].Status != "fail" {
		t.Fatalf("unexpected failures %+v", stats.Failures)
	}
	if len(notifier.digests) != 1 || !strings.Contains(notifier.digests[0], "#4 No page anywhere: fallback_failed fail") {
		t.Fatalf("unexpected digests %v", notifier.digests)
	}
	if len(autosave.calls) != 2 || autosave.calls[0] != "pause" || autosave.calls[1] != "resume" {
		t.Fatalf("autosave should be paused around the batch, got %v", autosave.calls)
	}
	if changes == 0 {
		t.Fatal("table should be marked dirty")
	}
	if len(h.summarizer.requests) != 1 {
		t.Fatalf("expected one summarization, got %d", len(h.summarizer.requests))
	}

	events := tbl.Events()
	ids := make([]int, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	// Topic id first, then priority; unknown topics rank last.
	want := []int{3, 1, 2, 4}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", ids, want)
		}
	}
}

func TestPipelineRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	h := newHarness()
	tbl := table.New(domain.Sheet{Rows: []domain.Row{{"id": "1", "titleEn": "Storm"}}})
	p := NewPipeline(PipelineDeps{Table: tbl, Orchestrator: h.orchestrator()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats, err := p.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if stats.OK+stats.Failed != 0 || len(h.fetcher.calls) != 0 {
		t.Fatalf("no event should be processed, got %+v", stats)
	}
}

func TestPipelineRunReloadsStoredRows(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.archive.items[1] = ports.Artifact{URL: reuters, Title: "Storm hits coast", Text: article("storm")}
	h.archive.items[2] = ports.Artifact{URL: bbc, Title: "Quake hits city", Text: article("quake")}

	store := &memoryStore{sheet: domain.Sheet{
		Headers: []string{"id", "titleEn"},
		Rows:    []domain.Row{{"id": "1", "titleEn": "Storm hits coast"}},
	}}
	sheet, _ := store.LoadRows(context.Background())
	tbl := table.New(sheet)
	autosave := scheduler.NewAutosave(time.Millisecond, func(ctx context.Context) error {
		return store.SaveAllRows(ctx, tbl.Snapshot())
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	tbl.OnChange(autosave.Queue)

	p := NewPipeline(PipelineDeps{
		Table:        tbl,
		Store:        store,
		Orchestrator: h.orchestrator(),
		Autosave:     autosave,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	first, err := p.Run(context.Background())
	if err != nil || first.OK != 1 {
		t.Fatalf("first batch: stats %+v err %v", first, err)
	}

	store.put(domain.Row{"id": "2", "titleEn": "Quake hits city"})

	second, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if second.OK != 1 || second.Failed != 0 {
		t.Fatalf("ingested row should be processed, got %+v", second)
	}
	if len(h.summarizer.requests) != 2 {
		t.Fatalf("expected one summarization per batch, got %d", len(h.summarizer.requests))
	}

	saved, _ := store.snapshot()
	if len(saved.Rows) != 2 {
		t.Fatalf("ingested row was lost: %+v", saved.Rows)
	}
	for _, row := range saved.Rows {
		if row["summary"] == "" {
			t.Fatalf("row saved without summary: %+v", row)
		}
	}
}

func TestPipelineRunKeepsStoreWhenReloadFails(t *testing.T) {
	t.Parallel()

	h := newHarness()
	tbl := table.New(domain.Sheet{Rows: []domain.Row{{"id": "1", "titleEn": "Storm"}}})
	autosave := &fakeAutosave{}
	p := NewPipeline(PipelineDeps{
		Table:        tbl,
		Store:        failingStore{},
		Orchestrator: h.orchestrator(),
		Autosave:     autosave,
	})

	if _, err := p.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "reload rows") {
		t.Fatalf("expected a reload error, got %v", err)
	}
	if len(h.fetcher.calls) != 0 {
		t.Fatalf("no event should be processed, got %v", h.fetcher.calls)
	}
	if want := []string{"pause", "flush", "resume"}; strings.Join(autosave.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected autosave calls %v", autosave.calls)
	}
}

type failingStore struct{}

func (failingStore) LoadRows(context.Context) (domain.Sheet, error) {
	return domain.Sheet{}, errors.New("store down")
}

func (failingStore) SaveRow(context.Context, []string, int, domain.Row) error { return nil }

func (failingStore) SaveAllRows(context.Context, domain.Sheet) error { return nil }
