package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"NewsGrinder/internal/candidates"
	"NewsGrinder/internal/domain"
	"NewsGrinder/internal/logging"
	"NewsGrinder/internal/ports"
	"NewsGrinder/internal/sources"
	"NewsGrinder/internal/verify"
)

func article(word string) string {
	return strings.TrimSpace(strings.Repeat(word+" ", 120))
}

type fakeFetcher struct {
	pages map[string]string
	calls []string
	delay time.Duration
}

func (f *fakeFetcher) FetchDirect(_ context.Context, url string) string {
	f.calls = append(f.calls, url)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.pages[url]
}

type fakeBrowser struct {
	pages map[string]string
	calls []string
}

func (b *fakeBrowser) Browse(_ context.Context, url string) (string, error) {
	b.calls = append(b.calls, url)
	return b.pages[url], nil
}

// passthrough treats the HTML as already extracted text.
type passthrough struct{}

func (passthrough) Extract(html string) string { return html }

type decodeStep struct {
	url string
	err error
}

type fakeDecoder struct {
	steps map[string][]decodeStep
	calls []string
}

func (d *fakeDecoder) Decode(_ context.Context, gnURL string) (string, error) {
	d.calls = append(d.calls, gnURL)
	steps := d.steps[gnURL]
	if len(steps) == 0 {
		return "", errors.New("no decode result")
	}
	step := steps[0]
	if len(steps) > 1 {
		d.steps[gnURL] = steps[1:]
	}
	return step.url, step.err
}

type fakeNews struct {
	results map[string][]ports.NewsItem
	queries []string
}

func (n *fakeNews) SearchNews(_ context.Context, query string) []ports.NewsItem {
	n.queries = append(n.queries, query)
	return n.results[query]
}

type fakeExternal struct {
	enabled bool
	results map[string][]domain.Candidate
	queries []string
}

func (x *fakeExternal) Enabled() bool { return x.enabled }

func (x *fakeExternal) SearchExternal(_ context.Context, query string) []domain.Candidate {
	x.queries = append(x.queries, query)
	return x.results[query]
}

type fakeArchive struct {
	items map[int]ports.Artifact
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{items: map[int]ports.Artifact{}}
}

func (a *fakeArchive) Save(id int, url, html, title, text string) error {
	a.items[id] = ports.Artifact{URL: url, HTML: html, Title: title, Text: text}
	return nil
}

func (a *fakeArchive) Load(id int) (ports.Artifact, error) {
	item, ok := a.items[id]
	if !ok {
		return ports.Artifact{}, ports.ErrNotFound
	}
	return item, nil
}

// fakeJudge matches every URL listed in matches.
type fakeJudge struct {
	matches  map[string]bool
	requests []string
}

func (j *fakeJudge) Judge(_ context.Context, req ports.MatchRequest) (ports.Judgement, error) {
	j.requests = append(j.requests, req.URL)
	if j.matches[req.URL] {
		return ports.Judgement{Match: true, Confidence: 0.9, Reason: "same story"}, nil
	}
	return ports.Judgement{Match: false, Confidence: 0.9, Reason: "different story", PageSummary: "about something else"}, nil
}

type fakeSummarizer struct {
	result   ports.Summary
	err      error
	requests []ports.SummaryRequest
}

func (s *fakeSummarizer) Summarize(_ context.Context, req ports.SummaryRequest) (ports.Summary, error) {
	s.requests = append(s.requests, req)
	return s.result, s.err
}

type fakeNotifier struct {
	digests []string
}

func (n *fakeNotifier) PublishDigest(_ context.Context, digest string) error {
	n.digests = append(n.digests, digest)
	return nil
}

type fakeAutosave struct {
	calls []string
}

func (a *fakeAutosave) Pause()                   { a.calls = append(a.calls, "pause") }
func (a *fakeAutosave) Resume(_ context.Context) { a.calls = append(a.calls, "resume") }

func (a *fakeAutosave) Flush(_ context.Context) error {
	a.calls = append(a.calls, "flush")
	return nil
}

// memoryStore is a row store kept in memory. Other tools may write through
// put while the pipeline runs batches.
type memoryStore struct {
	mu    sync.Mutex
	sheet domain.Sheet
	saves int
}

func (s *memoryStore) LoadRows(_ context.Context) (domain.Sheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sheet.Clone(), nil
}

func (s *memoryStore) SaveRow(_ context.Context, headers []string, index int, row domain.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheet.Headers = append([]string(nil), headers...)
	for len(s.sheet.Rows) <= index {
		s.sheet.Rows = append(s.sheet.Rows, domain.Row{})
	}
	s.sheet.Rows[index] = row
	return nil
}

func (s *memoryStore) SaveAllRows(_ context.Context, sheet domain.Sheet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheet = sheet.Clone()
	s.saves++
	return nil
}

func (s *memoryStore) put(row domain.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheet.Rows = append(s.sheet.Rows, row)
}

func (s *memoryStore) snapshot() (domain.Sheet, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sheet.Clone(), s.saves
}

// harness bundles the fakes behind one orchestrator.
type harness struct {
	fetcher    *fakeFetcher
	browser    *fakeBrowser
	decoder    *fakeDecoder
	news       *fakeNews
	external   *fakeExternal
	archive    *fakeArchive
	judge      *fakeJudge
	summarizer *fakeSummarizer
	sleeps     []time.Duration
	mode       verify.Mode
}

func newHarness() *harness {
	return &harness{
		fetcher:  &fakeFetcher{pages: map[string]string{}},
		browser:  &fakeBrowser{pages: map[string]string{}},
		decoder:  &fakeDecoder{steps: map[string][]decodeStep{}},
		news:     &fakeNews{results: map[string][]ports.NewsItem{}},
		external: &fakeExternal{results: map[string][]domain.Candidate{}},
		archive:  newFakeArchive(),
		judge:    &fakeJudge{matches: map[string]bool{}},
		summarizer: &fakeSummarizer{result: ports.Summary{
			Topic:    "tech",
			Priority: "3",
			TitleRu:  "Заголовок",
			Summary:  "Кратко о главном",
			Tokens:   120,
		}},
		mode: verify.ModeFallback,
	}
}

func (h *harness) orchestrator() *Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	trust := sources.NewTrustTable(map[string]int{
		"Reuters":  5,
		"BBC":      4,
		"CNN":      3,
		"Tabloid":  1,
		"Blogspot": 0,
	}, 2)
	verifier := verify.New(h.judge, nil, verify.Options{
		Gate:          verify.Gate{Mode: h.mode, ShortThreshold: 1500},
		MinConfidence: 0.6,
		FailOpen:      true,
	}, logger)
	return NewOrchestrator(OrchestratorDeps{
		Fetcher:    h.fetcher,
		Browser:    h.browser,
		Extractor:  passthrough{},
		Verifier:   verifier,
		Decoder:    h.decoder,
		News:       h.news,
		External:   h.external,
		Archive:    h.archive,
		Summarizer: h.summarizer,
		Candidates: candidates.NewResolver(trust, 3, 1),
		Events:     logging.NewEvents(logger, nil),
	}, OrchestratorOptions{
		FetchAttempts:      2,
		DecodeFailurePause: 5 * time.Minute,
		TopicName: func(topic string) string {
			if topic == "tech" {
				return "Tech News"
			}
			return ""
		},
		Sleep: func(_ context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		},
	})
}
