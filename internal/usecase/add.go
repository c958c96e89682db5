package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"NewsGrinder/internal/domain"
	"NewsGrinder/internal/ports"
	"NewsGrinder/internal/sources"
	"NewsGrinder/internal/table"
)

const (
	// ManualColumn marks rows added by hand.
	ManualColumn = "manual"
	// ManualAdd asks the next add run to process the row.
	ManualAdd = "add"
	// ManualDone marks a processed row.
	ManualDone = "done"
)

var (
	// ErrNoPage reports that neither the fetcher nor the browser returned HTML.
	ErrNoPage = errors.New("article page not fetched")
	// ErrShortText reports an article body too short to summarize.
	ErrShortText = errors.New("article text too short")
)

// AddOptions force fields over the model's answer.
type AddOptions struct {
	Topic    string
	Priority string
	Title    string
}

// Adder puts articles missed by the aggregator into the table.
type Adder struct {
	table    *table.Table
	orch     *Orchestrator
	autosave ports.Autosaver
	logger   *slog.Logger
	now      func() time.Time
}

// NewAdder shares the orchestrator's adapters. Autosave may be nil; when set
// it is held while rows change.
func NewAdder(t *table.Table, orch *Orchestrator, autosave ports.Autosaver, logger *slog.Logger) *Adder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adder{table: t, orch: orch, autosave: autosave, logger: logger, now: time.Now}
}

func (a *Adder) hold(ctx context.Context) func() {
	if a.autosave == nil {
		return func() {}
	}
	a.autosave.Pause()
	return func() { a.autosave.Resume(context.WithoutCancel(ctx)) }
}

// Add fetches, archives and summarizes rawURL. An existing row with a summary
// is returned untouched; an existing row without one is completed in place.
func (a *Adder) Add(ctx context.Context, rawURL string, opts AddOptions) (*domain.Event, error) {
	defer a.hold(ctx)()
	return a.add(ctx, rawURL, opts)
}

// AddAll adds every URL with the same options and joins the errors.
func (a *Adder) AddAll(ctx context.Context, urls []string, opts AddOptions) ([]*domain.Event, error) {
	defer a.hold(ctx)()

	var added []*domain.Event
	var errs []error
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		e, err := a.add(ctx, u, opts)
		if err != nil {
			a.logger.Warn("add failed", "url", u, "error", err)
			errs = append(errs, err)
			continue
		}
		added = append(added, e)
	}
	return added, errors.Join(errs...)
}

func (a *Adder) add(ctx context.Context, rawURL string, opts AddOptions) (*domain.Event, error) {
	rawURL = strings.TrimSpace(rawURL)
	link, gnURL := rawURL, ""
	if a.orch.isAggregator(rawURL) {
		gnURL = rawURL
		decoded, err := a.orch.deps.Decoder.Decode(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", rawURL, err)
		}
		link = decoded
	}
	logger := a.logger.With("url", link)

	existing := a.table.FindByURL(link)
	if existing == nil && gnURL != "" {
		existing = a.table.FindByURL(gnURL)
	}
	if existing != nil && !domain.IsBlank(existing.Summary) {
		logger.Info("article already summarized", "event_id", existing.ID)
		return existing, nil
	}

	html := a.orch.deps.Fetcher.FetchDirect(ctx, link)
	if html == "" && a.orch.deps.Browser != nil {
		var err error
		if html, err = a.orch.deps.Browser.Browse(ctx, link); err != nil {
			logger.Warn("browse failed", "error", err)
		}
	}
	if html == "" {
		return nil, fmt.Errorf("fetch %s: %w", link, ErrNoPage)
	}
	text := strings.TrimSpace(a.orch.deps.Extractor.Extract(html))
	if !hasText(text) {
		return nil, fmt.Errorf("extract %s: %w", link, ErrShortText)
	}

	e := existing
	if e == nil {
		e = &domain.Event{
			ID:     a.table.NextID(),
			GnURL:  gnURL,
			Date:   a.now().Format("2006-01-02"),
			Source: sources.FromURL(link),
			Extra:  map[string]string{ManualColumn: "true"},
		}
	}
	e.URL = link
	e.SetText(text)

	if archive := a.orch.deps.Archive; archive != nil {
		if err := archive.Save(e.ID, link, html, opts.Title, e.Text); err != nil {
			logger.Warn("archive save failed", "event_id", e.ID, "error", err)
		}
	}

	if a.orch.deps.Summarizer == nil {
		return nil, fmt.Errorf("summarize %s: summarizer is not configured", link)
	}
	res, err := a.orch.complete(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("summarize %s: %w", link, err)
	}

	topic := a.orch.opts.TopicName(res.Topic)
	if topic == "" {
		topic = res.Topic
	}
	e.Summary = res.Summary
	e.TitleRu = firstOf(opts.Title, res.TitleRu)
	e.Topic = firstOf(opts.Topic, topic)
	e.Priority = firstOf(opts.Priority, res.Priority)
	e.AITopic = a.orch.opts.TopicName(res.Topic)
	e.AIPriority = res.Priority

	if existing == nil {
		a.table.Append(e)
	} else {
		a.table.MarkDirty()
	}
	logger.Info("article added", "event_id", e.ID, "topic", e.Topic, "priority", e.Priority, "title", e.TitleRu)
	return e, nil
}

// AddMarked processes rows whose manual column says "add", keeping the
// row's topic, priority and titleRu. Processed rows are marked "done".
func (a *Adder) AddMarked(ctx context.Context) ([]*domain.Event, error) {
	defer a.hold(ctx)()

	var done []*domain.Event
	for _, e := range a.table.Events() {
		if e.Extra[ManualColumn] != ManualAdd || !domain.IsBlank(e.Summary) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return done, err
		}
		link := firstOf(e.GnURL, e.URL)
		if link == "" {
			a.logger.Warn("manual row without url", "event_id", e.ID)
			continue
		}
		added, err := a.add(ctx, link, AddOptions{Topic: e.Topic, Priority: e.Priority, Title: e.TitleRu})
		if err != nil {
			a.logger.Warn("manual add failed", "event_id", e.ID, "error", err)
			continue
		}
		added.Extra = withValue(added.Extra, ManualColumn, ManualDone)
		a.table.MarkDirty()
		done = append(done, added)
	}
	return done, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if !domain.IsBlank(v) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func withValue(m map[string]string, key, value string) map[string]string {
	if m == nil {
		m = map[string]string{}
	}
	m[key] = value
	return m
}
