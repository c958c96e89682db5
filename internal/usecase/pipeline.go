package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"NewsGrinder/internal/domain"
	"NewsGrinder/internal/ports"
	"NewsGrinder/internal/table"
)

// skippedTopic marks rows the batch never summarizes.
const skippedTopic = "other"

// PipelineDeps wires the table, the orchestrator and the outbound channels.
// Store, Autosave and Notifier may be nil. With a Store every batch starts
// from the stored rows.
type PipelineDeps struct {
	Table        *table.Table
	Store        ports.RowStore
	Orchestrator *Orchestrator
	Autosave     ports.Autosaver
	Notifier     ports.Notifier
	Logger       *slog.Logger
	TopicIDs     map[string]int
	DigestLimit  int
}

// Pipeline implements the summarize batch over the news table.
type Pipeline struct {
	table        *table.Table
	store        ports.RowStore
	orchestrator *Orchestrator
	autosave     ports.Autosaver
	notifier     ports.Notifier
	logger       *slog.Logger
	topicIDs     map[string]int
	digestLimit  int
}

// Failure is one event left without a summary, with its last transition.
type Failure struct {
	ID     int
	Title  string
	Source string
	Phase  string
	Status string
	Reason string
}

// Stats counts the outcome of one batch.
type Stats struct {
	RunID    string
	OK       int
	Failed   int
	Failures []Failure
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := deps.DigestLimit
	if limit <= 0 {
		limit = 20
	}
	return &Pipeline{
		table:        deps.Table,
		store:        deps.Store,
		orchestrator: deps.Orchestrator,
		autosave:     deps.Autosave,
		notifier:     deps.Notifier,
		logger:       logger,
		topicIDs:     deps.TopicIDs,
		digestLimit:  limit,
	}
}

// Run processes every row without a summary, one at a time, then sorts the
// table and reports failures.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	stats := Stats{RunID: uuid.NewString()}
	logger := p.logger.With("run_id", stats.RunID)

	if p.autosave != nil {
		p.autosave.Pause()
		defer p.autosave.Resume(context.WithoutCancel(ctx))
	}
	if err := p.reload(ctx); err != nil {
		return stats, err
	}

	work := Select(p.table.Events())
	logger.Info("batch started", "rows", p.table.Len(), "selected", len(work))

	for i, e := range work {
		if err := ctx.Err(); err != nil {
			logger.Warn("batch interrupted", "processed", i, "error", err)
			break
		}
		logger.Info("processing", "event_id", e.ID, "position", i+1, "total", len(work), "title", e.Title())

		ok := p.orchestrator.Process(ctx, e)
		p.table.MarkDirty()
		if ok {
			stats.OK++
			continue
		}
		stats.Failed++
		stats.Failures = append(stats.Failures, Failure{
			ID:     e.ID,
			Title:  e.Title(),
			Source: e.Source,
			Phase:  e.Trace.Phase,
			Status: e.Trace.Status,
			Reason: e.Trace.Reason,
		})
	}

	p.table.Sort(p.topicIDs)
	logger.Info("batch finished", "ok", stats.OK, "failed", stats.Failed)

	if digest := BuildDigest(stats.Failures, p.digestLimit); digest != "" {
		logger.Warn("failure digest", "digest", digest)
		if p.notifier != nil {
			if err := p.notifier.PublishDigest(context.WithoutCancel(ctx), digest); err != nil {
				logger.Warn("publish digest failed", "error", err)
			}
		}
	}
	return stats, ctx.Err()
}

// reload writes pending local changes, then replaces the table with the
// stored rows so rows written by other tools since the last batch are seen.
func (p *Pipeline) reload(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	if p.autosave != nil {
		if err := p.autosave.Flush(ctx); err != nil {
			return fmt.Errorf("flush before reload: %w", err)
		}
	}
	sheet, err := p.store.LoadRows(ctx)
	if err != nil {
		return fmt.Errorf("reload rows: %w", err)
	}
	p.table.Replace(sheet)
	return nil
}

// Select returns the rows the batch works on: no summary yet and a topic
// other than "other".
func Select(events []*domain.Event) []*domain.Event {
	var work []*domain.Event
	for _, e := range events {
		if !domain.IsBlank(e.Summary) || strings.EqualFold(strings.TrimSpace(e.Topic), skippedTopic) {
			continue
		}
		work = append(work, e)
	}
	return work
}

// BuildDigest formats at most limit failures as plain text.
func BuildDigest(failures []Failure, limit int) string {
	if len(failures) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Events without summary: %d\n", len(failures))
	for i, f := range failures {
		if limit > 0 && i == limit {
			fmt.Fprintf(&b, "... and %d more\n", len(failures)-limit)
			break
		}
		fmt.Fprintf(&b, "- #%d %s", f.ID, f.Title)
		if f.Source != "" {
			fmt.Fprintf(&b, " (%s)", f.Source)
		}
		if f.Phase != "" {
			fmt.Fprintf(&b, ": %s %s", f.Phase, f.Status)
		}
		if f.Reason != "" {
			fmt.Fprintf(&b, ", %s", f.Reason)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
