package logging

import (
	"context"
	"log/slog"

	"NewsGrinder/internal/domain"
)

// Fields are the phase-specific attributes of one event transition. Zero
// values are omitted.
type Fields struct {
	Phase           string
	Status          string
	Method          string
	Attempt         int
	TextLength      int
	Confidence      float64
	Reason          string
	PageSummary     string
	CandidateSource string
	Level           *int
	Query           string
	Queries         []string
	Candidates      []map[string]any
	URL             string
	Tokens          int
	Error           error
}

// Events logs event state transitions to slog and the optional fetch log, and
// remembers the last transition on the event for the failure digest.
type Events struct {
	logger *slog.Logger
	sink   *FetchLog
}

// NewEvents wires the console logger and an optional JSON lines sink.
func NewEvents(logger *slog.Logger, sink *FetchLog) *Events {
	if logger == nil {
		logger = slog.Default()
	}
	return &Events{logger: logger, sink: sink}
}

// Log records one transition of e. Method, reason and page summary of the
// trace are only replaced by non-empty values.
func (l *Events) Log(ctx context.Context, e *domain.Event, level slog.Level, message string, f Fields) {
	if e != nil && f.Phase != "" {
		e.Trace.Phase = f.Phase
		e.Trace.Status = f.Status
		keep(&e.Trace.Method, f.Method)
		keep(&e.Trace.Reason, f.Reason)
		keep(&e.Trace.PageSummary, f.PageSummary)
	}

	data := map[string]any{}
	attrs := make([]slog.Attr, 0, 16)
	add := func(key string, value any) {
		data[key] = value
		attrs = append(attrs, slog.Any(key, value))
	}

	if e != nil {
		add("event_id", e.ID)
		add("title", e.Title())
		add("source", e.Source)
		add("gn_url", e.GnURL)
		url := e.URL
		if f.URL != "" {
			url = f.URL
		}
		add("url", url)
	}
	if f.Phase != "" {
		add("phase", f.Phase)
	}
	if f.Status != "" {
		add("status", f.Status)
	}
	if f.Method != "" {
		add("method", f.Method)
	}
	if f.Attempt > 0 {
		add("attempt", f.Attempt)
	}
	if f.TextLength > 0 {
		add("text_length", f.TextLength)
	}
	if f.Confidence > 0 {
		add("confidence", f.Confidence)
	}
	if f.Reason != "" {
		add("reason", f.Reason)
	}
	if f.PageSummary != "" {
		add("page_summary", f.PageSummary)
	}
	if f.CandidateSource != "" {
		add("candidate_source", f.CandidateSource)
	}
	if f.Level != nil {
		add("trust_level", *f.Level)
	}
	if f.Query != "" {
		add("query", f.Query)
	}
	if len(f.Queries) > 0 {
		add("queries", f.Queries)
	}
	if len(f.Candidates) > 0 {
		add("candidates", f.Candidates)
	}
	if f.Tokens > 0 {
		add("tokens", f.Tokens)
	}
	if f.Error != nil {
		add("error", f.Error.Error())
	}

	l.logger.LogAttrs(ctx, level, message, attrs...)
	if err := l.sink.Write(level.String(), message, data); err != nil {
		l.logger.Warn("fetch log write failed", "error", err)
	}
}

// Logger returns the console logger.
func (l *Events) Logger() *slog.Logger {
	return l.logger
}

func keep(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// IntPtr is a helper for the optional Level field.
func IntPtr(v int) *int {
	return &v
}
