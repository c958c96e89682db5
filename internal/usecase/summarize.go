package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"NewsGrinder/internal/domain"
	"NewsGrinder/internal/logging"
	"NewsGrinder/internal/ports"
)

// summarize asks the model for topic, priority, Russian title and summary.
// Topic, priority and titleRu only fill blanks; the summary is replaced.
// It reports whether the event ends with a summary.
func (o *Orchestrator) summarize(ctx context.Context, e *domain.Event) bool {
	if !hasText(e.Text) || o.deps.Summarizer == nil {
		return false
	}
	res, err := o.complete(ctx, e)
	if err != nil {
		o.log.Log(ctx, e, slog.LevelWarn, fmt.Sprintf("#%d summarize failed", e.ID), logging.Fields{
			Phase:  "summary",
			Status: "error",
			Reason: err.Error(),
			Error:  err,
		})
		return false
	}

	if domain.IsBlank(res.Summary) {
		o.log.Log(ctx, e, slog.LevelWarn, fmt.Sprintf("#%d summary empty", e.ID), logging.Fields{
			Phase:  "summary",
			Status: "empty",
			Tokens: res.Tokens,
		})
		return false
	}

	topic := o.opts.TopicName(res.Topic)
	fillBlank(&e.Topic, topic)
	fillBlank(&e.Priority, res.Priority)
	fillBlank(&e.TitleRu, res.TitleRu)
	e.Summary = res.Summary
	e.AITopic = topic
	e.AIPriority = res.Priority

	o.log.Log(ctx, e, slog.LevelInfo, fmt.Sprintf("#%d summarized", e.ID), logging.Fields{
		Phase:      "summary",
		Status:     "ok",
		TextLength: len([]rune(e.Text)),
		Tokens:     res.Tokens,
	})
	return !domain.IsBlank(e.Summary)
}

// complete calls the summarizer through the AI channel gate and spaces the
// next call by the tokens used.
func (o *Orchestrator) complete(ctx context.Context, e *domain.Event) (ports.Summary, error) {
	if gate := o.deps.AIGate; gate != nil {
		if err := gate.Wait(ctx); err != nil {
			return ports.Summary{}, err
		}
	}
	res, err := o.deps.Summarizer.Summarize(ctx, ports.SummaryRequest{
		Title:  e.Title(),
		Source: e.Source,
		URL:    e.URL,
		Text:   e.Text,
	})
	if err != nil {
		return ports.Summary{}, err
	}
	if o.deps.AIGate != nil && o.opts.AIDelay != nil {
		o.deps.AIGate.SetDelay(o.opts.AIDelay(res.Tokens))
	}
	return res, nil
}
