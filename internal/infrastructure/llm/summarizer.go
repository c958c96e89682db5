package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"NewsGrinder/internal/config"
	"NewsGrinder/internal/ports"
	"NewsGrinder/internal/ratelimit"
)

const defaultInstructions = "You are a news summarizer. Return concise results."

var summarySchema = map[string]any{
	"type": "json_schema",
	"json_schema": map[string]any{
		"name":   "news_summary",
		"strict": true,
		"schema": map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"topic":    map[string]any{"type": "string"},
				"priority": map[string]any{"type": []string{"string", "number"}},
				"titleRu":  map[string]any{"type": "string"},
				"summary":  map[string]any{"type": "string"},
			},
			"required": []string{"topic", "priority", "summary", "titleRu"},
		},
	},
}

// Summarizer asks the model for topic, priority, Russian title and summary.
type Summarizer struct {
	client      *ChatGPTClient
	model       string
	temperature float64
	system      string
	retries     int
	pause       time.Duration
	sleep       ratelimit.Sleeper
	logger      *slog.Logger
}

var _ ports.Summarizer = (*Summarizer)(nil)

// NewSummarizer builds a summarizer from the chatgpt section.
func NewSummarizer(client *ChatGPTClient, cfg config.ChatGPTConfig, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	instructions := strings.TrimSpace(cfg.SystemPrompt)
	if instructions == "" {
		instructions = defaultInstructions
	}
	return &Summarizer{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		system: strings.Join([]string{
			instructions,
			"Return ONLY JSON with keys: topic, priority, titleRu, summary.",
			"Use topic values that exist in the provided taxonomy when possible.",
		}, "\n"),
		retries: cfg.SummarizeRetries,
		pause:   cfg.RetryPause,
		sleep:   ratelimit.Sleep,
		logger:  logger,
	}
}

// WithSleeper replaces the pause between failed attempts, mostly for tests.
func (s *Summarizer) WithSleeper(sleep ratelimit.Sleeper) *Summarizer {
	s.sleep = sleep
	return s
}

// Summarize retries failed calls with a fixed pause.
func (s *Summarizer) Summarize(ctx context.Context, req ports.SummaryRequest) (ports.Summary, error) {
	var out ports.Summary
	err := ratelimit.Retry(ctx, ratelimit.Policy{Attempts: s.retries, BaseDelay: s.pause, Sleep: s.sleep}, func(attempt int) error {
		res, err := s.summarizeOnce(ctx, req)
		if err != nil {
			s.logger.Warn("summarize failed", "attempt", attempt, "error", err)
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return ports.Summary{}, fmt.Errorf("summarize: %w", err)
	}
	s.logger.Info("summarized", "chars", len([]rune(out.Summary)), "tokens", out.Tokens)
	return out, nil
}

func (s *Summarizer) summarizeOnce(ctx context.Context, req ports.SummaryRequest) (ports.Summary, error) {
	completion, err := s.client.Complete(ctx, CompletionRequest{
		Model:       s.model,
		Temperature: s.temperature,
		Messages: []Message{
			{Role: "system", Content: s.system},
			{Role: "user", Content: userContent(req.Title, req.Source, req.URL, req.Text)},
		},
		ResponseFormat: summarySchema,
	})
	if err != nil {
		return ports.Summary{}, err
	}

	var parsed struct {
		Topic    string          `json:"topic"`
		Priority json.RawMessage `json:"priority"`
		TitleRu  string          `json:"titleRu"`
		Summary  string          `json:"summary"`
	}
	if err := json.Unmarshal([]byte(completion.Content), &parsed); err != nil {
		return ports.Summary{}, fmt.Errorf("decode summary: %w", err)
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return ports.Summary{}, fmt.Errorf("summary is empty")
	}
	return ports.Summary{
		Topic:    strings.TrimSpace(parsed.Topic),
		Priority: priority(parsed.Priority),
		TitleRu:  strings.TrimSpace(parsed.TitleRu),
		Summary:  parsed.Summary,
		Tokens:   completion.TotalTokens,
	}, nil
}

// priority accepts both "3" and 3.
func priority(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return strconv.FormatFloat(number, 'f', -1, 64)
	}
	return ""
}

// DelayForTokens spaces the next AI call by token usage against a per-minute
// budget.
func DelayForTokens(tokens, perMinute int) time.Duration {
	if tokens <= 0 || perMinute <= 0 {
		return 0
	}
	return time.Duration(float64(tokens) / float64(perMinute) * float64(time.Minute))
}
