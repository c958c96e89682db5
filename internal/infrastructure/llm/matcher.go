package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"NewsGrinder/internal/ports"
)

const matchPrompt = "You verify that the provided page text matches the news event. " +
	"Return ONLY JSON with keys: - match (boolean) - confidence (number 0-1) " +
	"- reason (string, <=200 chars) - page_summary (string, <=200 chars)"

var (
	fenceOpen  = regexp.MustCompile("(?i)^```(?:json)?")
	fenceClose = regexp.MustCompile("```$")
	jsonObject = regexp.MustCompile(`(?s)\{.*\}`)
)

// Matcher judges whether page text belongs to a headline.
type Matcher struct {
	client  *ChatGPTClient
	model   string
	clampAt int
	logger  *slog.Logger
}

var _ ports.MatchJudge = (*Matcher)(nil)

// NewMatcher builds a matcher; reason and page summary are clamped to
// clampAt characters.
func NewMatcher(client *ChatGPTClient, model string, clampAt int, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{client: client, model: model, clampAt: clampAt, logger: logger}
}

// Judge implements ports.MatchJudge.
func (m *Matcher) Judge(ctx context.Context, req ports.MatchRequest) (ports.Judgement, error) {
	completion, err := m.client.Complete(ctx, CompletionRequest{
		Model:       m.model,
		Temperature: 0,
		Messages: []Message{
			{Role: "system", Content: matchPrompt},
			{Role: "user", Content: userContent(req.Title, req.Source, req.URL, req.Text)},
		},
	})
	if err != nil {
		return ports.Judgement{}, err
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(cleanJSON(completion.Content)), &parsed); err != nil {
		return ports.Judgement{}, fmt.Errorf("decode judgement: %w", err)
	}
	pageSummary := stringValue(parsed["page_summary"])
	if pageSummary == "" {
		pageSummary = stringValue(parsed["pageSummary"])
	}
	return ports.Judgement{
		Match:       truthy(parsed["match"]),
		Confidence:  number(parsed["confidence"]),
		Reason:      clamp(stringValue(parsed["reason"]), m.clampAt),
		PageSummary: clamp(pageSummary, m.clampAt),
		Tokens:      completion.TotalTokens,
	}, nil
}

// cleanJSON strips code fences and surrounding prose from a model answer.
func cleanJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = fenceOpen.ReplaceAllString(trimmed, "")
		trimmed = strings.TrimSpace(fenceClose.ReplaceAllString(trimmed, ""))
	}
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return trimmed
	}
	if match := jsonObject.FindString(trimmed); match != "" {
		return match
	}
	return trimmed
}

func clamp(text string, max int) string {
	runes := []rune(text)
	if max <= 0 || len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "0"
	case float64:
		return t != 0
	default:
		return false
	}
}

func number(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	case bool:
		if t {
			return 1
		}
	}
	return 0
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
