// Package llm talks to an OpenAI-compatible chat completions API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"NewsGrinder/internal/config"
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a single chat completion call.
type CompletionRequest struct {
	Model          string
	Temperature    float64
	Messages       []Message
	ResponseFormat any
}

// Completion is the first choice of a completion and its token usage.
type Completion struct {
	Content     string
	TotalTokens int
}

// ChatGPTClient posts chat completions to an OpenAI-compatible endpoint.
type ChatGPTClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig) *ChatGPTClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatGPTClient{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Complete sends the messages and returns the first choice.
func (c *ChatGPTClient) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	if c == nil {
		return Completion{}, errors.New("chatgpt client is nil")
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	if c.apiKey == "" || c.endpoint == "" || model == "" {
		return Completion{}, errors.New("chatgpt client misconfigured")
	}

	payload := map[string]any{
		"model":       model,
		"temperature": req.Temperature,
		"messages":    req.Messages,
	}
	if req.ResponseFormat != nil {
		payload["response_format"] = req.ResponseFormat
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Completion{}, fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Completion{}, fmt.Errorf("send completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Completion{}, fmt.Errorf("chatgpt error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded struct {
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Completion{}, fmt.Errorf("decode completion: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return Completion{}, errors.New("completion has no choices")
	}
	return Completion{
		Content:     decoded.Choices[0].Message.Content,
		TotalTokens: decoded.Usage.TotalTokens,
	}, nil
}

func userContent(title, source, url, text string) string {
	return strings.Join([]string{
		"Title: " + title,
		"Source: " + source,
		"URL: " + url,
		"Text:",
		text,
	}, "\n")
}
