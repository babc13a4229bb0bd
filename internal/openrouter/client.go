// Package openrouter implements the completion client against OpenRouter's
// OpenAI-compatible chat completions API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"cottbot/internal/logging"
	"cottbot/internal/types"
)

const maxResponseBytes = 10 * 1024 * 1024

// Config holds connection settings for the OpenRouter API.
type Config struct {
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	SiteURL  string // Optional: reported to OpenRouter for rankings
	SiteName string // Optional: reported to OpenRouter for rankings
}

// DefaultConfig returns sensible defaults for the given key.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:  apiKey,
		BaseURL: "https://openrouter.ai/api/v1",
		Timeout: 2 * time.Minute,
	}
}

// Client talks to OpenRouter. Safe for concurrent use.
//
// Requests are routed with provider sort "throughput" so the fastest
// available provider serves each call. Calls are not retried here; a failed
// completion surfaces to the pipeline, which reports it to the user.
type Client struct {
	apiKey     string
	baseURL    string
	siteURL    string
	siteName   string
	httpClient *http.Client
}

// NewClient creates a client from config, filling blank fields from defaults.
func NewClient(cfg Config) *Client {
	def := DefaultConfig(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Client{
		apiKey:   cfg.APIKey,
		baseURL:  cfg.BaseURL,
		siteURL:  cfg.SiteURL,
		siteName: cfg.SiteName,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Complete sends one chat completion request and returns the parsed result.
func (c *Client) Complete(ctx context.Context, model string, messages []types.ConversationMessage, tools []types.ToolDefinition) (*types.CompletionResult, error) {
	if c.apiKey == "" {
		logging.APIError("Complete: API key not configured")
		return nil, fmt.Errorf("API key not configured")
	}

	// Apply the client timeout when the caller brought no deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.APIDebug("Complete: model=%s messages=%d tools=%d", model, len(messages), len(tools))

	reqBody := chatRequest{
		Model:    model,
		Messages: make([]wireMessage, 0, len(messages)),
		Provider: &providerPrefs{Sort: "throughput"},
		Usage:    &usageInclusion{Include: true},
	}
	for _, m := range messages {
		wm, err := encodeMessage(m)
		if err != nil {
			return nil, fmt.Errorf("failed to encode message: %w", err)
		}
		reqBody.Messages = append(reqBody.Messages, wm)
	}
	if len(tools) > 0 {
		reqBody.Tools = encodeTools(tools)
		reqBody.ToolChoice = "auto"
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.siteURL != "" {
		req.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		req.Header.Set("X-Title", c.siteName)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.APIError("Complete: request failed after %v: %v", time.Since(startTime), err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logging.APIError("Complete: status %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		logging.APIError("Complete: no completion returned")
		return nil, fmt.Errorf("no completion returned")
	}

	choice := parsed.Choices[0]
	result := &types.CompletionResult{
		Text: choice.Message.Content,
		Usage: types.UsageMetadata{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		if tc.Type != "" && tc.Type != "function" {
			continue
		}
		result.ToolCalls = append(result.ToolCalls, types.ToolCall{
			ID:           tc.ID,
			Name:         tc.Function.Name,
			RawArguments: tc.Function.Arguments,
		})
	}

	logging.API("Complete: model=%s finish=%s tool_calls=%d in %v",
		model, choice.FinishReason, len(result.ToolCalls), time.Since(startTime))
	return result, nil
}

// encodeMessage converts a conversation message to its wire form. Multipart
// bodies become a content array; everything else is a JSON string.
func encodeMessage(m types.ConversationMessage) (wireMessage, error) {
	wm := wireMessage{
		Role:       string(m.Role),
		ToolCallID: m.ToolCallID,
	}

	for _, tc := range m.ToolCalls {
		wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: wireFunctionCall{
				Name:      tc.Name,
				Arguments: tc.RawArguments,
			},
		})
	}

	var content interface{}
	if m.IsMultipart() {
		parts := make([]contentPart, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch p.Type {
			case "image_url":
				parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageRef{URL: p.ImageURL}})
			default:
				parts = append(parts, contentPart{Type: "text", Text: p.Text})
			}
		}
		content = parts
	} else if m.Text != "" || len(wm.ToolCalls) == 0 {
		content = m.Text
	}

	if content != nil {
		raw, err := json.Marshal(content)
		if err != nil {
			return wireMessage{}, err
		}
		wm.Content = raw
	}
	return wm, nil
}

// encodeTools converts tool definitions to the OpenAI function-tool shape.
func encodeTools(tools []types.ToolDefinition) []wireTool {
	result := make([]wireTool, len(tools))
	for i, t := range tools {
		result[i] = wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		}
	}
	return result
}
