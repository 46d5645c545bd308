// Package llm is the text-generation collaborator used by AI Refine. It talks
// to any OpenAI-compatible /chat/completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-3.5-turbo"
	DefaultTimeout = 120 * time.Second

	systemPrompt = "You are a helpful assistant that synthesizes information."

	// promptSeparator sits between the instruction and the clip context.
	promptSeparator = "\n\n---\n\n"
)

const (
	// maxResponseBytes caps a completion body read from the endpoint.
	maxResponseBytes = 4 << 20
	// maxErrorBody caps an error body; maxErrorMessage caps what of it is kept.
	maxErrorBody    = 64 << 10
	maxErrorMessage = 512
)

// Config holds configuration for the client.
type Config struct {
	// APIKey is the bearer token (required).
	APIKey string

	// BaseURL is the API base URL. Compatible gateways work as long as they
	// serve /chat/completions.
	BaseURL string

	Model string

	Timeout time.Duration
}

// UpstreamError is a failure reported by, or on the way to, the endpoint.
// StatusCode is 0 when no HTTP response was received.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return "llm: " + e.Message
	}
	return fmt.Sprintf("llm: status %d: %s", e.StatusCode, e.Message)
}

// Client generates text with an OpenAI-compatible API.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

type chatCompletionRequest struct {
	Model    string              `json:"model"`
	Messages []chatCompletionMsg `json:"messages"`
}

type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// New creates a client. An empty API key is rejected up front.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &UpstreamError{Message: "API key is required"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}, nil
}

// Model returns the model name requests are sent with.
func (c *Client) Model() string { return c.model }

// Generate sends instruction and content as one user turn and returns the
// first choice verbatim.
func (c *Client) Generate(ctx context.Context, instruction, content string) (string, error) {
	reqBody := chatCompletionRequest{
		Model: c.model,
		Messages: []chatCompletionMsg{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: instruction + promptSeparator + content},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &UpstreamError{Message: err.Error()}
	}
	defer resp.Body.Close()

	limit := int64(maxResponseBytes)
	if resp.StatusCode != http.StatusOK {
		limit = maxErrorBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Message: "read response: " + err.Error()}
	}
	if int64(len(body)) > limit {
		if resp.StatusCode == http.StatusOK {
			return "", &UpstreamError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("response exceeds %d bytes", limit)}
		}
		body = body[:limit]
	}

	var chatResp chatCompletionResponse
	decodeErr := json.Unmarshal(body, &chatResp)

	if decodeErr == nil && chatResp.Error != nil {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Message: truncateMessage(chatResp.Error.Message)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Message: truncateMessage(string(body))}
	}
	if decodeErr != nil {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Message: "decode response: " + decodeErr.Error()}
	}
	if len(chatResp.Choices) == 0 {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Message: "no response choices returned"}
	}

	return chatResp.Choices[0].Message.Content, nil
}

// Ping validates the key against the /models endpoint without running inference.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return &UpstreamError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamError{StatusCode: resp.StatusCode, Message: truncateMessage(string(body))}
	}
	return nil
}

// truncateMessage trims an upstream error text to maxErrorMessage runes.
func truncateMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if utf8.RuneCountInString(msg) <= maxErrorMessage {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:maxErrorMessage]) + "…"
}
