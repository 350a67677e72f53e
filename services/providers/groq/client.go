package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/loomcast/script-gateway/services"
	"github.com/loomcast/script-gateway/services/providers"
)

const (
	// ProviderName identifies this provider in routing and responses
	ProviderName = "groq"

	credentialKey = "GROQ_API_KEY"
)

// Client implements the single-prompt provider over groq's
// OpenAI-compatible chat completions surface. The conversation is
// flattened into one user prompt before dispatch.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Config holds groq client configuration
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewClient creates a new groq client
func NewClient(cfg Config) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		// No client-level timeout; the dispatcher owns the deadline
		httpClient: &http.Client{},
	}
}

// Name returns the provider identifier
func (c *Client) Name() string {
	return ProviderName
}

// CallStyle returns the provider call style
func (c *Client) CallStyle() providers.CallStyle {
	return providers.CallStyleSinglePrompt
}

// HasCredentials reports whether an API key was configured at startup
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Invoke flattens the conversation into a single prompt, performs one
// outbound call, and returns the provider-native response body
func (c *Client) Invoke(ctx context.Context, prompt providers.Prompt) (string, error) {
	if !c.HasCredentials() {
		return "", services.NewConfigError(credentialKey)
	}

	model := c.model
	if prompt.Model != "" {
		model = prompt.Model
	}

	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "user", Content: FlattenMessages(prompt.Messages)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("groq: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("groq: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			// Let the dispatcher classify deadline expiry as Timeout
			return "", fmt.Errorf("groq: request cancelled: %w", ctx.Err())
		}
		return "", services.NewUpstreamError(0, "groq request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("groq: response read cancelled: %w", ctx.Err())
		}
		return "", services.NewUpstreamError(resp.StatusCode, "groq response read failed", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", services.NewUpstreamError(resp.StatusCode,
			fmt.Sprintf("groq %s returned status %d: %s", model, resp.StatusCode, truncate(string(respBody), 200)),
			nil)
	}

	return string(respBody), nil
}

// ExtractText pulls the first choice's message content out of the
// OpenAI-shaped response envelope. Any missing field yields an empty string.
func (c *Client) ExtractText(raw string) string {
	var envelope chatResponse
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return ""
	}
	if len(envelope.Choices) == 0 {
		return ""
	}
	return envelope.Choices[0].Message.Content
}

// FlattenMessages renders a multi-turn conversation as one prompt
// string, prefixing non-user turns with their role
func FlattenMessages(messages []providers.Message) string {
	var sb strings.Builder
	for i, msg := range messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		switch msg.Role {
		case "system":
			sb.WriteString("Instructions: ")
		case "assistant":
			sb.WriteString("Assistant: ")
		}
		sb.WriteString(msg.Content)
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Groq-specific request/response types (OpenAI-compatible)

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

var _ providers.Client = (*Client)(nil)
