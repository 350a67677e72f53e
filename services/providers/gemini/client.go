package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/loomcast/script-gateway/services"
	"github.com/loomcast/script-gateway/services/providers"
)

const (
	// ProviderName identifies this provider in routing and responses
	ProviderName = "gemini"

	credentialKey = "GEMINI_API_KEY"
)

// Client implements the chat-style cascading provider. One instance is
// built at startup and shared by all requests; it holds no mutable state.
type Client struct {
	apiKey     string
	baseURL    string
	cascade    []providers.Endpoint
	httpClient *http.Client
}

// Config holds gemini client configuration
type Config struct {
	APIKey  string
	BaseURL string
	Cascade []providers.Endpoint
}

// NewClient creates a new gemini client
func NewClient(cfg Config) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cascade: cfg.Cascade,
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
	return providers.CallStyleChat
}

// HasCredentials reports whether an API key was configured at startup
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Cascade returns the ordered candidate endpoints
func (c *Client) Cascade() []providers.Endpoint {
	return c.cascade
}

// Invoke performs one call against the first cascade endpoint. Fallback
// across endpoints is the cascade's job, not the client's.
func (c *Client) Invoke(ctx context.Context, prompt providers.Prompt) (string, error) {
	endpoint, err := c.resolveEndpoint(prompt)
	if err != nil {
		return "", err
	}
	return c.InvokeEndpoint(ctx, prompt, endpoint)
}

// InvokeEndpoint performs one outbound call against a specific cascade
// endpoint and returns the provider-native response body
func (c *Client) InvokeEndpoint(ctx context.Context, prompt providers.Prompt, endpoint providers.Endpoint) (string, error) {
	if !c.HasCredentials() {
		return "", services.NewConfigError(credentialKey)
	}

	body, err := json.Marshal(buildGenerateRequest(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, endpoint.APIVersion, endpoint.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			// Let the dispatcher classify deadline expiry as Timeout
			return "", fmt.Errorf("gemini: request cancelled: %w", ctx.Err())
		}
		return "", services.NewUpstreamError(0, "gemini request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("gemini: response read cancelled: %w", ctx.Err())
		}
		return "", services.NewUpstreamError(resp.StatusCode, "gemini response read failed", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", services.NewUpstreamError(resp.StatusCode,
			fmt.Sprintf("gemini %s/%s returned status %d: %s",
				endpoint.APIVersion, endpoint.Model, resp.StatusCode, truncate(string(respBody), 200)),
			nil)
	}

	return string(respBody), nil
}

// ExtractText pulls the first candidate's text out of the gemini
// response envelope, joining multi-part content. Any missing field
// yields an empty string.
func (c *Client) ExtractText(raw string) string {
	var envelope generateResponse
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return ""
	}
	if len(envelope.Candidates) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, part := range envelope.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// resolveEndpoint honors a per-request model override against the first
// cascade entry's API version
func (c *Client) resolveEndpoint(prompt providers.Prompt) (providers.Endpoint, error) {
	if len(c.cascade) == 0 {
		return providers.Endpoint{}, errors.New("gemini: no cascade endpoints configured")
	}
	endpoint := c.cascade[0]
	if prompt.Model != "" {
		endpoint.Model = prompt.Model
	}
	return endpoint, nil
}

// buildGenerateRequest converts the neutral prompt to gemini's envelope.
// System turns become the systemInstruction; assistant turns map to the
// "model" role.
func buildGenerateRequest(prompt providers.Prompt) *generateRequest {
	req := &generateRequest{}

	var systemParts []contentPart
	for _, msg := range prompt.Messages {
		if msg.Role == "system" {
			systemParts = append(systemParts, contentPart{Text: msg.Content})
			continue
		}
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		req.Contents = append(req.Contents, content{
			Role:  role,
			Parts: []contentPart{{Text: msg.Content}},
		})
	}

	if len(systemParts) > 0 {
		req.SystemInstruction = &content{Parts: systemParts}
	}

	return req
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Gemini-specific request/response types

type generateRequest struct {
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
	Contents          []content `json:"contents"`
}

type content struct {
	Role  string        `json:"role,omitempty"`
	Parts []contentPart `json:"parts"`
}

type contentPart struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []contentPart `json:"parts"`
			Role  string        `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

var (
	_ providers.Client        = (*Client)(nil)
	_ providers.CascadeClient = (*Client)(nil)
)
