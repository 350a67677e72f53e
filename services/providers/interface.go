package providers

import (
	"context"
)

// CallStyle distinguishes how a provider consumes a prompt
type CallStyle string

const (
	// CallStyleChat providers accept a structured multi-turn message list
	CallStyleChat CallStyle = "chat"

	// CallStyleSinglePrompt providers accept one flattened prompt string
	CallStyleSinglePrompt CallStyle = "single-prompt"
)

// Message represents a single message in a conversation
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// Prompt is the provider-neutral input to one outbound call
type Prompt struct {
	// Messages in the conversation; never empty after validation
	Messages []Message

	// Model optionally overrides the provider's default model
	Model string
}

// Endpoint is one (API revision, model identifier) pair in a provider's
// endpoint cascade
type Endpoint struct {
	APIVersion string
	Model      string
}

// Client is the uniform provider capability: given a prompt and a
// deadline-bearing context, perform one outbound call and return the
// raw response body or a typed failure.
//
// Implementations must honor context cancellation on the network call
// and must return services.DomainError values for credential and
// upstream failures so fallback logic can branch on the category.
type Client interface {
	// Name returns the provider identifier used in routing and responses
	Name() string

	// CallStyle returns how this provider consumes prompts
	CallStyle() CallStyle

	// HasCredentials reports whether a usable credential was configured
	// at startup. Immutable for the life of the process.
	HasCredentials() bool

	// Invoke performs one outbound call and returns the provider-native
	// response body as raw text
	Invoke(ctx context.Context, prompt Prompt) (string, error)

	// ExtractText pulls the assistant text out of this provider's
	// response envelope. A missing field yields an empty string, never
	// an error; callers treat empty text as a valid but unhelpful reply.
	ExtractText(raw string) string
}

// CascadeClient is implemented by providers that expose multiple API
// surface revisions. The cascade is built once at startup and read-only
// thereafter.
type CascadeClient interface {
	Client

	// Cascade returns the ordered candidate endpoints
	Cascade() []Endpoint

	// InvokeEndpoint performs one outbound call against a specific
	// cascade endpoint
	InvokeEndpoint(ctx context.Context, prompt Prompt, endpoint Endpoint) (string, error)
}
