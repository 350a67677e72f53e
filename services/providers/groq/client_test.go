package groq

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/loomcast/script-gateway/services"
	"github.com/loomcast/script-gateway/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoke_Success(t *testing.T) {
	var gotPath string
	var gotAuth string
	var gotBody chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "llama-3.3-70b-versatile",
	})

	raw, err := client.Invoke(context.Background(), providers.Prompt{
		Messages: []providers.Message{
			{Role: "system", Content: "be helpful"},
			{Role: "user", Content: "hi"},
		},
	})

	require.NoError(t, err)
	assert.Contains(t, raw, "hello")
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "llama-3.3-70b-versatile", gotBody.Model)

	// The conversation is flattened into one user message
	require.Len(t, gotBody.Messages, 1)
	assert.Equal(t, "user", gotBody.Messages[0].Role)
	assert.Equal(t, "Instructions: be helpful\n\nhi", gotBody.Messages[0].Content)
}

func TestInvoke_MissingCredentialIsConfigErrorWithoutNetworkCall(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "", BaseURL: server.URL, Model: "m"})

	_, err := client.Invoke(context.Background(), providers.Prompt{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})

	require.Error(t, err)
	assert.True(t, services.IsConfigError(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestInvoke_Non2xxIsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL, Model: "m"})

	_, err := client.Invoke(context.Background(), providers.Prompt{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})

	require.Error(t, err)
	assert.True(t, services.IsUpstreamError(err))
	assert.Equal(t, http.StatusTooManyRequests, services.GetUpstreamStatus(err))
}

func TestInvoke_ModelOverride(t *testing.T) {
	var gotBody chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL, Model: "default-model"})

	_, err := client.Invoke(context.Background(), providers.Prompt{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
		Model:    "llama-3.1-8b-instant",
	})
	require.NoError(t, err)
	assert.Equal(t, "llama-3.1-8b-instant", gotBody.Model)
}

func TestInvoke_CancelledContextIsNotTypedUpstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL, Model: "m"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Invoke(ctx, providers.Prompt{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})

	require.Error(t, err)
	assert.False(t, services.IsUpstreamError(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFlattenMessages(t *testing.T) {
	tests := []struct {
		name     string
		messages []providers.Message
		want     string
	}{
		{
			name:     "single user message",
			messages: []providers.Message{{Role: "user", Content: "hi"}},
			want:     "hi",
		},
		{
			name: "system prefix",
			messages: []providers.Message{
				{Role: "system", Content: "be helpful"},
				{Role: "user", Content: "hi"},
			},
			want: "Instructions: be helpful\n\nhi",
		},
		{
			name: "assistant prefix",
			messages: []providers.Message{
				{Role: "user", Content: "hi"},
				{Role: "assistant", Content: "hello"},
				{Role: "user", Content: "tell me more"},
			},
			want: "hi\n\nAssistant: hello\n\ntell me more",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FlattenMessages(tt.messages))
		})
	}
}

func TestExtractText(t *testing.T) {
	client := NewClient(Config{})

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "first choice content",
			raw:  `{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`,
			want: "hello",
		},
		{
			name: "no choices",
			raw:  `{"choices":[]}`,
			want: "",
		},
		{
			name: "missing fields",
			raw:  `{}`,
			want: "",
		},
		{
			name: "invalid json",
			raw:  `not json`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, client.ExtractText(tt.raw))
		})
	}
}

func TestClientMetadata(t *testing.T) {
	client := NewClient(Config{APIKey: "k"})

	assert.Equal(t, "groq", client.Name())
	assert.Equal(t, providers.CallStyleSinglePrompt, client.CallStyle())
	assert.True(t, client.HasCredentials())

	empty := NewClient(Config{})
	assert.False(t, empty.HasCredentials())
}
