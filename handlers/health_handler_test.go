package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/loomcast/script-gateway/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type healthStubClient struct {
	name  string
	creds bool
}

func (s *healthStubClient) Name() string                   { return s.name }
func (s *healthStubClient) CallStyle() providers.CallStyle { return providers.CallStyleChat }
func (s *healthStubClient) HasCredentials() bool           { return s.creds }
func (s *healthStubClient) ExtractText(string) string      { return "" }
func (s *healthStubClient) Invoke(ctx context.Context, prompt providers.Prompt) (string, error) {
	return "", nil
}

func buildRegistry(t *testing.T, clients ...*healthStubClient) *providers.Registry {
	t.Helper()
	registry := providers.NewRegistry()
	for _, c := range clients {
		require.NoError(t, registry.Register(c))
	}
	registry.Freeze()
	return registry
}

func TestHealth(t *testing.T) {
	registry := buildRegistry(t, &healthStubClient{name: "gemini"})
	handler := NewHealthHandler(registry, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.Health(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestReady(t *testing.T) {
	t.Run("credentialed providers reported", func(t *testing.T) {
		registry := buildRegistry(t,
			&healthStubClient{name: "gemini", creds: true},
			&healthStubClient{name: "groq", creds: false})
		handler := NewHealthHandler(registry, zap.NewNop())

		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		w := httptest.NewRecorder()

		handler.Ready(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Status    string   `json:"status"`
			Providers []string `json:"providers"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, []string{"gemini"}, resp.Providers)
	})

	t.Run("no credentialed provider is degraded", func(t *testing.T) {
		registry := buildRegistry(t,
			&healthStubClient{name: "gemini"},
			&healthStubClient{name: "groq"})
		handler := NewHealthHandler(registry, zap.NewNop())

		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		w := httptest.NewRecorder()

		handler.Ready(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "degraded")
	})
}
