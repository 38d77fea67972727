package zhipu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amul-dhungel/Deepwork/llm"
	"github.com/amul-dhungel/Deepwork/providers"
	"github.com/amul-dhungel/Deepwork/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(providers.Config{APIKey: "abc.def", BaseURL: srv.URL}, zap.NewNop())
}

func TestHealthCheckHealthy(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))
		json.NewEncoder(w).Encode(glmResponse{
			Model:   "glm-4-flash",
			Choices: []glmChoice{{Message: glmMessage{Role: "assistant", Content: "pong"}}},
		})
	})

	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Greater(t, status.Latency.Nanoseconds(), int64(0))
}

func TestHealthCheckNotConfigured(t *testing.T) {
	p := New(providers.Config{}, zap.NewNop())

	status, err := p.HealthCheck(context.Background())
	require.Error(t, err)
	assert.False(t, status.Healthy)
	assert.Equal(t, types.ErrNotConfigured, types.GetErrorCode(err))
}

func TestHealthCheckUpstreamError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": "1002", "message": "invalid token"},
		})
	})

	status, err := p.HealthCheck(context.Background())
	require.Error(t, err)
	assert.False(t, status.Healthy)
	assert.Equal(t, types.ErrUnauthorized, types.GetErrorCode(err))
}

func TestCompletionParsesReply(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req glmRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "glm-4-flash", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "hello", req.Messages[0].Content)

		json.NewEncoder(w).Encode(glmResponse{
			Model:   "glm-4-flash",
			Choices: []glmChoice{{Message: glmMessage{Role: "assistant", Content: "hi there"}}},
		})
	})

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Text)
	assert.Equal(t, "zhipu", resp.Provider)
}
