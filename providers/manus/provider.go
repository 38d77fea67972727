// Package manus implements the Manus task API adapter. Manus does not expose
// a chat completions endpoint; instead a task is created with the prompt and
// the reply is returned in the task output.
package manus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/amul-dhungel/Deepwork/llm"
	"github.com/amul-dhungel/Deepwork/providers"
	"github.com/amul-dhungel/Deepwork/types"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.manus.ai/v1"

// Provider implements the Manus LLM adapter.
type Provider struct {
	cfg    providers.Config
	client *http.Client
	logger *zap.Logger
}

// New creates a Manus provider.
func New(cfg providers.Config, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}

	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *Provider) Name() string { return "manus" }

func (p *Provider) SupportsStreaming() bool { return false }

// Manus wire types.
type taskRequest struct {
	Prompt string `json:"prompt"`
	Mode   string `json:"mode"`
}

type taskResponse struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
	Output string `json:"output,omitempty"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (p *Provider) buildHeaders(req *http.Request) {
	// Manus authenticates with a bare API_KEY header, not a Bearer token.
	req.Header.Set("API_KEY", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	if p.cfg.APIKey == "" {
		return &llm.HealthStatus{Healthy: false}, types.NewError(types.ErrNotConfigured,
			"manus API key not set").WithProvider(p.Name())
	}

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/tasks", nil)
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			types.NewError(types.ErrNetwork, err.Error()).WithCause(err).WithProvider(p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrMsg(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency}, mapError(resp.StatusCode, msg, p.Name())
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.cfg.APIKey == "" {
		return nil, types.NewError(types.ErrNotConfigured,
			"manus API key not set").WithProvider(p.Name())
	}

	payload, _ := json.Marshal(taskRequest{Prompt: req.Prompt, Mode: "speed"})

	endpoint := fmt.Sprintf("%s/tasks", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrNetwork, err.Error()).
			WithCause(err).WithRetryable(true).WithProvider(p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrMsg(resp.Body)
		return nil, mapError(resp.StatusCode, msg, p.Name())
	}

	var task taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, types.NewError(types.ErrMalformedResponse, err.Error()).
			WithHTTPStatus(resp.StatusCode).WithProvider(p.Name())
	}
	return toChatResponse(task, p.Name(), resp.StatusCode)
}

func toChatResponse(task taskResponse, provider string, status int) (*llm.ChatResponse, error) {
	if task.Error != "" {
		return nil, types.NewError(types.ErrUpstreamError, task.Error).
			WithHTTPStatus(status).WithProvider(provider)
	}

	text := task.Output
	if text == "" {
		text = task.Result
	}
	if text == "" {
		return nil, types.NewError(types.ErrMalformedResponse, "task response has no output").
			WithHTTPStatus(status).WithProvider(provider)
	}

	return &llm.ChatResponse{
		Text:      text,
		Provider:  provider,
		RawStatus: status,
	}, nil
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil {
		if errResp.Error != "" {
			return errResp.Error
		}
		if errResp.Message != "" {
			return errResp.Message
		}
	}
	return string(data)
}

func mapError(status int, msg string, provider string) *types.Error {
	switch status {
	case http.StatusUnauthorized:
		return types.NewError(types.ErrUnauthorized, msg).WithHTTPStatus(status).WithProvider(provider)
	case http.StatusPaymentRequired:
		return types.NewError(types.ErrNoCredits, msg).WithHTTPStatus(status).WithProvider(provider)
	case http.StatusForbidden:
		return types.NewError(types.ErrForbidden, msg).WithHTTPStatus(status).WithProvider(provider)
	case http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).WithHTTPStatus(status).WithRetryable(true).WithProvider(provider)
	case http.StatusBadRequest:
		return types.NewError(types.ErrInvalidRequest, msg).WithHTTPStatus(status).WithProvider(provider)
	default:
		return types.NewError(types.ErrUpstreamError, msg).
			WithHTTPStatus(status).WithRetryable(status >= 500).WithProvider(provider)
	}
}
