// Package openai implements the OpenAI chat completions adapter. Several
// vendors expose the same wire format, so grok, deepseek, and llama embed
// this provider with their own endpoints.
package openai

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

// Provider implements the OpenAI LLM adapter.
type Provider struct {
	name         string
	defaultModel string
	cfg          providers.Config
	client       *http.Client
	logger       *zap.Logger
}

// New creates an OpenAI provider.
func New(cfg providers.Config, logger *zap.Logger) *Provider {
	return newCompatible("openai", "gpt-4o-mini", "https://api.openai.com/v1", cfg, logger)
}

// NewCompatible creates an adapter for any OpenAI-compatible vendor. Used by
// the grok, deepseek, and llama providers.
func NewCompatible(name, defaultModel, defaultBaseURL string, cfg providers.Config, logger *zap.Logger) *Provider {
	return newCompatible(name, defaultModel, defaultBaseURL, cfg, logger)
}

func newCompatible(name, defaultModel, defaultBaseURL string, cfg providers.Config, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}

	return &Provider{
		name:         name,
		defaultModel: defaultModel,
		cfg:          cfg,
		client:       &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) SupportsStreaming() bool { return false }

// OpenAI-compatible wire types.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Created int64        `json:"created,omitempty"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	if p.cfg.APIKey == "" {
		return &llm.HealthStatus{Healthy: false}, types.NewError(types.ErrNotConfigured,
			fmt.Sprintf("%s API key not set", p.name)).WithProvider(p.name)
	}

	endpoint := fmt.Sprintf("%s/models", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			types.NewError(types.ErrNetwork, err.Error()).WithCause(err).WithProvider(p.name)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readErrMsg(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency}, mapError(resp.StatusCode, msg, p.name)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.cfg.APIKey == "" {
		return nil, types.NewError(types.ErrNotConfigured,
			fmt.Sprintf("%s API key not set", p.name)).WithProvider(p.name)
	}

	body := chatRequest{
		Model:       providers.ChooseModel(req.Model, p.cfg.Model, p.defaultModel),
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	payload, _ := json.Marshal(body)

	endpoint := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrNetwork, err.Error()).
			WithCause(err).WithRetryable(true).WithProvider(p.name)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrMsg(resp.Body)
		return nil, mapError(resp.StatusCode, msg, p.name)
	}

	var oaResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, types.NewError(types.ErrMalformedResponse, err.Error()).
			WithHTTPStatus(resp.StatusCode).WithProvider(p.name)
	}
	return toChatResponse(oaResp, p.name, resp.StatusCode)
}

// toChatResponse is the single place the vendor JSON shape is interpreted.
func toChatResponse(oa chatResponse, provider string, status int) (*llm.ChatResponse, error) {
	if len(oa.Choices) == 0 {
		return nil, types.NewError(types.ErrMalformedResponse, "response has no choices").
			WithHTTPStatus(status).WithProvider(provider)
	}

	resp := &llm.ChatResponse{
		Text:      oa.Choices[0].Message.Content,
		Provider:  provider,
		Model:     oa.Model,
		RawStatus: status,
	}
	if oa.Created != 0 {
		resp.CreatedAt = time.Unix(oa.Created, 0)
	}
	return resp, nil
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var errResp errorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
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
		if strings.Contains(strings.ToLower(msg), "quota") ||
			strings.Contains(strings.ToLower(msg), "credit") {
			return types.NewError(types.ErrQuotaExceeded, msg).WithHTTPStatus(status).WithProvider(provider)
		}
		return types.NewError(types.ErrInvalidRequest, msg).WithHTTPStatus(status).WithProvider(provider)
	case http.StatusGatewayTimeout:
		return types.NewError(types.ErrUpstreamTimeout, msg).WithHTTPStatus(status).WithRetryable(true).WithProvider(provider)
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return types.NewError(types.ErrUpstreamError, msg).WithHTTPStatus(status).WithRetryable(true).WithProvider(provider)
	default:
		return types.NewError(types.ErrUpstreamError, msg).
			WithHTTPStatus(status).WithRetryable(status >= 500).WithProvider(provider)
	}
}
