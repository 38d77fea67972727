// Package zhipu implements the Zhipu AI GLM adapter. The wire format is
// OpenAI-compatible, but authentication uses a signed short-lived token
// derived from the split API key instead of the key itself.
package zhipu

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

// tokenTTL is the validity window requested for each signed credential.
const tokenTTL = 10 * time.Minute

// Provider implements the Zhipu GLM adapter.
type Provider struct {
	cfg    providers.Config
	client *http.Client
	logger *zap.Logger
}

// New creates a Zhipu provider.
func New(cfg providers.Config, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://open.bigmodel.cn/api/paas/v4"
	}

	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *Provider) Name() string { return "zhipu" }

func (p *Provider) SupportsStreaming() bool { return false }

type glmMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type glmRequest struct {
	Model    string       `json:"model"`
	Messages []glmMessage `json:"messages"`
	Stream   bool         `json:"stream"`
}

type glmChoice struct {
	Index        int        `json:"index"`
	FinishReason string     `json:"finish_reason"`
	Message      glmMessage `json:"message"`
}

type glmResponse struct {
	ID      string      `json:"id"`
	Model   string      `json:"model"`
	Choices []glmChoice `json:"choices"`
}

type glmErrorResp struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Provider) buildHeaders(req *http.Request) error {
	token, err := SignToken(p.cfg.APIKey, tokenTTL)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return nil
}

func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	if p.cfg.APIKey == "" {
		return &llm.HealthStatus{Healthy: false}, types.NewError(types.ErrNotConfigured,
			"ZHIPU_API_KEY not set").WithProvider(p.Name())
	}

	// Zhipu has no cheap model-list endpoint; probe with a minimal completion.
	_, err := p.Completion(ctx, &llm.ChatRequest{Prompt: "ping", MaxTokens: 1})
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.cfg.APIKey == "" {
		return nil, types.NewError(types.ErrNotConfigured,
			"ZHIPU_API_KEY not set").WithProvider(p.Name())
	}

	body := glmRequest{
		Model:    providers.ChooseModel(req.Model, p.cfg.Model, "glm-4-flash"),
		Messages: []glmMessage{{Role: "user", Content: req.Prompt}},
	}
	payload, _ := json.Marshal(body)

	endpoint := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err := p.buildHeaders(httpReq); err != nil {
		return nil, err
	}

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

	var glmResp glmResponse
	if err := json.NewDecoder(resp.Body).Decode(&glmResp); err != nil {
		return nil, types.NewError(types.ErrMalformedResponse, err.Error()).
			WithHTTPStatus(resp.StatusCode).WithProvider(p.Name())
	}
	return toChatResponse(glmResp, p.Name(), resp.StatusCode)
}

// toChatResponse is the single place the vendor JSON shape is interpreted.
func toChatResponse(gr glmResponse, provider string, status int) (*llm.ChatResponse, error) {
	if len(gr.Choices) == 0 {
		return nil, types.NewError(types.ErrMalformedResponse, "response has no choices").
			WithHTTPStatus(status).WithProvider(provider)
	}
	return &llm.ChatResponse{
		Text:      gr.Choices[0].Message.Content,
		Provider:  provider,
		Model:     gr.Model,
		RawStatus: status,
	}, nil
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var errResp glmErrorResp
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
		return types.NewError(types.ErrInvalidRequest, msg).WithHTTPStatus(status).WithProvider(provider)
	default:
		return types.NewError(types.ErrUpstreamError, msg).
			WithHTTPStatus(status).WithRetryable(status >= 500).WithProvider(provider)
	}
}
