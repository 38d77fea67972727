// Package gemini implements the Google Gemini adapter. Gemini is the default
// provider, so it carries the retry policy: 429s and 5xx responses are
// retried with a doubling backoff while hard quota exhaustion and client
// errors surface immediately.
package gemini

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
	"github.com/amul-dhungel/Deepwork/llm/retry"
	"github.com/amul-dhungel/Deepwork/providers"
	"github.com/amul-dhungel/Deepwork/types"
	"go.uber.org/zap"
)

// Provider implements the Google Gemini adapter.
type Provider struct {
	cfg     providers.Config
	client  *http.Client
	logger  *zap.Logger
	retryer *retry.Retryer
}

// New creates a Gemini provider with the default retry policy.
func New(cfg providers.Config, logger *zap.Logger) *Provider {
	return NewWithPolicy(cfg, nil, logger)
}

// NewWithPolicy creates a Gemini provider with a custom retry policy.
// Tests inject an instant-sleep policy here.
func NewWithPolicy(cfg providers.Config, policy *retry.Policy, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}

	return &Provider{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		retryer: retry.New(policy, logger),
	}
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) SupportsStreaming() bool { return false }

// Gemini wire types.
type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiResponse struct {
	Candidates   []geminiCandidate `json:"candidates"`
	ModelVersion string            `json:"modelVersion,omitempty"`
	ResponseID   string            `json:"responseId,omitempty"`
}

type geminiErrorResp struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("x-goog-api-key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	if p.cfg.APIKey == "" {
		return &llm.HealthStatus{Healthy: false}, types.NewError(types.ErrNotConfigured,
			"GOOGLE_API_KEY not set").WithProvider(p.Name())
	}

	endpoint := fmt.Sprintf("%s/v1beta/models", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			types.NewError(types.ErrNetwork, err.Error()).WithCause(err).WithProvider(p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readErrMsg(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency}, mapError(resp.StatusCode, msg, p.Name())
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.cfg.APIKey == "" {
		return nil, types.NewError(types.ErrNotConfigured,
			"GOOGLE_API_KEY not set").WithProvider(p.Name())
	}

	result, err := p.retryer.Do(ctx, func() (any, error) {
		return p.callOnce(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*llm.ChatResponse), nil
}

func (p *Provider) callOnce(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
	}
	payload, _ := json.Marshal(body)

	model := providers.ChooseModel(req.Model, p.cfg.Model, "gemini-flash-latest")
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(p.cfg.BaseURL, "/"), model)

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

	var geminiResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return nil, types.NewError(types.ErrMalformedResponse, err.Error()).
			WithHTTPStatus(resp.StatusCode).WithProvider(p.Name())
	}
	return toChatResponse(geminiResp, p.Name(), model, resp.StatusCode)
}

// toChatResponse is the single place the vendor JSON shape is interpreted.
// Reply text is sanitized before returning: markdown code fences and stray
// HTML document wrappers come back from the model despite prompt
// instructions, and the editor frontend renders inner HTML only.
func toChatResponse(gr geminiResponse, provider, model string, status int) (*llm.ChatResponse, error) {
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, types.NewError(types.ErrMalformedResponse, "response has no candidates").
			WithHTTPStatus(status).WithProvider(provider)
	}

	var text strings.Builder
	for _, part := range gr.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	return &llm.ChatResponse{
		Text:      Sanitize(text.String()),
		Provider:  provider,
		Model:     model,
		RawStatus: status,
	}, nil
}

// Sanitize strips a wrapping markdown code fence and any HTML document
// scaffolding from model output, returning only the inner content.
func Sanitize(text string) string {
	s := strings.TrimSpace(text)

	// Leading fence with optional language tag, trailing bare fence.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	// Unwrap <body>...</body> when the model returned a full document.
	if idx := strings.Index(s, "<body>"); idx >= 0 {
		s = s[idx+len("<body>"):]
		if end := strings.Index(s, "</body>"); end >= 0 {
			s = s[:end]
		}
	}
	s = strings.ReplaceAll(s, "<html>", "")
	s = strings.ReplaceAll(s, "</html>", "")
	s = strings.ReplaceAll(s, "<!DOCTYPE html>", "")

	return strings.TrimSpace(s)
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var errResp geminiErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("%s (status: %s)", errResp.Error.Message, errResp.Error.Status)
	}
	return string(data)
}

// mapError converts a vendor failure to a structured error. A 429 whose body
// names quota exhaustion is a hard stop, not a transient rate limit.
func mapError(status int, msg string, provider string) *types.Error {
	switch status {
	case http.StatusUnauthorized:
		return types.NewError(types.ErrUnauthorized, msg).WithHTTPStatus(status).WithProvider(provider)
	case http.StatusForbidden:
		return types.NewError(types.ErrForbidden, msg).WithHTTPStatus(status).WithProvider(provider)
	case http.StatusTooManyRequests:
		if isQuotaMsg(msg) {
			return types.NewError(types.ErrQuotaExceeded, msg).WithHTTPStatus(status).WithProvider(provider)
		}
		return types.NewError(types.ErrRateLimited, msg).WithHTTPStatus(status).WithRetryable(true).WithProvider(provider)
	case http.StatusBadRequest:
		if isQuotaMsg(msg) {
			return types.NewError(types.ErrQuotaExceeded, msg).WithHTTPStatus(status).WithProvider(provider)
		}
		return types.NewError(types.ErrInvalidRequest, msg).WithHTTPStatus(status).WithProvider(provider)
	case http.StatusGatewayTimeout:
		return types.NewError(types.ErrUpstreamTimeout, msg).WithHTTPStatus(status).WithRetryable(true).WithProvider(provider)
	default:
		return types.NewError(types.ErrUpstreamError, msg).
			WithHTTPStatus(status).WithRetryable(status >= 500).WithProvider(provider)
	}
}

func isQuotaMsg(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "quota") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}
