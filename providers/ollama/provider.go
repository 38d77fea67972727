// Package ollama implements the adapter for a locally hosted Ollama server.
// It is the only provider that streams natively: Ollama emits one JSON object
// per line until a final object with done=true.
package ollama

import (
	"bufio"
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

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "deepseek-v3.1:8b"

	// Local models can take a long time on first load.
	defaultTimeout = 120 * time.Second
)

// Provider implements the Ollama LLM adapter. No API key is required; the
// provider is considered configured whenever a base URL is known.
type Provider struct {
	cfg    providers.Config
	client *http.Client
	logger *zap.Logger
}

// New creates an Ollama provider.
func New(cfg providers.Config, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
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

func (p *Provider) Name() string { return "ollama" }

func (p *Provider) SupportsStreaming() bool { return true }

// Ollama wire types.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model     string      `json:"model"`
	Message   chatMessage `json:"message"`
	Done      bool        `json:"done"`
	CreatedAt time.Time   `json:"created_at"`
	Error     string      `json:"error,omitempty"`
}

func (p *Provider) endpoint(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

func (p *Provider) buildRequest(req *llm.ChatRequest, stream bool) chatRequest {
	body := chatRequest{
		Model:    providers.ChooseModel(req.Model, p.cfg.Model, defaultModel),
		Messages: []chatMessage{{Role: "user", Content: req.Prompt}},
		Stream:   stream,
	}
	if req.MaxTokens > 0 || req.Temperature > 0 {
		body.Options = &chatOptions{NumPredict: req.MaxTokens, Temperature: req.Temperature}
	}
	return body
}

// HealthCheck probes the server's version endpoint, which responds even when
// no model is loaded.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/api/version"), nil)
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
	payload, _ := json.Marshal(p.buildRequest(req, false))

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/api/chat"), bytes.NewReader(payload))
	httpReq.Header.Set("Content-Type", "application/json")

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

	var olResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&olResp); err != nil {
		return nil, types.NewError(types.ErrMalformedResponse, err.Error()).
			WithHTTPStatus(resp.StatusCode).WithProvider(p.Name())
	}
	return toChatResponse(olResp, p.Name(), resp.StatusCode)
}

// Stream issues a streaming chat request and forwards each delta on the
// returned channel. The channel is closed after the final chunk; errors during
// the stream are delivered as a chunk with Err set.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	payload, _ := json.Marshal(p.buildRequest(req, true))

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/api/chat"), bytes.NewReader(payload))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrNetwork, err.Error()).
			WithCause(err).WithRetryable(true).WithProvider(p.Name())
	}
	if resp.StatusCode >= 400 {
		msg := readErrMsg(resp.Body)
		resp.Body.Close()
		return nil, mapError(resp.StatusCode, msg, p.Name())
	}

	ch := make(chan llm.StreamChunk)
	go p.relay(ctx, resp.Body, ch)
	return ch, nil
}

func (p *Provider) relay(ctx context.Context, body io.ReadCloser, ch chan<- llm.StreamChunk) {
	defer close(ch)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var part chatResponse
		if err := json.Unmarshal(line, &part); err != nil {
			p.emit(ctx, ch, llm.StreamChunk{
				Provider: p.Name(),
				Err: types.NewError(types.ErrMalformedResponse, err.Error()).
					WithCause(err).WithProvider(p.Name()),
			})
			return
		}
		if part.Error != "" {
			p.emit(ctx, ch, llm.StreamChunk{
				Provider: p.Name(),
				Err:      types.NewError(types.ErrUpstreamError, part.Error).WithProvider(p.Name()),
			})
			return
		}

		chunk := llm.StreamChunk{
			Provider: p.Name(),
			Model:    part.Model,
			Content:  part.Message.Content,
			Done:     part.Done,
		}
		if !p.emit(ctx, ch, chunk) {
			return
		}
		if part.Done {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		p.emit(ctx, ch, llm.StreamChunk{
			Provider: p.Name(),
			Err: types.NewError(types.ErrNetwork, err.Error()).
				WithCause(err).WithProvider(p.Name()),
		})
	}
}

func (p *Provider) emit(ctx context.Context, ch chan<- llm.StreamChunk, chunk llm.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func toChatResponse(ol chatResponse, provider string, status int) (*llm.ChatResponse, error) {
	if ol.Error != "" {
		return nil, types.NewError(types.ErrUpstreamError, ol.Error).
			WithHTTPStatus(status).WithProvider(provider)
	}
	if ol.Message.Content == "" {
		return nil, types.NewError(types.ErrMalformedResponse, "response has no message content").
			WithHTTPStatus(status).WithProvider(provider)
	}

	return &llm.ChatResponse{
		Text:      ol.Message.Content,
		Provider:  provider,
		Model:     ol.Model,
		RawStatus: status,
		CreatedAt: ol.CreatedAt,
	}, nil
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	return string(data)
}

func mapError(status int, msg string, provider string) *types.Error {
	switch status {
	case http.StatusNotFound:
		// Typically an unknown model name.
		return types.NewError(types.ErrInvalidRequest, fmt.Sprintf("model not found: %s", msg)).
			WithHTTPStatus(status).WithProvider(provider)
	case http.StatusBadRequest:
		return types.NewError(types.ErrInvalidRequest, msg).WithHTTPStatus(status).WithProvider(provider)
	default:
		return types.NewError(types.ErrUpstreamError, msg).
			WithHTTPStatus(status).WithRetryable(status >= 500).WithProvider(provider)
	}
}
