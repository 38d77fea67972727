package llm

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/amul-dhungel/Deepwork/internal/ctxkeys"
	"github.com/amul-dhungel/Deepwork/internal/metrics"
	"github.com/amul-dhungel/Deepwork/llm/tokenizer"
	"github.com/amul-dhungel/Deepwork/types"
	"go.uber.org/zap"
)

// Dispatcher routes a request to a provider by name. Requests naming an
// unknown provider fall back to the default rather than failing, matching the
// frontend contract where the model selector may carry stale entries.
type Dispatcher struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	defaultName string

	estimator *tokenizer.Estimator
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewDispatcher creates an empty dispatcher. The first registered provider
// becomes the default unless SetDefault overrides it.
func NewDispatcher(collector *metrics.Collector, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		providers: make(map[string]Provider),
		estimator: tokenizer.NewEstimator(),
		collector: collector,
		logger:    logger,
	}
}

// Register adds a provider under its own name.
func (d *Dispatcher) Register(p Provider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.providers[p.Name()] = p
	if d.defaultName == "" {
		d.defaultName = p.Name()
	}
}

// SetDefault selects the fallback provider for unknown names.
func (d *Dispatcher) SetDefault(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.providers[name]; ok {
		d.defaultName = name
	}
}

// Names returns the registered provider names, sorted.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.providers))
	for name := range d.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Providers returns a snapshot of the registry.
func (d *Dispatcher) Providers() map[string]Provider {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]Provider, len(d.providers))
	for name, p := range d.providers {
		out[name] = p
	}
	return out
}

// resolve returns the provider for name, falling back to the default.
func (d *Dispatcher) resolve(name string) (Provider, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if p, ok := d.providers[name]; ok {
		return p, nil
	}
	if p, ok := d.providers[d.defaultName]; ok {
		if name != "" {
			d.logger.Warn("unknown provider requested, using default",
				zap.String("requested", name),
				zap.String("default", d.defaultName))
		}
		return p, nil
	}
	return nil, types.NewError(types.ErrNotConfigured, "no providers registered")
}

// Generate dispatches one synchronous completion.
func (d *Dispatcher) Generate(ctx context.Context, providerName string, req *ChatRequest) (*ChatResponse, error) {
	p, err := d.resolve(providerName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := p.Completion(ctx, req)
	d.record(ctx, p.Name(), req, resp, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GenerateStream dispatches a streaming completion. Providers without native
// streaming are invoked synchronously and their reply is delivered as a
// single content chunk followed by a done chunk.
func (d *Dispatcher) GenerateStream(ctx context.Context, providerName string, req *ChatRequest) (<-chan StreamChunk, error) {
	p, err := d.resolve(providerName)
	if err != nil {
		return nil, err
	}

	if s, ok := p.(Streamer); ok && p.SupportsStreaming() {
		start := time.Now()
		ch, err := s.Stream(ctx, req)
		if err != nil {
			d.record(ctx, p.Name(), req, nil, err, time.Since(start))
			return nil, err
		}
		return d.observeStream(ctx, p.Name(), req, start, ch), nil
	}

	start := time.Now()
	resp, err := p.Completion(ctx, req)
	d.record(ctx, p.Name(), req, resp, err, time.Since(start))
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk, 2)
	ch <- StreamChunk{Provider: resp.Provider, Model: resp.Model, Content: resp.Text}
	ch <- StreamChunk{Provider: resp.Provider, Model: resp.Model, Done: true}
	close(ch)
	return ch, nil
}

// observeStream forwards chunks while accumulating the reply for metrics.
// When the consumer abandons the stream (ctx cancelled, nobody reading) the
// forwarder drains the adapter channel and exits instead of blocking on the
// send; the call is still recorded.
func (d *Dispatcher) observeStream(ctx context.Context, provider string, req *ChatRequest, start time.Time, in <-chan StreamChunk) <-chan StreamChunk {
	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		var completion int
		status := "ok"
		defer func() {
			if d.collector != nil {
				d.collector.RecordProviderRequest(provider, req.Model, status,
					time.Since(start), d.estimator.Count(req.Prompt), completion)
			}
		}()
		for chunk := range in {
			if chunk.Err != nil {
				status = "error"
			}
			completion += d.estimator.Count(chunk.Content)
			select {
			case out <- chunk:
			case <-ctx.Done():
				status = "abandoned"
				for range in {
				}
				return
			}
		}
	}()
	return out
}

func (d *Dispatcher) record(ctx context.Context, provider string, req *ChatRequest, resp *ChatResponse, err error, elapsed time.Duration) {
	promptTokens := d.estimator.Count(req.Prompt)
	sessionID, _ := ctxkeys.SessionID(ctx)

	if err != nil {
		d.logger.Warn("provider call failed",
			zap.String("provider", provider),
			zap.String("code", string(types.GetErrorCode(err))),
			zap.String("session_id", sessionID),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		if d.collector != nil {
			d.collector.RecordProviderRequest(provider, req.Model, "error", elapsed, promptTokens, 0)
		}
		return
	}

	completionTokens := d.estimator.Count(resp.Text)
	d.logger.Info("provider call completed",
		zap.String("provider", provider),
		zap.String("model", resp.Model),
		zap.String("session_id", sessionID),
		zap.Duration("elapsed", elapsed),
		zap.Int("prompt_tokens", promptTokens),
		zap.Int("completion_tokens", completionTokens))
	if d.collector != nil {
		d.collector.RecordProviderRequest(provider, resp.Model, "ok", elapsed, promptTokens, completionTokens)
	}
}
