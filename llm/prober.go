package llm

import (
	"context"
	"sync"
	"time"

	"github.com/amul-dhungel/Deepwork/internal/pool"
	"github.com/amul-dhungel/Deepwork/types"
	"go.uber.org/zap"
)

// probeTimeout caps each individual provider probe so one hung vendor cannot
// stall the whole status report.
const probeTimeout = 10 * time.Second

// ProbeResult is the classified availability of one provider.
type ProbeResult struct {
	Status  types.ProviderStatus `json:"status"`
	Latency time.Duration        `json:"latency,omitempty"`
	Detail  string               `json:"detail,omitempty"`
}

// Prober health-checks every registered provider in parallel.
type Prober struct {
	dispatcher *Dispatcher
	workers    *pool.WorkerPool
	logger     *zap.Logger
}

// NewProber creates a prober fanning out over the given worker pool.
func NewProber(d *Dispatcher, workers *pool.WorkerPool, logger *zap.Logger) *Prober {
	return &Prober{dispatcher: d, workers: workers, logger: logger}
}

// ProbeAll checks every provider concurrently and returns exactly one entry
// per registered provider. A probe that panics or cannot be scheduled is
// reported as "error" rather than omitted.
func (p *Prober) ProbeAll(ctx context.Context) map[string]ProbeResult {
	providers := p.dispatcher.Providers()

	var mu sync.Mutex
	results := make(map[string]ProbeResult, len(providers))

	var wg sync.WaitGroup
	for name, provider := range providers {
		wg.Add(1)
		name, provider := name, provider
		submitErr := p.workers.Submit(ctx, func(taskCtx context.Context) error {
			defer wg.Done()
			result := p.probeOne(taskCtx, provider)
			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			results[name] = ProbeResult{Status: types.StatusError, Detail: submitErr.Error()}
			mu.Unlock()
		}
	}
	wg.Wait()

	return results
}

func (p *Prober) probeOne(ctx context.Context, provider Provider) (result ProbeResult) {
	// A panicking adapter must still yield a status entry.
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("provider probe panicked",
				zap.String("provider", provider.Name()),
				zap.Any("panic", r))
			result = ProbeResult{Status: types.StatusError, Detail: "probe panicked"}
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	status, err := provider.HealthCheck(probeCtx)

	result = ProbeResult{Status: types.StatusFromError(err)}
	if status != nil {
		result.Latency = status.Latency
	}
	if err != nil {
		result.Detail = err.Error()
		p.logger.Debug("provider probe failed",
			zap.String("provider", provider.Name()),
			zap.String("status", string(result.Status)),
			zap.Error(err))
	}
	return result
}
