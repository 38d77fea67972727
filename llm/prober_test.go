package llm

import (
	"context"
	"testing"

	"github.com/amul-dhungel/Deepwork/internal/metrics"
	"github.com/amul-dhungel/Deepwork/internal/pool"
	"github.com/amul-dhungel/Deepwork/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type panickingProvider struct{ fakeProvider }

func (p *panickingProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	panic("adapter bug")
}

func newTestProber(t *testing.T, providers ...Provider) *Prober {
	t.Helper()
	d := NewDispatcher(metrics.NewCollector("deepwork", zap.NewNop()), zap.NewNop())
	for _, p := range providers {
		d.Register(p)
	}
	workers := pool.New(8, 64)
	t.Cleanup(workers.Close)
	return NewProber(d, workers, zap.NewNop())
}

func TestProbeAllClassifiesEveryProvider(t *testing.T) {
	prober := newTestProber(t,
		&fakeProvider{name: "gemini"},
		&fakeProvider{name: "openai", err: types.NewError(types.ErrNotConfigured, "no key")},
		&fakeProvider{name: "grok", err: types.NewError(types.ErrQuotaExceeded, "quota")},
		&fakeProvider{name: "deepseek", err: types.NewError(types.ErrRateLimited, "429")},
		&fakeProvider{name: "zhipu", err: types.NewError(types.ErrNoCredits, "pay up")},
		&fakeProvider{name: "ollama", err: types.NewError(types.ErrNetwork, "refused")},
		&fakeProvider{name: "manus", err: types.NewError(types.ErrUpstreamError, "500")},
	)

	results := prober.ProbeAll(context.Background())
	require.Len(t, results, 7)

	assert.Equal(t, types.StatusOK, results["gemini"].Status)
	assert.Equal(t, types.StatusMissingKey, results["openai"].Status)
	assert.Equal(t, types.StatusQuotaExceeded, results["grok"].Status)
	assert.Equal(t, types.StatusUsageLimit, results["deepseek"].Status)
	assert.Equal(t, types.StatusNoCredits, results["zhipu"].Status)
	assert.Equal(t, types.StatusOffline, results["ollama"].Status)
	assert.Equal(t, types.StatusError, results["manus"].Status)
}

func TestProbeAllSurvivesPanic(t *testing.T) {
	bad := &panickingProvider{}
	bad.name = "broken"
	prober := newTestProber(t, &fakeProvider{name: "gemini"}, bad)

	results := prober.ProbeAll(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, types.StatusOK, results["gemini"].Status)
	assert.Equal(t, types.StatusError, results["broken"].Status)
	assert.Contains(t, results["broken"].Detail, "panicked")
}

func TestProbeAllEmptyRegistry(t *testing.T) {
	prober := newTestProber(t)
	results := prober.ProbeAll(context.Background())
	assert.Empty(t, results)
}

func TestProbeFailureIncludesDetail(t *testing.T) {
	prober := newTestProber(t,
		&fakeProvider{name: "openai", err: types.NewError(types.ErrNotConfigured, "openai API key not set")},
	)

	results := prober.ProbeAll(context.Background())
	assert.Contains(t, results["openai"].Detail, "API key not set")
}
