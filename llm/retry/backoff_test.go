package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amul-dhungel/Deepwork/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func instantPolicy(maxRetries int, delays *[]time.Duration) *Policy {
	return &Policy{
		MaxRetries:   maxRetries,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Sleep: func(_ context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		},
	}
}

func TestRetryer_SucceedsFirstAttempt(t *testing.T) {
	var delays []time.Duration
	r := New(instantPolicy(3, &delays), zap.NewNop())

	calls := 0
	result, err := r.Do(context.Background(), func() (any, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestRetryer_DelaysDoubleEachAttempt(t *testing.T) {
	var delays []time.Duration
	r := New(instantPolicy(3, &delays), zap.NewNop())

	calls := 0
	_, err := r.Do(context.Background(), func() (any, error) {
		calls++
		return nil, types.NewError(types.ErrRateLimited, "429").WithRetryable(true)
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls) // 1 initial + 3 retries
	require.Len(t, delays, 3)
	assert.Equal(t, 1*time.Second, delays[0])
	assert.Equal(t, 2*time.Second, delays[1])
	assert.Equal(t, 4*time.Second, delays[2])
}

func TestRetryer_NonRetryableShortCircuits(t *testing.T) {
	var delays []time.Duration
	r := New(instantPolicy(3, &delays), zap.NewNop())

	calls := 0
	_, err := r.Do(context.Background(), func() (any, error) {
		calls++
		return nil, types.NewError(types.ErrInvalidRequest, "bad request")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestRetryer_UntypedErrorNotRetried(t *testing.T) {
	var delays []time.Duration
	r := New(instantPolicy(3, &delays), zap.NewNop())

	calls := 0
	_, err := r.Do(context.Background(), func() (any, error) {
		calls++
		return nil, errors.New("plain failure")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryer_DelayCappedAtMax(t *testing.T) {
	var delays []time.Duration
	p := instantPolicy(5, &delays)
	p.MaxDelay = 3 * time.Second
	r := New(p, zap.NewNop())

	_, _ = r.Do(context.Background(), func() (any, error) {
		return nil, types.NewError(types.ErrUpstreamError, "500").WithRetryable(true)
	})

	require.Len(t, delays, 5)
	for _, d := range delays {
		assert.LessOrEqual(t, d, 3*time.Second)
	}
}

func TestRetryer_ContextCancelDuringSleep(t *testing.T) {
	p := &Policy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			return context.Canceled
		},
	}
	r := New(p, zap.NewNop())

	_, err := r.Do(context.Background(), func() (any, error) {
		return nil, types.NewError(types.ErrUpstreamError, "500").WithRetryable(true)
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry canceled")
}
