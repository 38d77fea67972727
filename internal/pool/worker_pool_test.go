package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitWait(t *testing.T) {
	p := New(4, 16)
	defer p.Close()

	var ran atomic.Bool
	err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran.Load())
}

func TestSubmitWaitReturnsTaskError(t *testing.T) {
	p := New(2, 4)
	defer p.Close()

	want := errors.New("boom")
	err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		return want
	})
	assert.ErrorIs(t, err, want)
}

func TestPanicRecovered(t *testing.T) {
	p := New(2, 4)
	defer p.Close()

	err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		panic("bad probe")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	// Pool still works after a panic.
	err = p.SubmitWait(context.Background(), func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestConcurrentFanOut(t *testing.T) {
	p := New(8, 64)
	defer p.Close()

	var count atomic.Int32
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			p.SubmitWait(context.Background(), func(ctx context.Context) error {
				count.Add(1)
				return nil
			})
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	assert.Equal(t, int32(20), count.Load())

	stats := p.Stats()
	assert.Equal(t, int64(20), stats.Submitted)
	assert.Equal(t, int64(20), stats.Completed)
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(1, 1)
	p.Close()

	err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestSubmitWaitCancelled(t *testing.T) {
	p := New(1, 1)
	defer p.Close()

	// Occupy the single worker.
	release := make(chan struct{})
	go p.SubmitWait(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.SubmitWait(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
}
