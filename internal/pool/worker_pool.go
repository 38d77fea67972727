// Package pool provides a bounded worker pool for fan-out work such as
// probing every provider at once.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task is a unit of work run by the pool.
type Task func(ctx context.Context) error

// WorkerPool runs tasks on a bounded set of goroutines. Workers are spawned
// on demand up to the limit and panics inside tasks are recovered so one bad
// probe cannot take the server down.
type WorkerPool struct {
	maxWorkers int
	queue      chan job
	workers    atomic.Int32
	closed     atomic.Bool
	wg         sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

type job struct {
	ctx    context.Context
	task   Task
	result chan error
}

// New creates a pool with the given worker limit and queue depth.
func New(maxWorkers, queueSize int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		queue:      make(chan job, queueSize),
	}
}

// Submit enqueues a task without waiting for it. Returns ErrPoolFull when the
// queue is saturated.
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.submitted.Add(1)

	select {
	case p.queue <- job{ctx: ctx, task: task}:
		p.ensureWorker()
		return nil
	default:
		return ErrPoolFull
	}
}

// SubmitWait enqueues a task and blocks until it finishes or the context is
// cancelled.
func (p *WorkerPool) SubmitWait(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.submitted.Add(1)

	j := job{ctx: ctx, task: task, result: make(chan error, 1)}
	select {
	case p.queue <- j:
		p.ensureWorker()
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool) ensureWorker() {
	for {
		n := p.workers.Load()
		if n >= int32(p.maxWorkers) {
			return
		}
		if p.workers.CompareAndSwap(n, n+1) {
			p.wg.Add(1)
			go p.worker()
			return
		}
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	defer p.workers.Add(-1)

	for j := range p.queue {
		err := p.run(j)
		if j.result != nil {
			j.result <- err
		}
		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	}
}

func (p *WorkerPool) run(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("task panicked")
		}
	}()
	if j.ctx.Err() != nil {
		return j.ctx.Err()
	}
	return j.task(j.ctx)
}

// Close stops accepting tasks and waits for in-flight work to drain.
func (p *WorkerPool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.queue)
	p.wg.Wait()
}

// Stats reports the pool's counters.
func (p *WorkerPool) Stats() Stats {
	return Stats{
		Workers:   int(p.workers.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Stats is a snapshot of pool activity.
type Stats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
