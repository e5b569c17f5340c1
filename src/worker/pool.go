package worker

import (
	"context"
	"runtime"
	"sync"

	"swiftlingo/src/logutil"
)

// Job is one unit of pipeline work. It runs on a worker goroutine and must
// honor ctx; results are posted back to the caller by the job itself.
type Job func(ctx context.Context)

// Pool is a fixed-size worker pool with a 1-slot input queue (strict back-pressure).
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup

	// mu orders senders against Close.
	mu     sync.Mutex
	closed bool
}

type job struct {
	ctx context.Context
	run Job
}

// New creates a worker pool. Size defaults to NumCPU when size<=0. Queue is 1 slot.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{jobs: make(chan job, 1)}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for j := range p.jobs {
				p.exec(id, j)
			}
		}(i)
	}
}

func (p *Pool) exec(id int, j job) {
	defer func() {
		if r := recover(); r != nil {
			logutil.FromContext(j.ctx).Error("PANIC in worker job",
				logutil.Int("worker", id), logutil.Any("panic", r))
		}
	}()
	if j.ctx.Err() != nil {
		// Cancelled while queued. The job still runs so it can report the
		// cancellation; it sees ctx already done.
		logutil.FromContext(j.ctx).Debug("worker: job cancelled before start", logutil.Int("worker", id))
	}
	j.run(j.ctx)
}

// Submit enqueues a job if the single-slot queue is free. Returns false if dropped.
func (p *Pool) Submit(ctx context.Context, run Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- job{ctx: ctx, run: run}:
		return true
	default:
		return false
	}
}

// SubmitLatest enqueues a job, evicting the one waiting in the queue slot
// when every worker is busy. The evicted job never runs. Returns false only
// once the pool is closed.
func (p *Pool) SubmitLatest(ctx context.Context, run Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	j := job{ctx: ctx, run: run}
	for {
		select {
		case p.jobs <- j:
			return true
		default:
		}
		select {
		case old := <-p.jobs:
			logutil.FromContext(old.ctx).Debug("worker: queued job evicted by a newer one")
		default:
		}
	}
}

// Close stops the pool after draining current work.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
