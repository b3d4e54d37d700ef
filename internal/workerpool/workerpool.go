// Package workerpool implements the fixed-size worker pool described in
// SPEC_FULL.md §4.F: a set of goroutines draining a FIFO task queue, with a
// priority lane that jumps ahead of ordinary submissions.
package workerpool

import (
	"context"
	"sync"

	"github.com/objectfs/objectfs/internal/metrics"
)

// Task is a unit of work submitted to the pool.
type Task func()

// Pool is a fixed-size set of worker goroutines draining a shared queue.
type Pool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	priority []Task
	normal   []Task
	shutdown bool

	wg sync.WaitGroup

	collector *metrics.Collector
}

// SetMetrics attaches collector, which receives the queue-depth gauge
// (SPEC_FULL.md §11) on every Submit/SubmitPrioritized call. Nil is
// accepted and disables reporting.
func (p *Pool) SetMetrics(collector *metrics.Collector) {
	p.mu.Lock()
	p.collector = collector
	p.mu.Unlock()
}

// New starts size worker goroutines. size must be >= 1.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.priority) == 0 && len(p.normal) == 0 && !p.shutdown {
			p.cond.Wait()
		}
		if p.shutdown && len(p.priority) == 0 && len(p.normal) == 0 {
			p.mu.Unlock()
			return
		}

		var task Task
		if len(p.priority) > 0 {
			task = p.priority[0]
			p.priority = p.priority[1:]
		} else {
			task = p.normal[0]
			p.normal = p.normal[1:]
		}
		p.mu.Unlock()

		task()
	}
}

// Submit enqueues task at the tail of the FIFO queue.
func (p *Pool) Submit(task Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return
	}
	p.normal = append(p.normal, task)
	p.reportQueueDepthLocked()
	p.cond.Signal()
}

// SubmitPrioritized enqueues task ahead of all non-prioritized tasks.
func (p *Pool) SubmitPrioritized(task Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return
	}
	p.priority = append(p.priority, task)
	p.reportQueueDepthLocked()
	p.cond.Signal()
}

// reportQueueDepthLocked reports the current queue depth to the attached
// collector. Callers must hold p.mu.
func (p *Pool) reportQueueDepthLocked() {
	if p.collector == nil {
		return
	}
	p.collector.UpdateActiveConnections(len(p.priority) + len(p.normal))
}

// SubmitAsync runs fn on a worker, then invokes callback with its result on
// the same worker.
func (p *Pool) SubmitAsync(fn func() any, callback func(result any)) {
	p.Submit(func() {
		result := fn()
		callback(result)
	})
}

// SubmitAsyncWithContext is SubmitAsync with a user-supplied context value
// threaded through to both fn and callback.
func (p *Pool) SubmitAsyncWithContext(ctx context.Context, fn func(ctx context.Context) any, callback func(ctx context.Context, result any)) {
	p.Submit(func() {
		result := fn(ctx)
		callback(ctx, result)
	})
}

// Shutdown stops accepting new tasks, wakes every worker, drops whatever
// remains queued, and blocks until all workers have exited.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.shutdown = true
	p.priority = nil
	p.normal = nil
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()
}

// QueueLen returns the number of tasks currently queued (priority+normal),
// for metrics.
func (p *Pool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.priority) + len(p.normal)
}
