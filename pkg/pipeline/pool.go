package pipeline

import (
	"context"
	"sync"

	"github.com/nexusdb/guardian/pkg/log"
	"github.com/nexusdb/guardian/pkg/metrics"
)

// DefaultPoolSize is spec.md 5's default bounded worker pool width.
const DefaultPoolSize = 5

// Job is one unit of pipeline work: a backup or restore run bound to its
// own context (already carrying whatever timeout the caller wants).
type Job func(ctx context.Context)

// Pool is a bounded worker pool draining the backup/restore queue. Jobs are
// submitted non-blockingly; a full queue signals backpressure to the
// caller (the scheduler tick) rather than blocking it indefinitely. The CLI
// backup and restore commands run the pipeline directly, not through a Pool.
type Pool struct {
	jobs chan Job
	wg   sync.WaitGroup
}

// NewPool starts size worker goroutines draining a queue of depth
// queueDepth. Call Stop to drain in-flight jobs and release goroutines.
func NewPool(ctx context.Context, size, queueDepth int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if queueDepth <= 0 {
		queueDepth = size * 4
	}

	p := &Pool{jobs: make(chan Job, queueDepth)}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	return p
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			metrics.WorkerPoolActive.Inc()
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.WithComponent("pipeline").Error().Interface("panic", r).Msg("pipeline job panicked")
					}
				}()
				job(ctx)
			}()
			metrics.WorkerPoolActive.Dec()
		}
	}
}

// Submit enqueues job without blocking. It returns false if the queue is
// full, signaling the caller should retry on the next tick rather than
// stall admission.
func (p *Pool) Submit(job Job) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
}
