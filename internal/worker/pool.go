package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/allocator/internal/contracts"
	"github.com/wonny/allocator/internal/metrics"
	"github.com/wonny/allocator/pkg/logger"
)

// defaultComputeLimit stops a computation nobody waits for anymore
const defaultComputeLimit = 30 * time.Second

// Pool leases a fixed set of workers to concurrent callers
type Pool struct {
	idle         chan *Worker
	workers      []*Worker
	timeout      time.Duration
	computeLimit time.Duration
	log          *logger.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// PoolOption configures a Pool
type PoolOption func(*Pool)

// WithComputeLimit bounds how long one computation may run.
// The limit outlives the caller's timeout so a slow solve still frees its worker.
func WithComputeLimit(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.computeLimit = d
		}
	}
}

// NewPool spawns size workers sharing one solver
func NewPool(size int, solver contracts.Solver, timeout time.Duration, log *logger.Logger, opts ...PoolOption) *Pool {
	if size < 1 {
		size = 1
	}

	p := &Pool{
		idle:         make(chan *Worker, size),
		workers:      make([]*Worker, 0, size),
		timeout:      timeout,
		computeLimit: defaultComputeLimit,
		log:          log,
		closed:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < size; i++ {
		w := Spawn(solver, log)
		p.workers = append(p.workers, w)
		p.idle <- w
	}

	log.WithField("size", size).Info("worker pool started")
	return p
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return len(p.workers)
}

// Acquire leases an idle worker, waiting until one is free
func (p *Pool) Acquire(ctx context.Context) (*Worker, error) {
	select {
	case <-p.closed:
		return nil, contracts.ErrWorkerTerminated
	default:
	}

	select {
	case w := <-p.idle:
		metrics.WorkersBusy.Inc()
		return w, nil
	case <-p.closed:
		return nil, contracts.ErrWorkerTerminated
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a leased worker
func (p *Pool) Release(w *Worker) {
	metrics.WorkersBusy.Dec()
	select {
	case p.idle <- w:
	default:
		// never happens with balanced Acquire/Release
		p.log.WithField("worker", w.ID()).Error("released worker does not belong to the pool")
	}
}

// Solve runs one problem on a leased worker and waits at most the pool timeout.
// On timeout the worker stays leased until its computation finishes or hits the compute limit.
func (p *Pool) Solve(ctx context.Context, problem *contracts.Problem) (*contracts.Solution, error) {
	w, err := p.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire worker: %w", err)
	}

	computeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.computeLimit)
	replies := w.Submit(computeCtx, problem)

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case res := <-replies:
		cancel()
		p.Release(w)
		return res.Solution, res.Err
	case <-timer.C:
		metrics.SolveRequests.WithLabelValues(string(problem.Mode()), metrics.StatusTimeout).Inc()
		go p.releaseWhenDone(w, replies, cancel)
		return nil, contracts.ErrSolveTimeout
	case <-ctx.Done():
		go p.releaseWhenDone(w, replies, cancel)
		return nil, ctx.Err()
	}
}

func (p *Pool) releaseWhenDone(w *Worker, replies <-chan Result, cancel context.CancelFunc) {
	<-replies
	cancel()
	metrics.StaleResults.Inc()
	p.Release(w)
}

// Close terminates every worker
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		for _, w := range p.workers {
			w.Terminate()
		}
		p.log.Info("worker pool stopped")
	})
}
