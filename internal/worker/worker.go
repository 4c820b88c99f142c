package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/allocator/internal/contracts"
	"github.com/wonny/allocator/internal/metrics"
	"github.com/wonny/allocator/pkg/logger"
)

// Result is the single reply to a submitted problem
type Result struct {
	Solution *contracts.Solution
	Err      error
	Duration time.Duration
}

type message struct {
	ctx     context.Context
	problem *contracts.Problem
	reply   chan Result
}

// Worker runs solves on its own goroutine and talks only through messages.
// It shares no state with callers: every submitted problem is copied first.
// A Worker must be released with Terminate.
type Worker struct {
	id     string
	solver contracts.Solver
	log    *logger.Logger

	inbox chan message
	done  chan struct{}
	once  sync.Once
}

// Spawner creates workers; Spawn matches it
type Spawner func(solver contracts.Solver, log *logger.Logger) *Worker

// Spawn starts a new worker
func Spawn(solver contracts.Solver, log *logger.Logger) *Worker {
	id := uuid.NewString()
	w := &Worker{
		id:     id,
		solver: solver,
		log:    log.WithField("worker", id),
		inbox:  make(chan message),
		done:   make(chan struct{}),
	}
	go w.loop()

	w.log.Debug("worker spawned")
	return w
}

// ID returns the worker identifier used in logs
func (w *Worker) ID() string {
	return w.id
}

func (w *Worker) loop() {
	for {
		select {
		case <-w.done:
			return
		case msg := <-w.inbox:
			msg.reply <- w.handle(msg)
		}
	}
}

// handle solves one message; a panic becomes a SolverFault and is never retried
func (w *Worker) handle(msg message) (res Result) {
	start := time.Now()
	mode := string(msg.problem.Mode())

	defer func() {
		res.Duration = time.Since(start)
		if r := recover(); r != nil {
			fault := contracts.NewSolverFault(r)
			w.log.WithError(fault).Error("solver panicked")
			res.Solution, res.Err = nil, fault
		}

		metrics.SolveDuration.WithLabelValues(mode).Observe(res.Duration.Seconds())
		metrics.SolveRequests.WithLabelValues(mode, statusOf(res.Err)).Inc()
	}()

	sol, err := w.solver.Solve(msg.ctx, msg.problem)
	if err != nil && !errors.Is(err, contracts.ErrInvalidProblem) {
		w.log.WithError(err).Warn("solve failed")
	}
	return Result{Solution: sol, Err: err}
}

// Submit sends a problem to the worker without blocking.
// The returned channel receives exactly one Result. Submitting to a
// terminated worker yields ErrWorkerTerminated.
func (w *Worker) Submit(ctx context.Context, problem *contracts.Problem) <-chan Result {
	reply := make(chan Result, 1)

	if problem == nil {
		reply <- Result{Err: contracts.ValidationError{Field: "problem", Message: "must not be nil"}}
		return reply
	}

	select {
	case <-w.done:
		reply <- Result{Err: contracts.ErrWorkerTerminated}
		return reply
	default:
	}

	msg := message{ctx: ctx, problem: problem.Clone(), reply: reply}
	go func() {
		select {
		case w.inbox <- msg:
			// the loop owns the reply now
		case <-w.done:
			reply <- Result{Err: contracts.ErrWorkerTerminated}
		case <-ctx.Done():
			reply <- Result{Err: ctx.Err()}
		}
	}()
	return reply
}

// Terminate releases the worker. It is idempotent; a solve already running
// completes and still delivers its result.
func (w *Worker) Terminate() {
	w.once.Do(func() {
		close(w.done)
		w.log.Debug("worker terminated")
	})
}

// Terminated reports whether Terminate was called
func (w *Worker) Terminated() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// With spawns a worker, runs fn with it and always terminates it, also when fn panics
func With(ctx context.Context, spawn Spawner, solver contracts.Solver, log *logger.Logger, fn func(ctx context.Context, w *Worker) error) error {
	w := spawn(solver, log)
	defer w.Terminate()
	return fn(ctx, w)
}

// Solve is the scoped one-shot form: spawn, submit, wait, terminate
func Solve(ctx context.Context, solver contracts.Solver, log *logger.Logger, problem *contracts.Problem) (*contracts.Solution, error) {
	var sol *contracts.Solution
	err := With(ctx, Spawn, solver, log, func(ctx context.Context, w *Worker) error {
		select {
		case res := <-w.Submit(ctx, problem):
			sol = res.Solution
			return res.Err
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	return sol, err
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return metrics.StatusOK
	case errors.Is(err, contracts.ErrInvalidProblem):
		return metrics.StatusInvalid
	case errors.Is(err, contracts.ErrSolverFault):
		return metrics.StatusFault
	default:
		return metrics.StatusError
	}
}
