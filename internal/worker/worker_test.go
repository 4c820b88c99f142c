package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/allocator/internal/contracts"
	"github.com/wonny/allocator/pkg/logger"
)

func testProblem(budget float64) *contracts.Problem {
	return &contracts.Problem{
		Budget: budget,
		Assets: map[string]contracts.AssetUnit{
			"A": {Symbol: "A", CurrentAmount: 0, TargetWeight: 0.5},
			"B": {Symbol: "B", CurrentAmount: 0, TargetWeight: 0.5},
		},
	}
}

func echoSolver() contracts.SolverFunc {
	return func(_ context.Context, p *contracts.Problem) (*contracts.Solution, error) {
		return &contracts.Solution{Mode: p.Mode(), Budget: p.Budget}, nil
	}
}

// gatedSolver blocks every solve until release is closed
func gatedSolver(release <-chan struct{}) contracts.SolverFunc {
	return func(_ context.Context, p *contracts.Problem) (*contracts.Solution, error) {
		<-release
		return &contracts.Solution{Budget: p.Budget}, nil
	}
}

func TestWorker_SubmitReturnsSolution(t *testing.T) {
	w := Spawn(echoSolver(), logger.Nop())
	defer w.Terminate()

	res := <-w.Submit(context.Background(), testProblem(100))
	require.NoError(t, res.Err)
	assert.Equal(t, 100.0, res.Solution.Budget)
}

func TestWorker_SubmitCopiesProblem(t *testing.T) {
	seen := make(chan *contracts.Problem, 1)
	w := Spawn(contracts.SolverFunc(func(_ context.Context, p *contracts.Problem) (*contracts.Solution, error) {
		seen <- p
		return &contracts.Solution{}, nil
	}), logger.Nop())
	defer w.Terminate()

	p := testProblem(100)
	res := <-w.Submit(context.Background(), p)
	require.NoError(t, res.Err)

	got := <-seen
	assert.NotSame(t, p, got)
	assert.Equal(t, p.Budget, got.Budget)
}

func TestWorker_PanicBecomesSolverFault(t *testing.T) {
	w := Spawn(contracts.SolverFunc(func(context.Context, *contracts.Problem) (*contracts.Solution, error) {
		panic("boom")
	}), logger.Nop())
	defer w.Terminate()

	res := <-w.Submit(context.Background(), testProblem(100))
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, contracts.ErrSolverFault))
	assert.Nil(t, res.Solution)

	// the worker survives a fault
	res = <-w.Submit(context.Background(), testProblem(100))
	assert.True(t, errors.Is(res.Err, contracts.ErrSolverFault))
}

func TestWorker_NilProblem(t *testing.T) {
	w := Spawn(echoSolver(), logger.Nop())
	defer w.Terminate()

	res := <-w.Submit(context.Background(), nil)
	assert.True(t, errors.Is(res.Err, contracts.ErrInvalidProblem))
}

func TestWorker_TerminateIsIdempotent(t *testing.T) {
	w := Spawn(echoSolver(), logger.Nop())
	w.Terminate()
	assert.NotPanics(t, w.Terminate)
	assert.True(t, w.Terminated())

	res := <-w.Submit(context.Background(), testProblem(1))
	assert.ErrorIs(t, res.Err, contracts.ErrWorkerTerminated)
}

func TestWith_TerminatesOnPanic(t *testing.T) {
	var spawned *Worker
	spawn := func(solver contracts.Solver, log *logger.Logger) *Worker {
		spawned = Spawn(solver, log)
		return spawned
	}

	assert.Panics(t, func() {
		_ = With(context.Background(), spawn, echoSolver(), logger.Nop(), func(context.Context, *Worker) error {
			panic("caller failure")
		})
	})
	require.NotNil(t, spawned)
	assert.True(t, spawned.Terminated())
}

func TestSolve_OneShot(t *testing.T) {
	sol, err := Solve(context.Background(), echoSolver(), logger.Nop(), testProblem(42))
	require.NoError(t, err)
	assert.Equal(t, 42.0, sol.Budget)
}

func TestSession_TimeoutDoesNotCancelComputation(t *testing.T) {
	release := make(chan struct{})
	var finished atomic.Bool
	solver := contracts.SolverFunc(func(ctx context.Context, p *contracts.Problem) (*contracts.Solution, error) {
		<-release
		finished.Store(true)
		return &contracts.Solution{Budget: p.Budget}, ctx.Err()
	})

	s := NewSession(solver, logger.Nop())
	defer s.Close()

	_, err := s.Solve(context.Background(), testProblem(10), 20*time.Millisecond)
	require.ErrorIs(t, err, contracts.ErrSolveTimeout)
	assert.Nil(t, s.Latest())

	close(release)
	require.Eventually(t, func() bool { return s.Latest() != nil }, time.Second, 5*time.Millisecond)
	assert.True(t, finished.Load())
	assert.Equal(t, 10.0, s.Latest().Budget)
}

func TestSession_StaleResultDropped(t *testing.T) {
	first := make(chan struct{})
	var calls atomic.Int32
	solver := contracts.SolverFunc(func(_ context.Context, p *contracts.Problem) (*contracts.Solution, error) {
		if calls.Add(1) == 1 {
			<-first
		}
		return &contracts.Solution{Budget: p.Budget}, nil
	})

	s := NewSession(solver, logger.Nop())
	defer s.Close()

	_, err := s.Solve(context.Background(), testProblem(1), 20*time.Millisecond)
	require.ErrorIs(t, err, contracts.ErrSolveTimeout)

	// the second request supersedes the first; the first result arrives later
	done := make(chan *contracts.Solution, 1)
	go func() {
		sol, err := s.Solve(context.Background(), testProblem(2), time.Second)
		if err == nil {
			done <- sol
		}
		close(done)
	}()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.inFlight
	}, time.Second, time.Millisecond)
	close(first)

	sol, ok := <-done
	require.True(t, ok)
	assert.Equal(t, 2.0, sol.Budget)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2.0, s.Latest().Budget, "late result of the first request must not overwrite the second")
}

func TestSession_RejectsConcurrentSolve(t *testing.T) {
	release := make(chan struct{})
	s := NewSession(gatedSolver(release), logger.Nop())
	defer s.Close()

	errs := make(chan error, 1)
	go func() {
		_, err := s.Solve(context.Background(), testProblem(1), time.Second)
		errs <- err
	}()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.inFlight
	}, time.Second, time.Millisecond)

	_, err := s.Solve(context.Background(), testProblem(2), time.Second)
	assert.ErrorIs(t, err, contracts.ErrSolveInFlight)

	close(release)
	assert.NoError(t, <-errs)
	assert.Equal(t, 1.0, s.Latest().Budget)
}

func TestPool_SolvesConcurrently(t *testing.T) {
	p := NewPool(3, echoSolver(), time.Second, logger.Nop())
	defer p.Close()
	assert.Equal(t, 3, p.Size())

	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(budget float64) {
			sol, err := p.Solve(context.Background(), testProblem(budget))
			if err == nil && sol.Budget != budget {
				err = errors.New("solution mixed up between requests")
			}
			errs <- err
		}(float64(i))
	}
	for i := 0; i < 10; i++ {
		assert.NoError(t, <-errs)
	}
}

func TestPool_TimeoutKeepsWorkerLeased(t *testing.T) {
	release := make(chan struct{})
	p := NewPool(1, gatedSolver(release), 10*time.Millisecond, logger.Nop())
	defer p.Close()

	_, err := p.Solve(context.Background(), testProblem(1))
	require.ErrorIs(t, err, contracts.ErrSolveTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	w, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(w)
}

func TestPool_ComputeLimitFreesWorker(t *testing.T) {
	stopped := make(chan error, 1)
	untilCancelled := contracts.SolverFunc(func(ctx context.Context, _ *contracts.Problem) (*contracts.Solution, error) {
		<-ctx.Done()
		stopped <- ctx.Err()
		return nil, ctx.Err()
	})
	p := NewPool(1, untilCancelled, 10*time.Millisecond, logger.Nop(), WithComputeLimit(50*time.Millisecond))
	defer p.Close()

	_, err := p.Solve(context.Background(), testProblem(1))
	require.ErrorIs(t, err, contracts.ErrSolveTimeout)

	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("computation outlived the compute limit")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(w)
}

func TestPool_ClosedRejects(t *testing.T) {
	p := NewPool(1, echoSolver(), time.Second, logger.Nop())
	p.Close()
	p.Close()

	_, err := p.Solve(context.Background(), testProblem(1))
	assert.ErrorIs(t, err, contracts.ErrWorkerTerminated)
}
