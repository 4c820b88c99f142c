package worker

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/allocator/internal/contracts"
	"github.com/wonny/allocator/internal/latest"
	"github.com/wonny/allocator/internal/metrics"
	"github.com/wonny/allocator/pkg/logger"
)

// Session is one user's allocation flow bound to a dedicated worker.
//
// At most one solve is outstanding at a time. The caller waits for the result or
// the timeout, whichever comes first; a timeout only stops the wait, the
// computation keeps running. Results are applied last-resolved-wins, guarded by
// a request token so a late result never overwrites a newer one.
type Session struct {
	worker  *Worker
	tracker *latest.Tracker
	log     *logger.Logger

	mu       sync.Mutex
	inFlight bool
	latest   *contracts.Solution
}

// NewSession spawns the session's worker
func NewSession(solver contracts.Solver, log *logger.Logger) *Session {
	w := Spawn(solver, log)
	return &Session{
		worker:  w,
		tracker: latest.NewTracker(),
		log:     log.WithField("worker", w.ID()),
	}
}

// Solve submits a problem and waits for its solution.
// It fails with ErrSolveInFlight while a previous solve is still awaited and with
// ErrSolveTimeout when the worker did not answer in time.
func (s *Session) Solve(ctx context.Context, problem *contracts.Problem, timeout time.Duration) (*contracts.Solution, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, contracts.ErrSolveInFlight
	}
	s.inFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	// the computation outlives the caller's wait; only a newer solve cancels it
	reqCtx, token := s.tracker.Begin(context.WithoutCancel(ctx))
	replies := s.worker.Submit(reqCtx, problem)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-replies:
		if res.Err != nil {
			return nil, res.Err
		}
		if !s.apply(token, res.Solution) {
			return nil, contracts.ErrStaleResult
		}
		return res.Solution, nil
	case <-timer.C:
		s.log.WithField("timeout", timeout.String()).Warn("solve timed out, result will be applied late if still current")
		go s.awaitLate(token, replies)
		return nil, contracts.ErrSolveTimeout
	case <-ctx.Done():
		go s.awaitLate(token, replies)
		return nil, ctx.Err()
	}
}

// apply stores sol as the latest solution if token is still current
func (s *Session) apply(token latest.Token, sol *contracts.Solution) bool {
	ok := s.tracker.Commit(token, func() {
		s.mu.Lock()
		s.latest = sol
		s.mu.Unlock()
	})
	if !ok {
		metrics.StaleResults.Inc()
		s.log.WithField("token", string(token)).Debug("stale solve result discarded")
	}
	return ok
}

func (s *Session) awaitLate(token latest.Token, replies <-chan Result) {
	res := <-replies
	if res.Err != nil {
		s.log.WithError(res.Err).Debug("late solve failed")
		return
	}
	s.apply(token, res.Solution)
}

// Latest returns the last applied solution, nil before the first one
func (s *Session) Latest() *contracts.Solution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Close cancels any pending solve and releases the worker
func (s *Session) Close() {
	s.tracker.Stop()
	s.worker.Terminate()
}
