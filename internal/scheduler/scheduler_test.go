package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/allocator/pkg/logger"
)

// flakyJob fails until it has been called failFor times
type flakyJob struct {
	name    string
	failFor int32
	calls   atomic.Int32
}

func (j *flakyJob) Name() string     { return j.name }
func (j *flakyJob) Schedule() string { return "@every 1h" }
func (j *flakyJob) Run(ctx context.Context) error {
	if j.calls.Add(1) <= j.failFor {
		return errors.New("upstream unavailable")
	}
	return nil
}

type panicJob struct{}

func (panicJob) Name() string                  { return "panics" }
func (panicJob) Schedule() string              { return "@every 1h" }
func (panicJob) Run(ctx context.Context) error { panic("boom") }

func newTestScheduler(opts ...Option) *Scheduler {
	return New(logger.Nop(), append([]Option{WithRetries(2, 0)}, opts...)...)
}

func TestAddJobRejectsDuplicate(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddJob(&flakyJob{name: "a"}))

	err := s.AddJob(&flakyJob{name: "a"})
	assert.ErrorContains(t, err, "already exists")
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := newTestScheduler()
	err := s.AddJob(badScheduleJob{})
	require.Error(t, err)
	assert.Empty(t, s.GetAllJobs())
}

type badScheduleJob struct{}

func (badScheduleJob) Name() string                  { return "bad" }
func (badScheduleJob) Schedule() string              { return "not a schedule" }
func (badScheduleJob) Run(ctx context.Context) error { return nil }

func TestRunNowRetriesUntilSuccess(t *testing.T) {
	s := newTestScheduler()
	job := &flakyJob{name: "flaky", failFor: 2}
	require.NoError(t, s.AddJob(job))

	res, err := s.RunNow("flaky")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Empty(t, res.Error)
}

func TestRunNowGivesUpAfterRetries(t *testing.T) {
	s := newTestScheduler()
	job := &flakyJob{name: "broken", failFor: 100}
	require.NoError(t, s.AddJob(job))

	res, err := s.RunNow("broken")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "upstream unavailable", res.Error)

	stats := s.GetJobStats()["broken"]
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1, stats.FailureCount)
	assert.Nil(t, stats.LastSuccess)
	assert.NotNil(t, stats.LastFailure)
}

func TestPanickingJobIsRecorded(t *testing.T) {
	s := newTestScheduler(WithRetries(0, 0))
	require.NoError(t, s.AddJob(panicJob{}))

	res, err := s.RunNow("panics")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "boom")
}

func TestRunJobUnknown(t *testing.T) {
	s := newTestScheduler()
	assert.Error(t, s.RunJob("missing"))
	_, err := s.RunNow("missing")
	assert.Error(t, err)
}

func TestRunJobInBackground(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddJob(&flakyJob{name: "bg"}))
	require.NoError(t, s.RunJob("bg"))

	assert.Eventually(t, func() bool {
		h, err := s.GetJobHistory("bg")
		return err == nil && len(h.Results) == 1
	}, time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestRemoveJobForgetsHistory(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddJob(&flakyJob{name: "gone"}))
	_, err := s.RunNow("gone")
	require.NoError(t, err)

	require.NoError(t, s.RemoveJob("gone"))
	_, err = s.GetJobHistory("gone")
	assert.Error(t, err)
	assert.NotContains(t, s.GetJobStats(), "gone")
	assert.Error(t, s.RemoveJob("gone"))
}

func TestStopCancelsRetryWait(t *testing.T) {
	s := New(logger.Nop(), WithRetries(5, time.Hour))
	require.NoError(t, s.AddJob(&flakyJob{name: "slow", failFor: 100}))
	require.NoError(t, s.RunJob("slow"))

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not interrupt the retry wait")
	}

	h, err := s.GetJobHistory("slow")
	require.NoError(t, err)
	require.Len(t, h.Results, 1)
	assert.False(t, h.Results[0].Success)
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	assert.Equal(t, 0.0, h.SuccessRate())
	assert.Empty(t, h.Latest(5))

	for i := 0; i < historyLimit+10; i++ {
		h.AddResult(JobResult{JobName: "x", Success: i%4 != 0})
	}

	assert.Len(t, h.Results, historyLimit)
	assert.Len(t, h.Latest(3), 3)
	assert.Len(t, h.Failures(), 25)
	assert.InDelta(t, 0.75, h.SuccessRate(), 1e-9)
}

func TestGetAllJobsSorted(t *testing.T) {
	s := newTestScheduler()
	for _, name := range []string{"b", "c", "a"} {
		require.NoError(t, s.AddJob(&flakyJob{name: name}))
	}
	assert.Equal(t, []string{"a", "b", "c"}, s.GetAllJobs())
}
