package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j *funcJob) Name() string                  { return j.name }
func (j *funcJob) Description() string           { return "test job " + j.name }
func (j *funcJob) Run(ctx context.Context) error { return j.run(ctx) }

func TestScheduler_RegisterValidation(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	job := &funcJob{name: "a", run: func(context.Context) error { return nil }}

	assert.ErrorIs(t, s.Register(nil, Every(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, Every(time.Minute)))
	assert.ErrorIs(t, s.Register(job, Every(time.Minute)), ErrJobAlreadyExists)
}

func TestScheduler_RunNowRecordsResult(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	failing := errors.New("failed")
	require.NoError(t, s.Register(&funcJob{name: "ok", run: func(context.Context) error { return nil }}, Every(time.Hour)))
	require.NoError(t, s.Register(&funcJob{name: "bad", run: func(context.Context) error { return failing }}, Every(time.Hour)))

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)

	_, err = s.RunNow(context.Background(), "bad")
	assert.ErrorIs(t, err, failing)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "bad", jobs[0].Name)
	assert.EqualValues(t, 1, jobs[0].FailCount)
	assert.Len(t, s.GetHistory(0), 2)

	totals := s.Totals()
	assert.EqualValues(t, 2, totals.Runs)
	assert.EqualValues(t, 1, totals.Failures)
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())

	var runs atomic.Int32
	job := &funcJob{name: "tick", run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}
	require.NoError(t, s.Register(job, Every(time.Hour).StartingNow()))

	require.NoError(t, s.Start(context.Background(), 10*time.Millisecond))
	assert.ErrorIs(t, s.Start(context.Background(), 0), ErrSchedulerAlreadyRunning)

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	assert.EqualValues(t, 1, runs.Load(), "next run is an hour away")
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())

	started := make(chan struct{})
	var cancelled atomic.Bool
	job := &funcJob{name: "slow", run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}}
	require.NoError(t, s.Register(job, Every(time.Hour).StartingNow()))
	require.NoError(t, s.Start(context.Background(), 10*time.Millisecond))

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("job did not start")
	}
	require.NoError(t, s.Stop())
	assert.True(t, cancelled.Load())
}

func TestScheduler_JobTimeout(t *testing.T) {
	s := NewScheduler(SchedulerConfig{JobTimeout: 20 * time.Millisecond})
	require.NoError(t, s.Register(&funcJob{name: "slow", run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}, Every(time.Hour)))

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIntervalSchedule(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	s := Every(time.Hour).StartingNow()
	assert.Equal(t, now, s.Next(now))
	assert.Equal(t, now.Add(time.Hour), s.Next(now))
	assert.Equal(t, "@every 1h0m0s", s.String())
}
