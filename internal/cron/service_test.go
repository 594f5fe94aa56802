package cron

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
	"github.com/angelmondragon/assetdrop-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	err      error
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name  string
	err   error
	panic bool
	runs  int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	if t.panic {
		panic("sweep exploded")
	}
	return t.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestRunOnceRunsAllJobsAndCombinesFailures(t *testing.T) {
	ok := &testJob{name: "ok"}
	failing := &testJob{name: "failing", err: errors.New("boom")}
	panicking := &testJob{name: "panicking", panic: true}
	last := &testJob{name: "last"}
	registry, err := NewRegistry(ok, failing, panicking, last)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	err = service.RunOnce(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Contains(t, err.Error(), "failing: boom")
	assert.Contains(t, err.Error(), "panicking: panic: sweep exploded")

	for _, job := range []*testJob{ok, failing, panicking, last} {
		assert.Equal(t, 1, job.runs, job.name)
	}
	assert.Equal(t, 1, lock.releases)
	assert.False(t, lock.held)

	failures, err := testutil.GatherAndCount(reg, "cron_job_failure_total")
	require.NoError(t, err)
	assert.Equal(t, 2, failures)
	successes, err := testutil.GatherAndCount(reg, "cron_job_success_total")
	require.NoError(t, err)
	assert.Equal(t, 2, successes)
	stamped, err := testutil.GatherAndCount(reg, "cron_job_last_success_timestamp_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, stamped)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	registry, err := NewRegistry(job)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: registry,
		Lock:     &fakeLock{held: true},
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	assert.Zero(t, job.runs)
	skipped, err := testutil.GatherAndCount(reg, "cron_cycle_skipped_total")
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
}

func TestRunOnceReportsLockErrors(t *testing.T) {
	registry, err := NewRegistry(&testJob{name: "job"})
	require.NoError(t, err)
	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: &fakeLock{err: errors.New("redis down")}})
	require.NoError(t, err)

	require.ErrorContains(t, service.RunOnce(context.Background()), "redis down")
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "job"}
	registry, err := NewRegistry(job)
	require.NoError(t, err)
	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: &fakeLock{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, service.Run(ctx), context.Canceled)
	assert.Equal(t, 1, job.runs)
}

func TestNewServiceValidates(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)
	_, err = NewService(ServiceParams{Registry: registry, Lock: &fakeLock{}})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: testLogger(), Registry: registry})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: testLogger(), Lock: &fakeLock{}})
	require.Error(t, err)
}
