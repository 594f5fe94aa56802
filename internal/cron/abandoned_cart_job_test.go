package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAbandoner struct {
	batches []int
	err     error
	calls   int
	limits  []int
	nows    []time.Time
}

func (f *fakeAbandoner) AbandonExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	f.limits = append(f.limits, limit)
	f.nows = append(f.nows, now)
	idx := f.calls
	f.calls++
	if idx < len(f.batches) {
		if idx == len(f.batches)-1 && f.err != nil {
			return f.batches[idx], f.err
		}
		return f.batches[idx], nil
	}
	return 0, nil
}

func TestAbandonedCartJobDrainsFullBatches(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	carts := &fakeAbandoner{batches: []int{10, 10, 3}}
	job, err := NewAbandonedCartJob(AbandonedCartJobParams{Logger: testLogger(), Carts: carts, BatchSize: 10})
	require.NoError(t, err)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 3, carts.calls)
	assert.Equal(t, []int{10, 10, 10}, carts.limits)
	for _, ts := range carts.nows {
		assert.True(t, ts.Equal(now))
	}
}

func TestAbandonedCartJobStopsAtMaxBatches(t *testing.T) {
	carts := &fakeAbandoner{batches: []int{5, 5, 5, 5}}
	job, err := NewAbandonedCartJob(AbandonedCartJobParams{Logger: testLogger(), Carts: carts, BatchSize: 5, MaxBatches: 2})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, carts.calls)
}

func TestAbandonedCartJobReturnsErrors(t *testing.T) {
	carts := &fakeAbandoner{batches: []int{2}, err: errors.New("db down")}
	job, err := NewAbandonedCartJob(AbandonedCartJobParams{Logger: testLogger(), Carts: carts, BatchSize: 5})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.ErrorContains(t, err, "db down")
	assert.Equal(t, "abandoned-cart-sweep", job.Name())
}
