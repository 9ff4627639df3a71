package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("*/15 * * * *"))
	assert.NoError(t, Validate("@hourly"))
	assert.ErrorIs(t, Validate(""), ErrInvalidSchedule)
	assert.ErrorIs(t, Validate("every day"), ErrInvalidSchedule)
}

func TestNextRun(t *testing.T) {
	ref := time.Date(2026, 5, 4, 12, 30, 0, 0, time.UTC)
	next, err := NextRun("0 * * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 4, 13, 0, 0, 0, time.UTC), next)

	_, err = NextRun("nope", ref)
	assert.Error(t, err)
}

func TestServiceRunsJobs(t *testing.T) {
	svc := NewService()
	var runs atomic.Int32
	require.NoError(t, svc.AddJob("tick", "* * * * * *", func(ctx context.Context, now time.Time) {
		runs.Add(1)
	}))
	require.Error(t, svc.AddJob("bad", "not cron", func(context.Context, time.Time) {}))
	assert.Len(t, svc.Jobs(), 1)

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	require.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestServiceSurvivesPanic(t *testing.T) {
	svc := NewService()
	var runs atomic.Int32
	require.NoError(t, svc.AddJob("boom", "* * * * * *", func(context.Context, time.Time) {
		runs.Add(1)
		panic("boom")
	}))
	require.NoError(t, svc.Start(context.Background()))

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 4*time.Second, 50*time.Millisecond)
	svc.Stop()
	svc.Stop()
}
