package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPacer_IntervalFromRPS(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, NewPacer(2).Interval())
	assert.Equal(t, time.Duration(0), NewPacer(0).Interval())
}

func TestPacer_FirstWaitDoesNotBlock(t *testing.T) {
	p := NewPacerInterval(time.Hour)
	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestPacer_EnforcesGap(t *testing.T) {
	p := NewPacerInterval(20 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, p.Wait(ctx))
	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestPacer_GapBeforeEveryItemButTheFirst(t *testing.T) {
	const gap = 20 * time.Millisecond
	p := NewPacerInterval(gap)
	ctx := context.Background()

	var starts []time.Time
	for range 3 {
		require.NoError(t, p.Wait(ctx))
		starts = append(starts, time.Now())
	}
	assert.GreaterOrEqual(t, starts[1].Sub(starts[0]), gap-2*time.Millisecond)
	assert.GreaterOrEqual(t, starts[2].Sub(starts[1]), gap-2*time.Millisecond)
}

func TestPacer_NoWaitWhenGapAlreadyElapsed(t *testing.T) {
	now := time.Now()
	p := NewPacerInterval(time.Second)
	p.now = func() time.Time { return now }

	require.NoError(t, p.Wait(context.Background()))
	now = now.Add(2 * time.Second)

	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestPacer_CancelledWhileWaiting(t *testing.T) {
	p := NewPacerInterval(time.Hour)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.Canceled)
}
