package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy_Phases(t *testing.T) {
	p := DefaultPolicy()

	var phases []Phase
	var delays []time.Duration
	for i := 0; p.CanRetry(i); i++ {
		s := p.Next(i)
		assert.Equal(t, i+1, s.Attempt)
		assert.Equal(t, 10, s.Max)
		phases = append(phases, s.Phase)
		delays = append(delays, s.Delay)
	}

	assert.Len(t, phases, 9)
	assert.Equal(t, []Phase{
		PhaseQuick, PhaseQuick, PhaseQuick, PhaseQuick, PhaseQuick,
		PhaseBackoff, PhaseBackoff, PhaseBackoff, PhaseBackoff,
	}, phases)
	assert.Equal(t, 1*time.Second, delays[0])
	assert.Equal(t, 1500*time.Millisecond, delays[1])
	assert.Equal(t, 4*time.Second, delays[5])
	assert.Equal(t, 32*time.Second, delays[8])
}

func TestPolicy_ShortDelayTable(t *testing.T) {
	p := Policy{MaxAttempts: 5, QuickAttempts: 1, Delays: []time.Duration{time.Millisecond, 5 * time.Millisecond}}
	assert.Equal(t, time.Millisecond, p.Next(0).Delay)
	assert.Equal(t, 5*time.Millisecond, p.Next(3).Delay)
	assert.Equal(t, PhaseBackoff, p.Next(1).Phase)

	assert.Equal(t, time.Duration(0), Policy{MaxAttempts: 2}.Next(0).Delay)
}

func TestPolicy_CanRetry(t *testing.T) {
	p := Policy{MaxAttempts: 3}
	assert.True(t, p.CanRetry(0))
	assert.True(t, p.CanRetry(1))
	assert.False(t, p.CanRetry(2))
	assert.False(t, Policy{MaxAttempts: 1}.CanRetry(0))
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleep_Elapses(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
	assert.NoError(t, Sleep(context.Background(), 0))
}
