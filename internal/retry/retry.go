// Package retry implements the two-phase delay policy used by the chat client:
// a handful of quick retries followed by a longer backoff phase.
package retry

import (
	"context"
	"time"
)

// Phase is the stage of a retry loop.
type Phase string

const (
	PhaseQuick   Phase = "quick"
	PhaseBackoff Phase = "backoff"
)

// Policy bounds a retry loop.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int
	// QuickAttempts is how many failed attempts are followed by a quick retry
	// before switching to the backoff phase.
	QuickAttempts int
	// Delays[i] is the wait after failed attempt i (0-based). The last entry
	// is reused when the table is shorter than MaxAttempts-1.
	Delays []time.Duration
}

// DefaultPolicy is 10 attempts: five quick retries of 1-2s, then exponential
// backoff from 4s to 60s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   10,
		QuickAttempts: 5,
		Delays: []time.Duration{
			1000 * time.Millisecond,
			1500 * time.Millisecond,
			2 * time.Second,
			2 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			16 * time.Second,
			32 * time.Second,
			60 * time.Second,
		},
	}
}

// State describes the retry about to happen after a failed attempt.
type State struct {
	Attempt int // 1-based index of the failed attempt
	Max     int
	Phase   Phase
	Delay   time.Duration
}

// CanRetry reports whether another attempt is allowed after failed attempt
// index failed (0-based).
func (p Policy) CanRetry(failed int) bool {
	return failed < p.MaxAttempts-1
}

// Next returns the retry state following failed attempt index failed (0-based).
func (p Policy) Next(failed int) State {
	phase := PhaseBackoff
	if failed < p.QuickAttempts {
		phase = PhaseQuick
	}
	return State{
		Attempt: failed + 1,
		Max:     p.MaxAttempts,
		Phase:   phase,
		Delay:   p.delay(failed),
	}
}

func (p Policy) delay(i int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if i >= len(p.Delays) {
		return p.Delays[len(p.Delays)-1]
	}
	if i < 0 {
		return p.Delays[0]
	}
	return p.Delays[i]
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for d, returning ctx.Err() if ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
