package piidetect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/feedbackbot-go/internal/apierr"
)

var models = []string{"primary", "second", "third"}

func noSleep(context.Context, time.Duration) error { return nil }

// script returns a DetectFunc that answers with errs[model] in order and
// succeeds once a model's list runs out.
func script(errs map[string][]error) (DetectFunc, *[]string) {
	var calls []string
	return func(ctx context.Context, model string) (*Result, error) {
		calls = append(calls, model)
		if q := errs[model]; len(q) > 0 {
			errs[model] = q[1:]
			if q[0] != nil {
				return nil, q[0]
			}
		}
		return &Result{IsClean: true}, nil
	}, &calls
}

func unavailable() error { return apierr.New(503, "overloaded", true, nil) }

func TestDetectWithFallback_FirstTry(t *testing.T) {
	detect, calls := script(nil)
	res, err := DetectWithFallback(context.Background(), detect, FallbackOptions{Models: models, Sleep: noSleep})
	require.NoError(t, err)
	assert.Equal(t, "primary", res.ModelUsed)
	assert.Equal(t, []string{"primary"}, *calls)
}

func TestDetectWithFallback_RetriesThenAdvances(t *testing.T) {
	detect, calls := script(map[string][]error{
		"primary": {unavailable(), unavailable(), unavailable()},
		"second":  {unavailable()},
	})
	var statuses []Status
	var slept int
	res, err := DetectWithFallback(context.Background(), detect, FallbackOptions{
		Models:             models,
		MaxRetriesPerModel: 3,
		Sleep:              func(context.Context, time.Duration) error { slept++; return nil },
		OnStatus:           func(s Status) { statuses = append(statuses, s) },
	})
	require.NoError(t, err)
	assert.Equal(t, "second", res.ModelUsed)
	assert.Equal(t, []string{"primary", "primary", "primary", "second", "second"}, *calls)
	// Waits happen between attempts on the same model only.
	assert.Equal(t, 3, slept)

	require.Len(t, statuses, 5)
	assert.Equal(t, Status{RetryAttempt: 1, MaxRetries: 3, ModelIndex: 0, TotalModels: 3, CurrentModel: "primary"}, statuses[0])
	assert.Equal(t, 3, statuses[2].RetryAttempt)
	// Attempt counter resets on the next model.
	assert.Equal(t, 1, statuses[3].RetryAttempt)
	assert.Equal(t, 1, statuses[3].ModelIndex)
	assert.Equal(t, "overloaded", statuses[3].LastError)
}

func TestDetectWithFallback_TerminalAdvancesImmediately(t *testing.T) {
	detect, calls := script(map[string][]error{
		"primary": {apierr.New(404, "no such model", false, nil)},
	})
	res, err := DetectWithFallback(context.Background(), detect, FallbackOptions{Models: models, Sleep: noSleep})
	require.NoError(t, err)
	assert.Equal(t, "second", res.ModelUsed)
	assert.Equal(t, []string{"primary", "second"}, *calls)
}

func TestDetectWithFallback_AuthAborts(t *testing.T) {
	detect, calls := script(map[string][]error{
		"primary": {apierr.New(401, "Unauthorized", false, nil)},
	})
	_, err := DetectWithFallback(context.Background(), detect, FallbackOptions{Models: models, Sleep: noSleep})
	e, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.AuthError, e.Category)
	assert.False(t, e.Exhausted)
	assert.Equal(t, []string{"primary"}, *calls)
}

func TestDetectWithFallback_AllExhausted(t *testing.T) {
	errs := map[string][]error{}
	for _, m := range models {
		errs[m] = []error{unavailable(), unavailable()}
	}
	detect, calls := script(errs)
	_, err := DetectWithFallback(context.Background(), detect, FallbackOptions{Models: models, MaxRetriesPerModel: 2, Sleep: noSleep})
	e, ok := apierr.As(err)
	require.True(t, ok)
	assert.True(t, e.Exhausted)
	assert.False(t, e.Retryable)
	assert.Equal(t, 503, e.Status)
	assert.Len(t, *calls, 6)
}

func TestDetectWithFallback_PlainErrorIsNetwork(t *testing.T) {
	detect, _ := script(map[string][]error{
		"primary": {errors.New("connection refused")},
	})
	res, err := DetectWithFallback(context.Background(), detect, FallbackOptions{Models: models, Sleep: noSleep})
	require.NoError(t, err)
	assert.Equal(t, "primary", res.ModelUsed)
}

func TestDetectWithFallback_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	detect := func(ctx context.Context, model string) (*Result, error) {
		cancel()
		return nil, unavailable()
	}
	_, err := DetectWithFallback(ctx, detect, FallbackOptions{Models: models})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectWithFallback_NoModels(t *testing.T) {
	_, err := DetectWithFallback(context.Background(), nil, FallbackOptions{})
	assert.Error(t, err)
}
