package piidetect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gonkalabs/feedbackbot-go/internal/apierr"
	"github.com/gonkalabs/feedbackbot-go/internal/retry"
)

// DetectFunc runs one detection attempt against model.
type DetectFunc func(ctx context.Context, model string) (*Result, error)

// FallbackOptions configures DetectWithFallback.
type FallbackOptions struct {
	// Models is the ordered candidate list, primary first.
	Models []string
	// MaxRetriesPerModel is the attempt budget per model. Defaults to 3.
	MaxRetriesPerModel int
	// RetryDelay is the wait between attempts on the same model. Defaults to 2s.
	RetryDelay time.Duration
	// Sleep waits between attempts. Defaults to retry.Sleep.
	Sleep retry.SleepFunc
	// OnStatus is called before every attempt.
	OnStatus func(Status)
}

func (o *FallbackOptions) defaults() {
	if o.MaxRetriesPerModel <= 0 {
		o.MaxRetriesPerModel = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 2 * time.Second
	}
	if o.Sleep == nil {
		o.Sleep = retry.Sleep
	}
}

// DetectWithFallback walks opts.Models until one succeeds. Retryable failures
// retry the same model; a model that keeps failing, or fails terminally, hands
// over to the next one. Authentication errors abort at once. When every model
// has failed the last error is returned exhausted.
func DetectWithFallback(ctx context.Context, detect DetectFunc, opts FallbackOptions) (*Result, error) {
	opts.defaults()
	if len(opts.Models) == 0 {
		return nil, errors.New("piidetect: no detection models")
	}

	var last *apierr.Error
	for mi, model := range opts.Models {
		for attempt := 0; attempt < opts.MaxRetriesPerModel; attempt++ {
			if opts.OnStatus != nil {
				st := Status{
					RetryAttempt: attempt + 1,
					MaxRetries:   opts.MaxRetriesPerModel,
					ModelIndex:   mi,
					TotalModels:  len(opts.Models),
					CurrentModel: model,
				}
				if last != nil {
					st.LastError = last.Message
				}
				opts.OnStatus(st)
			}

			res, err := detect(ctx, model)
			if err == nil {
				if res.ModelUsed == "" {
					res.ModelUsed = model
				}
				return res, nil
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("pii detection: %w", ctx.Err())
			}

			last = asAPIError(err)
			if last.Category == apierr.AuthError {
				return nil, last
			}
			if !last.Retryable {
				break
			}
			if attempt < opts.MaxRetriesPerModel-1 {
				if err := opts.Sleep(ctx, opts.RetryDelay); err != nil {
					return nil, fmt.Errorf("pii detection: %w", err)
				}
			}
		}
		if mi < len(opts.Models)-1 {
			slog.Warn("piidetect: model failed, trying next",
				"model", model,
				"next", opts.Models[mi+1],
				"category", last.Category,
			)
		}
	}
	return nil, last.Exhaust()
}

// asAPIError treats anything that is not already categorized as a network
// failure.
func asAPIError(err error) *apierr.Error {
	if e, ok := apierr.As(err); ok {
		return e
	}
	return apierr.New(0, err.Error(), true, nil)
}
