package onboarding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/feedbackbot-go/internal/piidetect"
)

const reviewText = "Jeg heder Anna Jensen fra 8.B"

func dirtyResult() *piidetect.Result {
	findings := []piidetect.Finding{
		{ID: "pii-1", Original: "Anna Jensen", Replacement: "[ELEV]", Category: piidetect.CategoryName},
		{ID: "pii-2", Original: "8.B", Replacement: "[KLASSE]", Category: piidetect.CategoryInstitution},
	}
	return &piidetect.Result{
		Findings:       findings,
		AnonymizedText: piidetect.ApplyAnonymizations(reviewText, findings),
	}
}

func cleanResult() *piidetect.Result {
	return &piidetect.Result{Findings: []piidetect.Finding{}, AnonymizedText: reviewText, IsClean: true}
}

func mustHandle(t *testing.T, r *Review, evs ...Event) {
	t.Helper()
	for _, ev := range evs {
		require.NoError(t, r.Handle(ev), "%T", ev)
	}
}

func TestReview_CleanCompletesImmediately(t *testing.T) {
	r := NewReview(reviewText)
	assert.True(t, r.NeedsDetection())
	mustHandle(t, r, DetectionSucceeded{Result: cleanResult()})

	assert.Equal(t, StateComplete, r.State())
	out := r.Outcome()
	require.NotNil(t, out)
	assert.Equal(t, reviewText, out.AnonymizedText)
	assert.Empty(t, out.Applied)
	assert.Empty(t, out.Skipped)
}

func TestReview_AcceptAll(t *testing.T) {
	r := NewReview(reviewText)
	mustHandle(t, r, DetectionSucceeded{Result: dirtyResult()})
	assert.Equal(t, StateReview, r.State())
	assert.False(t, r.NeedsDetection())

	mustHandle(t, r, AcceptAll{})
	out := r.Outcome()
	require.NotNil(t, out)
	assert.Equal(t, "Jeg heder [ELEV] fra [KLASSE]", out.AnonymizedText)
	assert.Equal(t, reviewText, out.OriginalText)
	assert.Len(t, out.Applied, 2)
}

func TestReview_AlreadyRemoved(t *testing.T) {
	r := NewReview(reviewText)
	mustHandle(t, r, DetectionSucceeded{Result: dirtyResult()}, Decline{}, ChooseReason{Reason: ReasonAlreadyRemoved})

	assert.Equal(t, StateVerification, r.State())
	assert.Equal(t, piidetect.Request{Text: reviewText}, r.DetectionRequest())

	mustHandle(t, r, DetectionSucceeded{Result: cleanResult()})
	assert.Equal(t, StateComplete, r.State())
}

func TestReview_FalsePositive(t *testing.T) {
	r := NewReview(reviewText)
	mustHandle(t, r, DetectionSucceeded{Result: dirtyResult()}, Decline{}, ChooseReason{Reason: ReasonFalsePositive})
	assert.Equal(t, StateContextInput, r.State())

	assert.ErrorIs(t, r.Handle(SubmitContext{Note: "   "}), ErrInvalidTransition)
	mustHandle(t, r, SubmitContext{Note: "Anna Jensen er en romanfigur"})
	assert.Equal(t, StateVerification, r.State())

	var seen piidetect.Request
	err := r.Detect(context.Background(), func(_ context.Context, req piidetect.Request) (*piidetect.Result, error) {
		seen = req
		return dirtyResult(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Anna Jensen er en romanfigur", seen.Context)
	assert.Equal(t, StateReview, r.State())
}

func TestReview_SelectiveKeep(t *testing.T) {
	r := NewReview(reviewText)
	mustHandle(t, r, DetectionSucceeded{Result: dirtyResult()}, Decline{}, ChooseReason{Reason: ReasonSelectiveKeep})
	assert.Equal(t, StateSelectiveKeep, r.State())

	assert.ErrorIs(t, r.Handle(ToggleKeep{ID: "pii-404", Kept: true}), ErrInvalidTransition)
	mustHandle(t, r, ToggleKeep{ID: "pii-2", Kept: true}, Confirm{})
	assert.Equal(t, StateWarning, r.State())

	mustHandle(t, r, Cancel{})
	assert.Equal(t, StateSelectiveKeep, r.State())
	mustHandle(t, r, Confirm{}, Confirm{})

	out := r.Outcome()
	require.NotNil(t, out)
	assert.Equal(t, "Jeg heder [ELEV] fra 8.B", out.AnonymizedText)
	require.Len(t, out.Skipped, 1)
	assert.Equal(t, "8.B", out.Skipped[0].Original)
	require.Len(t, out.Applied, 1)
}

func TestReview_SelectiveKeepNothingKept(t *testing.T) {
	r := NewReview(reviewText)
	mustHandle(t, r, DetectionSucceeded{Result: dirtyResult()}, Decline{}, ChooseReason{Reason: ReasonSelectiveKeep},
		ToggleKeep{ID: "pii-1", Kept: true}, ToggleKeep{ID: "pii-1", Kept: false}, Confirm{})
	assert.Equal(t, StateComplete, r.State())
	assert.Equal(t, "Jeg heder [ELEV] fra [KLASSE]", r.Outcome().AnonymizedText)
}

func TestReview_ErrorAndRetry(t *testing.T) {
	r := NewReview(reviewText)
	boom := errors.New("all models failed")
	err := r.Detect(context.Background(), func(context.Context, piidetect.Request) (*piidetect.Result, error) {
		return nil, boom
	})
	require.NoError(t, err)
	assert.Equal(t, StateError, r.State())
	assert.ErrorIs(t, r.Err(), boom)

	mustHandle(t, r, Retry{})
	assert.Equal(t, StateDetecting, r.State())
	assert.Nil(t, r.Err())
}

func TestReview_InvalidTransitions(t *testing.T) {
	r := NewReview(reviewText)
	for _, ev := range []Event{AcceptAll{}, Decline{}, Confirm{}, Cancel{}, Retry{}, ChooseReason{Reason: ReasonSelectiveKeep}} {
		assert.ErrorIs(t, r.Handle(ev), ErrInvalidTransition, "%T", ev)
		assert.Equal(t, StateDetecting, r.State())
	}

	mustHandle(t, r, DetectionSucceeded{Result: dirtyResult()}, Decline{})
	assert.ErrorIs(t, r.Handle(ChooseReason{Reason: "bored"}), ErrInvalidTransition)
	assert.Equal(t, StateDecline, r.State())
	mustHandle(t, r, Cancel{})
	assert.Equal(t, StateReview, r.State())

	assert.ErrorIs(t, r.Detect(context.Background(), nil), ErrInvalidTransition)
}
