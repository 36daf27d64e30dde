package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gonkalabs/feedbackbot-go/internal/piidetect"
)

// ReviewState is a state of the PII review.
type ReviewState string

const (
	StateDetecting     ReviewState = "detecting"
	StateReview        ReviewState = "review"
	StateDecline       ReviewState = "decline"
	StateVerification  ReviewState = "verification"
	StateContextInput  ReviewState = "context-input"
	StateSelectiveKeep ReviewState = "selective-keep"
	StateWarning       ReviewState = "warning"
	StateError         ReviewState = "error"
	StateComplete      ReviewState = "complete"
)

// DeclineReason is why the student rejected the suggested anonymization.
type DeclineReason string

const (
	ReasonAlreadyRemoved DeclineReason = "already_removed"
	ReasonFalsePositive  DeclineReason = "false_positive"
	ReasonSelectiveKeep  DeclineReason = "selective_keep"
)

// ErrInvalidTransition is returned when an event does not apply to the
// current state. The state is left unchanged.
var ErrInvalidTransition = errors.New("onboarding: invalid transition")

// AnonymizationState is the outcome of a finished review.
type AnonymizationState struct {
	OriginalText   string              `json:"originalText"`
	AnonymizedText string              `json:"anonymizedText"`
	Applied        []piidetect.Finding `json:"appliedReplacements"`
	Skipped        []piidetect.Finding `json:"skippedItems"`
}

// Event drives a Review.
type Event interface{ reviewEvent() }

type (
	// DetectionSucceeded delivers a detection result.
	DetectionSucceeded struct{ Result *piidetect.Result }
	// DetectionFailed reports that every detection model failed.
	DetectionFailed struct{ Err error }
	// AcceptAll applies every finding.
	AcceptAll struct{}
	// Decline opens the decline menu.
	Decline struct{}
	// ChooseReason picks a path out of the decline menu.
	ChooseReason struct{ Reason DeclineReason }
	// Cancel returns to the previous screen.
	Cancel struct{}
	// SubmitContext re-runs detection with the student's explanation.
	SubmitContext struct{ Note string }
	// ToggleKeep marks a finding to be kept verbatim or anonymized.
	ToggleKeep struct {
		ID   string
		Kept bool
	}
	// Confirm accepts the current selection, or the warning about kept items.
	Confirm struct{}
	// Retry restarts detection after an error.
	Retry struct{}
)

func (DetectionSucceeded) reviewEvent() {}
func (DetectionFailed) reviewEvent()    {}
func (AcceptAll) reviewEvent()          {}
func (Decline) reviewEvent()            {}
func (ChooseReason) reviewEvent()       {}
func (Cancel) reviewEvent()             {}
func (SubmitContext) reviewEvent()      {}
func (ToggleKeep) reviewEvent()         {}
func (Confirm) reviewEvent()            {}
func (Retry) reviewEvent()              {}

// Review is the PII review of one text. Detection itself runs outside: when
// NeedsDetection reports true the owner runs DetectionRequest and feeds back
// DetectionSucceeded or DetectionFailed.
type Review struct {
	text     string
	state    ReviewState
	result   *piidetect.Result
	findings []piidetect.Finding
	note     string
	err      error
	outcome  *AnonymizationState
}

// NewReview starts a review of text in StateDetecting.
func NewReview(text string) *Review {
	return &Review{text: text, state: StateDetecting}
}

func (r *Review) State() ReviewState { return r.state }

// Findings returns the current findings with their keep flags.
func (r *Review) Findings() []piidetect.Finding {
	return append([]piidetect.Finding(nil), r.findings...)
}

// Result is the last detection result, nil before the first one.
func (r *Review) Result() *piidetect.Result { return r.result }

// Err is the detection error shown in StateError.
func (r *Review) Err() error { return r.err }

// Outcome is set once the review is complete.
func (r *Review) Outcome() *AnonymizationState { return r.outcome }

// NeedsDetection reports whether a detection call is due.
func (r *Review) NeedsDetection() bool {
	return r.state == StateDetecting || r.state == StateVerification
}

// DetectionRequest is the request for the due detection. The student's note
// is only sent when re-checking after a false-positive complaint.
func (r *Review) DetectionRequest() piidetect.Request {
	req := piidetect.Request{Text: r.text}
	if r.state == StateVerification {
		req.Context = r.note
	}
	return req
}

// Detect runs the due detection with fn and feeds its outcome back.
func (r *Review) Detect(ctx context.Context, fn func(context.Context, piidetect.Request) (*piidetect.Result, error)) error {
	if !r.NeedsDetection() {
		return ErrInvalidTransition
	}
	res, err := fn(ctx, r.DetectionRequest())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return r.Handle(DetectionFailed{Err: err})
	}
	return r.Handle(DetectionSucceeded{Result: res})
}

// Handle applies ev to the review.
func (r *Review) Handle(ev Event) error {
	switch e := ev.(type) {
	case DetectionSucceeded:
		if !r.NeedsDetection() || e.Result == nil {
			break
		}
		r.result = e.Result
		r.err = nil
		r.findings = make([]piidetect.Finding, len(e.Result.Findings))
		for i, f := range e.Result.Findings {
			f.Kept = false
			r.findings[i] = f
		}
		if e.Result.IsClean {
			r.complete(e.Result.AnonymizedText)
		} else {
			r.state = StateReview
		}
		return nil

	case DetectionFailed:
		if !r.NeedsDetection() {
			break
		}
		r.err = e.Err
		r.state = StateError
		return nil

	case Retry:
		if r.state != StateError {
			break
		}
		r.err = nil
		r.state = StateDetecting
		return nil

	case AcceptAll:
		if r.state != StateReview {
			break
		}
		for i := range r.findings {
			r.findings[i].Kept = false
		}
		r.complete(r.result.AnonymizedText)
		return nil

	case Decline:
		if r.state != StateReview {
			break
		}
		r.state = StateDecline
		return nil

	case ChooseReason:
		if r.state != StateDecline {
			break
		}
		switch e.Reason {
		case ReasonAlreadyRemoved:
			r.note = ""
			r.state = StateVerification
		case ReasonFalsePositive:
			r.state = StateContextInput
		case ReasonSelectiveKeep:
			r.state = StateSelectiveKeep
		default:
			return fmt.Errorf("%w: unknown decline reason %q", ErrInvalidTransition, e.Reason)
		}
		return nil

	case SubmitContext:
		if r.state != StateContextInput || strings.TrimSpace(e.Note) == "" {
			break
		}
		r.note = strings.TrimSpace(e.Note)
		r.state = StateVerification
		return nil

	case ToggleKeep:
		if r.state != StateSelectiveKeep {
			break
		}
		for i := range r.findings {
			if r.findings[i].ID == e.ID {
				r.findings[i].Kept = e.Kept
				return nil
			}
		}
		return fmt.Errorf("%w: no finding %q", ErrInvalidTransition, e.ID)

	case Confirm:
		switch r.state {
		case StateSelectiveKeep:
			if r.keptCount() > 0 {
				r.state = StateWarning
			} else {
				r.complete(r.result.AnonymizedText)
			}
			return nil
		case StateWarning:
			r.complete(piidetect.ApplyAnonymizations(r.text, r.findings))
			return nil
		}

	case Cancel:
		switch r.state {
		case StateDecline, StateContextInput, StateSelectiveKeep:
			r.state = StateReview
			return nil
		case StateWarning:
			r.state = StateSelectiveKeep
			return nil
		}
	}
	return fmt.Errorf("%w: %T in state %s", ErrInvalidTransition, ev, r.state)
}

func (r *Review) keptCount() int {
	n := 0
	for _, f := range r.findings {
		if f.Kept {
			n++
		}
	}
	return n
}

func (r *Review) complete(anonymized string) {
	st := &AnonymizationState{
		OriginalText:   r.text,
		AnonymizedText: anonymized,
		Applied:        []piidetect.Finding{},
		Skipped:        []piidetect.Finding{},
	}
	for _, f := range r.findings {
		if f.Kept {
			st.Skipped = append(st.Skipped, f)
		} else {
			st.Applied = append(st.Applied, f)
		}
	}
	r.outcome = st
	r.state = StateComplete
}
