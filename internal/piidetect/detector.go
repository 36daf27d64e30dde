package piidetect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gonkalabs/feedbackbot-go/internal/prompts"
	"github.com/gonkalabs/feedbackbot-go/internal/upstream"
)

const (
	// DefaultTimeout bounds one detection call.
	DefaultTimeout = 60 * time.Second

	temperature = 0.1
	maxTokens   = 4000
)

// ErrTimeout is returned when the detection call exceeded the detector's timeout.
var ErrTimeout = errors.New("piidetect: request timed out")

// Completer runs a non-streaming chat completion.
type Completer interface {
	Complete(ctx context.Context, model string, messages []upstream.Message, temperature float32, maxTokens int) (string, error)
}

// Detector runs PII detection against the upstream API.
// It is safe for concurrent use.
type Detector struct {
	c       Completer
	timeout time.Duration
}

// NewDetector creates a Detector. A zero timeout means DefaultTimeout.
func NewDetector(c Completer, timeout time.Duration) *Detector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Detector{c: c, timeout: timeout}
}

// Detect asks model for the PII in req.Text and returns the findings together
// with the text anonymized by them. Blank text is clean without a model call.
func (d *Detector) Detect(ctx context.Context, model string, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return &Result{
			Findings:     []Finding{},
			ContextNotes: "Ingen tekst at analysere",
			IsClean:      true,
			ModelUsed:    model,
		}, nil
	}

	tctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	messages := []upstream.Message{
		{Role: "system", Content: prompts.PIIDetectionSystem()},
		{Role: "user", Content: prompts.PIIDetectionUser(req.Text, req.Context)},
	}
	start := time.Now()
	content, err := d.c.Complete(tctx, model, messages, temperature, maxTokens)
	if err != nil {
		if ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, d.timeout)
		}
		return nil, fmt.Errorf("detect: %w", err)
	}

	findings, notes, err := ParseModelOutput(content)
	if err != nil {
		slog.Warn("piidetect: could not parse model output", "model", model, "content_len", len(content), "err", err)
		return nil, err
	}
	modelFound := len(findings)
	findings = mergeFindings(findings, RuleFindings(req.Text))

	slog.Info("piidetect: detection complete",
		"model", model,
		"text_len", len(req.Text),
		"findings", modelFound,
		"pattern_findings", len(findings)-modelFound,
		"took", time.Since(start).Round(time.Millisecond),
	)
	return &Result{
		Findings:       findings,
		ContextNotes:   notes,
		AnonymizedText: ApplyAnonymizations(req.Text, findings),
		IsClean:        len(findings) == 0,
		ModelUsed:      model,
	}, nil
}
