package conversation

import (
	"fmt"
	"strings"

	"github.com/gonkalabs/feedbackbot-go/internal/apierr"
	"github.com/gonkalabs/feedbackbot-go/internal/catalog"
	"github.com/gonkalabs/feedbackbot-go/internal/chatclient"
	"github.com/gonkalabs/feedbackbot-go/internal/onboarding"
	"github.com/gonkalabs/feedbackbot-go/internal/retry"
)

// FormatContext renders the onboarding answers as the preamble of the first
// message.
func FormatContext(c *onboarding.Context) string {
	var parts []string
	if c.Subject != "" || c.Grade != "" {
		s := "**Fag:** " + c.Subject
		if c.Grade != "" {
			s += ", " + c.Grade
		}
		parts = append(parts, s)
	}
	if c.Assignment != "" {
		parts = append(parts, "**Opgave:** "+c.Assignment)
	}
	if c.File != nil && c.File.Content != "" {
		parts = append(parts, fmt.Sprintf("[Vedhæftet fil: %s]\n\n%s", c.File.Name, c.File.Content))
	}
	if c.StudentWork != "" {
		parts = append(parts, "**Mit arbejde indtil nu:**\n"+c.StudentWork)
	}
	grade := "Nej"
	if c.WantsGrade {
		grade = "Ja"
	}
	parts = append(parts, "**Vejledende karakter:** "+grade)
	return strings.Join(parts, "\n\n")
}

// Messages returns a copy of the history.
func (s *Session) Messages() []chatclient.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chatclient.Message(nil), s.messages...)
}

// Model is the current chat model.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// InFlight reports whether a send is running.
func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Streaming is the reply text received so far by the running send.
func (s *Session) Streaming() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming.String()
}

// RetryProgress is the pending retry of the running send, if any.
func (s *Session) RetryProgress() *retry.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress == nil {
		return nil
	}
	st := *s.progress
	return &st
}

// HasFailed reports whether the last send failed and can be retried.
func (s *Session) HasFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed != nil
}

// LastError is the error of the failed send.
func (s *Session) LastError() *apierr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// RetriesExhausted reports that the failed send used up every automatic
// retry. Offer another model rather than a plain retry then.
func (s *Session) RetriesExhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exhausted
}

// Cost returns the DKK cost of the assistant message at index i.
func (s *Session) Cost(i int) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.costs[i]
	return c, ok
}

// TotalCost sums every recorded cost in DKK.
func (s *Session) TotalCost() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum float64
	for _, c := range s.costs {
		sum += c
	}
	return sum
}

// FormatTotal is TotalCost for display.
func (s *Session) FormatTotal() string { return catalog.FormatDKK(s.TotalCost()) }
