package store

import (
	"context"
	"errors"

	"github.com/gonkalabs/feedbackbot-go/internal/catalog"
	"github.com/gonkalabs/feedbackbot-go/internal/chatclient"
	"github.com/gonkalabs/feedbackbot-go/internal/onboarding"
)

const (
	KeyMessages      = "feedback-bot-messages"
	KeyOnboarding    = "feedback-bot-onboarding"
	KeyCosts         = "feedback-bot-costs"
	KeyModelPath     = "feedback-bot-model-path"
	KeyAnonymization = "feedback-bot-anonymization"
	KeySession       = "feedback-bot-session"
)

// OnboardingState records whether the wizard was finished and with what.
type OnboardingState struct {
	Completed bool                `json:"completed"`
	Context   *onboarding.Context `json:"context"`
}

// ModelPathState is the student's choice between the TEE and commercial path.
type ModelPathState struct {
	Selected bool          `json:"selected"`
	Path     *catalog.Path `json:"path"`
}

func (s *Store) SaveMessages(ctx context.Context, msgs []chatclient.Message) error {
	return s.Put(ctx, KeyMessages, msgs)
}

// LoadMessages returns the saved conversation, empty when there is none.
func (s *Store) LoadMessages(ctx context.Context) []chatclient.Message {
	var msgs []chatclient.Message
	if !s.load(ctx, KeyMessages, &msgs) || msgs == nil {
		return []chatclient.Message{}
	}
	return msgs
}

func (s *Store) ClearMessages(ctx context.Context) error { return s.Delete(ctx, KeyMessages) }

// SaveCosts stores per-message costs in DKK keyed by message index, as a
// list of [index, cost] pairs.
func (s *Store) SaveCosts(ctx context.Context, costs map[int]float64) error {
	pairs := make([][2]float64, 0, len(costs))
	for i, c := range costs {
		pairs = append(pairs, [2]float64{float64(i), c})
	}
	return s.Put(ctx, KeyCosts, pairs)
}

func (s *Store) LoadCosts(ctx context.Context) map[int]float64 {
	var pairs [][2]float64
	costs := make(map[int]float64)
	if !s.load(ctx, KeyCosts, &pairs) {
		return costs
	}
	for _, p := range pairs {
		costs[int(p[0])] = p[1]
	}
	return costs
}

func (s *Store) ClearCosts(ctx context.Context) error { return s.Delete(ctx, KeyCosts) }

func (s *Store) SaveOnboarding(ctx context.Context, st OnboardingState) error {
	return s.Put(ctx, KeyOnboarding, st)
}

// LoadOnboarding returns the saved state, or an uncompleted one.
func (s *Store) LoadOnboarding(ctx context.Context) OnboardingState {
	var st OnboardingState
	if !s.load(ctx, KeyOnboarding, &st) {
		return OnboardingState{}
	}
	return st
}

func (s *Store) ClearOnboarding(ctx context.Context) error { return s.Delete(ctx, KeyOnboarding) }

func (s *Store) SaveModelPath(ctx context.Context, st ModelPathState) error {
	return s.Put(ctx, KeyModelPath, st)
}

func (s *Store) LoadModelPath(ctx context.Context) ModelPathState {
	var st ModelPathState
	if !s.load(ctx, KeyModelPath, &st) {
		return ModelPathState{}
	}
	return st
}

func (s *Store) SaveAnonymization(ctx context.Context, st onboarding.AnonymizationState) error {
	return s.Put(ctx, KeyAnonymization, st)
}

// LoadAnonymization returns nil when no review was saved.
func (s *Store) LoadAnonymization(ctx context.Context) *onboarding.AnonymizationState {
	var st onboarding.AnonymizationState
	if !s.load(ctx, KeyAnonymization, &st) {
		return nil
	}
	return &st
}

// ClearGDPR forgets the model path and the anonymization review.
func (s *Store) ClearGDPR(ctx context.Context) error {
	return errors.Join(s.Delete(ctx, KeyModelPath), s.Delete(ctx, KeyAnonymization))
}

// SaveSession keeps the server session cookie between runs of the client.
func (s *Store) SaveSession(ctx context.Context, token string) error {
	return s.Put(ctx, KeySession, token)
}

// LoadSession returns the saved session cookie, empty when there is none.
func (s *Store) LoadSession(ctx context.Context) string {
	var token string
	s.load(ctx, KeySession, &token)
	return token
}

func (s *Store) ClearSession(ctx context.Context) error { return s.Delete(ctx, KeySession) }
