// Package conversation holds the client-side state of one feedback chat.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gonkalabs/feedbackbot-go/internal/apierr"
	"github.com/gonkalabs/feedbackbot-go/internal/catalog"
	"github.com/gonkalabs/feedbackbot-go/internal/chatclient"
	"github.com/gonkalabs/feedbackbot-go/internal/onboarding"
	"github.com/gonkalabs/feedbackbot-go/internal/retry"
	"github.com/gonkalabs/feedbackbot-go/internal/sse"
)

const (
	// Greeting is sent on the student's behalf right after onboarding.
	Greeting = "Hej! Giv mig venligst feedback på min opgave"

	// RetryCooldown spaces manual retries.
	RetryCooldown = 5 * time.Second

	errorPrefix = "Fejl:"
	separator   = "\n\n---\n\n"
)

var (
	ErrSendInFlight   = errors.New("conversation: a message is already being sent")
	ErrNothingToRetry = errors.New("conversation: no failed message to retry")
	ErrRetryCooldown  = errors.New("conversation: retry is cooling down")
	ErrEmptyMessage   = errors.New("conversation: message is empty")
	ErrPathChange     = errors.New("conversation: cannot switch from a TEE model to a commercial model")
)

// Sender streams one reply.
type Sender interface {
	Send(ctx context.Context, opts chatclient.SendOptions) (*chatclient.Result, error)
}

// Persister saves the conversation. Failures are logged, never returned.
type Persister interface {
	SaveMessages(ctx context.Context, msgs []chatclient.Message) error
	SaveCosts(ctx context.Context, costs map[int]float64) error
	ClearMessages(ctx context.Context) error
	ClearCosts(ctx context.Context) error
}

// Options configures a Session.
type Options struct {
	Catalog *catalog.Catalog
	Sender  Sender
	Store   Persister // optional

	// Context is prepended to the first message when set.
	Context *onboarding.Context
	// Model overrides Context.Model.
	Model string

	// Restored state.
	Messages []chatclient.Message
	Costs    map[int]float64

	OnChunk func(text string)
	OnRetry func(st retry.State)

	Now func() time.Time
}

// Session is a conversation with the feedback bot. Sends are serialized:
// a Send while another is running fails with ErrSendInFlight.
type Session struct {
	cat    *catalog.Catalog
	sender Sender
	store  Persister
	ctx    *onboarding.Context

	onChunk func(string)
	onRetry func(retry.State)
	now     func() time.Time
	limiter *rate.Limiter

	mu        sync.Mutex
	model     string
	messages  []chatclient.Message
	costs     map[int]float64
	inFlight  bool
	streaming strings.Builder
	progress  *retry.State
	failed    *chatclient.Message
	lastErr   *apierr.Error
	exhausted bool
	attached  *onboarding.AttachedFile
}

// New creates a Session.
func New(opts Options) *Session {
	s := &Session{
		cat:      opts.Catalog,
		sender:   opts.Sender,
		store:    opts.Store,
		ctx:      opts.Context,
		onChunk:  opts.OnChunk,
		onRetry:  opts.OnRetry,
		now:      opts.Now,
		limiter:  rate.NewLimiter(rate.Every(RetryCooldown), 1),
		model:    opts.Model,
		messages: append([]chatclient.Message(nil), opts.Messages...),
		costs:    make(map[int]float64, len(opts.Costs)),
	}
	if s.now == nil {
		s.now = time.Now
	}
	for i, c := range opts.Costs {
		s.costs[i] = c
	}
	if s.model == "" && s.ctx != nil {
		s.model = s.ctx.Model
	}
	if s.model == "" {
		s.model = catalog.DefaultModelID
	}
	return s
}

// Send sends content as the student's next message and waits for the reply.
// A failed reply is recorded in the conversation as an error message and
// can be retried with RetryFailed or SwitchModel.
func (s *Session) Send(ctx context.Context, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyMessage
	}
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return "", ErrSendInFlight
	}
	full := content
	if len(s.messages) == 0 && s.ctx != nil {
		full = FormatContext(s.ctx) + separator + full
	}
	if f := s.attached; f != nil {
		full = fmt.Sprintf("[Vedhæftet fil: %s]\n\n%s%s%s", f.Name, f.Content, separator, full)
		s.attached = nil
	}
	return s.sendLocked(ctx, full)
}

// sendLocked appends the user message, streams the reply and records the
// outcome. It is entered with s.mu held and s.inFlight false; it releases
// the lock.
func (s *Session) sendLocked(ctx context.Context, content string) (string, error) {
	user := chatclient.Message{Role: "user", Content: content}
	s.messages = append(s.messages, user)
	history := append([]chatclient.Message(nil), s.messages...)
	model := s.model
	s.inFlight = true
	s.streaming.Reset()
	s.progress = nil
	s.mu.Unlock()
	s.persist(ctx, false)

	var subject string
	if s.ctx != nil {
		subject = s.ctx.Subject
	}
	var usage *sse.Usage
	res, err := s.sender.Send(ctx, chatclient.SendOptions{
		Messages: history,
		Model:    model,
		Subject:  subject,
		OnChunk: func(text string) {
			s.mu.Lock()
			s.streaming.WriteString(text)
			s.mu.Unlock()
			if s.onChunk != nil {
				s.onChunk(text)
			}
		},
		OnRetry: func(st retry.State) {
			s.mu.Lock()
			s.progress = &st
			s.mu.Unlock()
			if s.onRetry != nil {
				s.onRetry(st)
			}
		},
		OnUsage: func(u sse.Usage) { usage = &u },
	})

	s.mu.Lock()
	s.inFlight = false
	s.streaming.Reset()
	s.progress = nil
	if err != nil {
		e, ok := apierr.As(err)
		if !ok {
			e = apierr.New(0, err.Error(), false, nil)
		}
		s.failed = &user
		s.lastErr = e
		s.exhausted = e.Exhausted
		s.messages = append(s.messages, chatclient.Message{
			Role:    "assistant",
			Content: errorPrefix + " " + e.Message,
		})
		s.mu.Unlock()
		s.persist(ctx, false)
		slog.Warn("conversation: send failed", "model", model, "category", e.Category, "exhausted", e.Exhausted)
		return "", err
	}

	s.failed = nil
	s.lastErr = nil
	s.exhausted = false
	s.messages = append(s.messages, chatclient.Message{Role: "assistant", Content: res.Content, ModelID: model})
	if usage != nil {
		usd := s.cat.CostUSD(model, usage.PromptTokens, usage.CompletionTokens)
		s.costs[len(s.messages)-1] = catalog.ToDKK(usd)
	}
	s.mu.Unlock()
	s.persist(ctx, usage != nil)
	return res.Content, nil
}

// RetryFailed sends the failed message again. Retries are limited to one
// per RetryCooldown.
func (s *Session) RetryFailed(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return "", ErrSendInFlight
	}
	if s.failed == nil {
		s.mu.Unlock()
		return "", ErrNothingToRetry
	}
	if !s.limiter.AllowN(s.now(), 1) {
		s.mu.Unlock()
		return "", ErrRetryCooldown
	}
	return s.sendLocked(ctx, s.dropFailedLocked())
}

// FallbackModels lists the models the student can switch to after the
// current one failed.
func (s *Session) FallbackModels() catalog.Fallback {
	s.mu.Lock()
	defer s.mu.Unlock()
	var subject string
	if s.ctx != nil {
		subject = s.ctx.Subject
	}
	return s.cat.FallbackModels(s.model, subject)
}

// CanSwitch reports whether the conversation may move to modelID. A
// conversation held on a TEE model cannot move to a commercial one: its
// history was never anonymized.
func (s *Session) CanSwitch(modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canSwitchLocked(modelID)
}

func (s *Session) canSwitchLocked(modelID string) error {
	target, ok := s.cat.ByID(modelID)
	if !ok {
		return fmt.Errorf("conversation: unknown model %q", modelID)
	}
	if cur, ok := s.cat.ByID(s.model); !target.TEE() && (!ok || cur.TEE()) {
		return fmt.Errorf("%w: %s", ErrPathChange, modelID)
	}
	return nil
}

// SwitchModel changes the chat model and resends the failed message with it.
func (s *Session) SwitchModel(ctx context.Context, modelID string) (string, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return "", ErrSendInFlight
	}
	if err := s.canSwitchLocked(modelID); err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.model = modelID
	slog.Info("conversation: switched model", "model", modelID)
	if s.failed == nil {
		s.mu.Unlock()
		return "", nil
	}
	return s.sendLocked(ctx, s.dropFailedLocked())
}

// dropFailedLocked removes the failed exchange from the history and returns
// the user's content.
func (s *Session) dropFailedLocked() string {
	content := s.failed.Content
	if n := len(s.messages); n >= 2 && s.messages[n-1].Role == "assistant" && s.messages[n-2].Role == "user" {
		s.messages = s.messages[:n-2]
	}
	s.failed = nil
	s.lastErr = nil
	s.exhausted = false
	return content
}

// Clear forgets the conversation.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return ErrSendInFlight
	}
	s.messages = nil
	s.costs = make(map[int]float64)
	s.failed = nil
	s.lastErr = nil
	s.exhausted = false
	s.attached = nil
	s.mu.Unlock()

	if s.store != nil {
		if err := errors.Join(s.store.ClearMessages(ctx), s.store.ClearCosts(ctx)); err != nil {
			slog.Warn("conversation: clear store failed", "err", err)
		}
	}
	return nil
}

// Attach sets a file to prepend to the next message.
func (s *Session) Attach(f *onboarding.AttachedFile) {
	s.mu.Lock()
	s.attached = f
	s.mu.Unlock()
}

func (s *Session) persist(ctx context.Context, costs bool) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	msgs := append([]chatclient.Message(nil), s.messages...)
	var c map[int]float64
	if costs {
		c = make(map[int]float64, len(s.costs))
		for k, v := range s.costs {
			c[k] = v
		}
	}
	s.mu.Unlock()

	// A cancelled send still gets its history saved.
	ctx = context.WithoutCancel(ctx)
	if err := s.store.SaveMessages(ctx, msgs); err != nil {
		slog.Warn("conversation: save messages failed", "err", err)
	}
	if c != nil {
		if err := s.store.SaveCosts(ctx, c); err != nil {
			slog.Warn("conversation: save costs failed", "err", err)
		}
	}
}
