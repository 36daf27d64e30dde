package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/feedbackbot-go/internal/apierr"
	"github.com/gonkalabs/feedbackbot-go/internal/catalog"
	"github.com/gonkalabs/feedbackbot-go/internal/chatclient"
	"github.com/gonkalabs/feedbackbot-go/internal/onboarding"
	"github.com/gonkalabs/feedbackbot-go/internal/retry"
	"github.com/gonkalabs/feedbackbot-go/internal/sse"
)

// fakeSender replays scripted replies. A reply with err set fails.
type fakeSender struct {
	mu      sync.Mutex
	replies []fakeReply
	calls   []chatclient.SendOptions
	block   chan struct{}
}

type fakeReply struct {
	chunks []string
	usage  *sse.Usage
	err    error
}

func (f *fakeSender) Send(ctx context.Context, opts chatclient.SendOptions) (*chatclient.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	r := f.replies[0]
	f.replies = f.replies[1:]
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if opts.OnRetry != nil {
		opts.OnRetry(retry.State{Attempt: 1, Max: 5, Phase: retry.PhaseQuick})
	}
	if r.err != nil {
		return nil, r.err
	}
	for _, c := range r.chunks {
		opts.OnChunk(c)
	}
	if r.usage != nil && opts.OnUsage != nil {
		opts.OnUsage(*r.usage)
	}
	return &chatclient.Result{Content: strings.Join(r.chunks, ""), Usage: r.usage, Attempts: 1}, nil
}

type fakeStore struct {
	msgs    []chatclient.Message
	costs   map[int]float64
	saves   int
	fail    bool
	cleared bool
}

func (f *fakeStore) SaveMessages(_ context.Context, m []chatclient.Message) error {
	f.saves++
	if f.fail {
		return errors.New("disk full")
	}
	f.msgs = m
	return nil
}

func (f *fakeStore) SaveCosts(_ context.Context, c map[int]float64) error {
	if f.fail {
		return errors.New("disk full")
	}
	f.costs = c
	return nil
}

func (f *fakeStore) ClearMessages(context.Context) error {
	f.cleared = true
	return nil
}

func (f *fakeStore) ClearCosts(context.Context) error { return nil }

func exhaustedErr() error {
	return apierr.New(503, "API error: 503", true, nil).Exhaust()
}

func TestSend_FirstMessageCarriesContext(t *testing.T) {
	sender := &fakeSender{replies: []fakeReply{
		{chunks: []string{"Godt ", "arbejde"}, usage: &sse.Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000}},
		{chunks: []string{"Ja"}},
	}}
	st := &fakeStore{}
	var streamed []string
	s := New(Options{
		Catalog: catalog.Default(),
		Sender:  sender,
		Store:   st,
		Context: &onboarding.Context{
			Subject: "biologi", Grade: "8. klasse", Assignment: "Fotosyntese",
			StudentWork: "Planter laver sukker", Model: "TEE/glm-4.6",
		},
		OnChunk: func(s string) { streamed = append(streamed, s) },
	})

	reply, err := s.Send(context.Background(), Greeting)
	require.NoError(t, err)
	assert.Equal(t, "Godt arbejde", reply)
	assert.Equal(t, []string{"Godt ", "arbejde"}, streamed)

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "**Fag:** biologi, 8. klasse\n\n**Opgave:** Fotosyntese\n\n**Mit arbejde indtil nu:**\nPlanter laver sukker\n\n**Vejledende karakter:** Nej\n\n---\n\n"+Greeting, msgs[0].Content)
	assert.Equal(t, "TEE/glm-4.6", msgs[1].ModelID)

	assert.Equal(t, "TEE/glm-4.6", sender.calls[0].Model)
	assert.Equal(t, "biologi", sender.calls[0].Subject)

	// glm-4.6: $0.5 + $1.5 for 1M tokens each way.
	cost, ok := s.Cost(1)
	require.True(t, ok)
	assert.InDelta(t, 14.0, cost, 1e-9)
	assert.InDelta(t, 14.0, st.costs[1], 1e-9)

	_, err = s.Send(context.Background(), "Mere?")
	require.NoError(t, err)
	assert.Equal(t, "Mere?", s.Messages()[2].Content, "only the first message carries the context")
	assert.Len(t, sender.calls[1].Messages, 3)
	assert.Equal(t, s.Messages(), st.msgs)
	assert.False(t, s.InFlight())
	assert.Empty(t, s.Streaming())
}

func TestSend_AttachedFile(t *testing.T) {
	sender := &fakeSender{replies: []fakeReply{{chunks: []string{"ok"}}}}
	s := New(Options{Catalog: catalog.Default(), Sender: sender})
	s.Attach(&onboarding.AttachedFile{Name: "noter.txt", Content: "indhold"})

	_, err := s.Send(context.Background(), "Se filen")
	require.NoError(t, err)
	assert.Equal(t, "[Vedhæftet fil: noter.txt]\n\nindhold\n\n---\n\nSe filen", s.Messages()[0].Content)
	assert.Equal(t, catalog.DefaultModelID, s.Model())
}

func TestSend_InFlightGuard(t *testing.T) {
	sender := &fakeSender{
		replies: []fakeReply{{chunks: []string{"a"}}},
		block:   make(chan struct{}),
	}
	s := New(Options{Catalog: catalog.Default(), Sender: sender})

	done := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "første")
		done <- err
	}()
	require.Eventually(t, s.InFlight, time.Second, time.Millisecond)

	_, err := s.Send(context.Background(), "anden")
	assert.ErrorIs(t, err, ErrSendInFlight)
	assert.ErrorIs(t, s.Clear(context.Background()), ErrSendInFlight)

	close(sender.block)
	require.NoError(t, <-done)
	assert.Len(t, s.Messages(), 2)
}

func TestSend_FailureAndRetry(t *testing.T) {
	sender := &fakeSender{replies: []fakeReply{
		{err: apierr.New(502, "API error: 502", true, nil)},
		{chunks: []string{"svar"}},
	}}
	now := time.Unix(1_700_000_000, 0)
	st := &fakeStore{}
	var retries []retry.State
	s := New(Options{
		Catalog: catalog.Default(), Sender: sender, Store: st,
		Now:     func() time.Time { return now },
		OnRetry: func(r retry.State) { retries = append(retries, r) },
	})

	_, err := s.Send(context.Background(), "hjælp")
	require.Error(t, err)
	assert.True(t, s.HasFailed())
	assert.False(t, s.RetriesExhausted())
	assert.Equal(t, apierr.ServerError, s.LastError().Category)
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Fejl: API error: 502", msgs[1].Content)
	assert.Len(t, retries, 1)
	assert.Nil(t, s.RetryProgress())

	reply, err := s.RetryFailed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "svar", reply)
	assert.False(t, s.HasFailed())
	msgs = s.Messages()
	require.Len(t, msgs, 2, "the failed exchange is replaced")
	assert.Equal(t, "hjælp", msgs[0].Content)
	assert.Equal(t, "svar", msgs[1].Content)

	_, err = s.RetryFailed(context.Background())
	assert.ErrorIs(t, err, ErrNothingToRetry)
}

func TestRetryFailed_Cooldown(t *testing.T) {
	boom := apierr.New(503, "API error: 503", true, nil)
	sender := &fakeSender{replies: []fakeReply{{err: boom}, {err: boom}, {err: boom}}}
	now := time.Unix(1_700_000_000, 0)
	s := New(Options{Catalog: catalog.Default(), Sender: sender, Now: func() time.Time { return now }})

	_, _ = s.Send(context.Background(), "x")
	_, err := s.RetryFailed(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRetryCooldown)

	_, err = s.RetryFailed(context.Background())
	assert.ErrorIs(t, err, ErrRetryCooldown)

	now = now.Add(RetryCooldown)
	_, err = s.RetryFailed(context.Background())
	assert.NotErrorIs(t, err, ErrRetryCooldown)
	assert.Len(t, sender.calls, 3)
}

func TestSwitchModel_AfterExhaustion(t *testing.T) {
	sender := &fakeSender{replies: []fakeReply{
		{err: exhaustedErr()},
		{chunks: []string{"fra gpt-oss"}},
	}}
	s := New(Options{Catalog: catalog.Default(), Sender: sender, Context: &onboarding.Context{Subject: "matematik", Model: catalog.DefaultModelID}})

	_, err := s.Send(context.Background(), "hjælp")
	require.Error(t, err)
	assert.True(t, s.RetriesExhausted())

	fb := s.FallbackModels()
	assert.Equal(t, "TEE/gpt-oss-120b", fb.RecommendedID)
	for _, m := range fb.Models {
		assert.NotEqual(t, catalog.DefaultModelID, m.ID)
	}

	_, err = s.SwitchModel(context.Background(), "nope")
	assert.Error(t, err)

	reply, err := s.SwitchModel(context.Background(), fb.RecommendedID)
	require.NoError(t, err)
	assert.Equal(t, "fra gpt-oss", reply)
	assert.Equal(t, "TEE/gpt-oss-120b", sender.calls[1].Model)
	assert.Equal(t, sender.calls[0].Messages, sender.calls[1].Messages, "the same message is resent")
	assert.False(t, s.RetriesExhausted())
}

func TestStoreFailuresAreNotFatal(t *testing.T) {
	sender := &fakeSender{replies: []fakeReply{{chunks: []string{"ok"}, usage: &sse.Usage{PromptTokens: 10}}}}
	st := &fakeStore{fail: true}
	s := New(Options{Catalog: catalog.Default(), Sender: sender, Store: st})

	_, err := s.Send(context.Background(), "hej")
	require.NoError(t, err)
	assert.Equal(t, 2, st.saves)
}

func TestClear(t *testing.T) {
	sender := &fakeSender{replies: []fakeReply{{chunks: []string{"ok"}, usage: &sse.Usage{PromptTokens: 1000, CompletionTokens: 1000}}}}
	st := &fakeStore{}
	s := New(Options{
		Catalog:  catalog.Default(),
		Sender:   sender,
		Store:    st,
		Messages: []chatclient.Message{{Role: "user", Content: "gammel"}, {Role: "assistant", Content: "svar"}},
		Costs:    map[int]float64{1: 0.5},
	})
	assert.InDelta(t, 0.5, s.TotalCost(), 1e-9)
	assert.Equal(t, "0,50 kr", s.FormatTotal())

	_, err := s.Send(context.Background(), "ny")
	require.NoError(t, err)
	assert.Greater(t, s.TotalCost(), 0.5)

	require.NoError(t, s.Clear(context.Background()))
	assert.Empty(t, s.Messages())
	assert.Zero(t, s.TotalCost())
	assert.True(t, st.cleared)
}

func TestSend_Empty(t *testing.T) {
	s := New(Options{Catalog: catalog.Default(), Sender: &fakeSender{}})
	_, err := s.Send(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestFormatContext(t *testing.T) {
	got := FormatContext(&onboarding.Context{
		Subject:    "dansk",
		WantsGrade: true,
		File:       &onboarding.AttachedFile{Name: "essay.docx", Content: "Tekst"},
	})
	assert.Equal(t, "**Fag:** dansk\n\n[Vedhæftet fil: essay.docx]\n\nTekst\n\n**Vejledende karakter:** Ja", got)
	assert.Equal(t, "**Vejledende karakter:** Nej", FormatContext(&onboarding.Context{}))
}

func TestSwitchModel_KeepsTEEConversationOffCommercialModels(t *testing.T) {
	sender := &fakeSender{replies: []fakeReply{
		{err: exhaustedErr()},
		{chunks: []string{"fra glm"}},
	}}
	s := New(Options{
		Catalog: catalog.Default(),
		Sender:  sender,
		Context: &onboarding.Context{Subject: "dansk", StudentWork: "Jeg hedder Anna Jensen", Model: catalog.DefaultModelID},
	})
	_, err := s.Send(context.Background(), Greeting)
	require.Error(t, err)

	assert.ErrorIs(t, s.CanSwitch("openai/gpt-5"), ErrPathChange)
	assert.NoError(t, s.CanSwitch("TEE/glm-4.6"))
	_, err = s.SwitchModel(context.Background(), "openai/gpt-5")
	assert.ErrorIs(t, err, ErrPathChange)
	assert.Equal(t, catalog.DefaultModelID, s.Model())
	assert.True(t, s.HasFailed(), "the failed message is kept for another attempt")
	assert.Len(t, sender.calls, 1)

	reply, err := s.SwitchModel(context.Background(), "TEE/glm-4.6")
	require.NoError(t, err)
	assert.Equal(t, "fra glm", reply)
	assert.Equal(t, "TEE/glm-4.6", sender.calls[1].Model)
}

func TestSwitchModel_CommercialPath(t *testing.T) {
	sender := &fakeSender{}
	s := New(Options{Catalog: catalog.Default(), Sender: sender, Model: "openai/gpt-5"})

	_, err := s.SwitchModel(context.Background(), "google/gemini-2.5-pro")
	require.NoError(t, err)
	assert.Equal(t, "google/gemini-2.5-pro", s.Model())

	_, err = s.SwitchModel(context.Background(), catalog.DefaultModelID)
	require.NoError(t, err)
	assert.Equal(t, catalog.DefaultModelID, s.Model())
	assert.Empty(t, sender.calls)
}

func TestSend_RejectedWhileInFlightKeepsAttachment(t *testing.T) {
	sender := &fakeSender{
		replies: []fakeReply{{chunks: []string{"a"}}, {chunks: []string{"b"}}},
		block:   make(chan struct{}),
	}
	s := New(Options{Catalog: catalog.Default(), Sender: sender})

	done := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "første")
		done <- err
	}()
	require.Eventually(t, s.InFlight, time.Second, time.Millisecond)

	s.Attach(&onboarding.AttachedFile{Name: "noter.txt", Content: "indhold"})
	_, err := s.Send(context.Background(), "anden")
	assert.ErrorIs(t, err, ErrSendInFlight)

	close(sender.block)
	require.NoError(t, <-done)

	_, err = s.Send(context.Background(), "anden")
	require.NoError(t, err)
	assert.Equal(t, "[Vedhæftet fil: noter.txt]\n\nindhold\n\n---\n\nanden", s.Messages()[2].Content)
}
