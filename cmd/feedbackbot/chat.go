package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gonkalabs/feedbackbot-go/internal/apierr"
	"github.com/gonkalabs/feedbackbot-go/internal/catalog"
	"github.com/gonkalabs/feedbackbot-go/internal/conversation"
	"github.com/gonkalabs/feedbackbot-go/internal/docparse"
	"github.com/gonkalabs/feedbackbot-go/internal/onboarding"
	"github.com/gonkalabs/feedbackbot-go/internal/retry"
	"github.com/gonkalabs/feedbackbot-go/internal/store"
)

const chatHelp = `Kommandoer:
  /retry          send den fejlede besked igen
  /models         vis modeller at skifte til
  /switch <id>    skift model (og send den fejlede besked igen)
  /attach <fil>   vedhæft en fil til næste besked
  /cost           vis samlet pris
  /balance        vis kontoens saldo
  /clear          slet samtalen og start forfra
  /logout         log ud
  /quit           afslut`

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Get feedback on an assignment in the terminal",
		Long: `Start or resume a feedback conversation.

The first run walks through the onboarding questions. Work that is sent to a
commercial model is checked for personal information first.`,
		Args: cobra.NoArgs,
		RunE: runChat,
	}
	cmd.Flags().Bool("new", false, "Forget the saved conversation and start over")
	cmd.Flags().Bool("edit", false, "Edit the onboarding answers before continuing")
	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	fresh, err := cmd.Flags().GetBool("new")
	if err != nil {
		return err
	}
	edit, err := cmd.Flags().GetBool("edit")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	env, err := openClient(ctx, newPrompter(cmd.InOrStdin(), out))
	if err != nil {
		return err
	}
	defer env.Close()

	cat, err := env.loadCatalog(ctx)
	if err != nil {
		return err
	}
	env.cat = cat

	if fresh {
		env.reset(ctx)
	}
	ob := env.store.LoadOnboarding(ctx)
	if !ob.Completed || ob.Context == nil || edit {
		octx, err := env.onboard(ctx, cat, ob.Context)
		if err != nil {
			return err
		}
		ob = store.OnboardingState{Completed: true, Context: octx}
		if err := env.store.SaveOnboarding(ctx, ob); err != nil {
			slog.Warn("chat: save onboarding failed", "err", err)
		}
	}

	sess := conversation.New(conversation.Options{
		Catalog:  cat,
		Sender:   env.client,
		Store:    env.store,
		Context:  ob.Context,
		Messages: env.store.LoadMessages(ctx),
		Costs:    env.store.LoadCosts(ctx),
		OnChunk:  func(s string) { fmt.Fprint(out, s) },
		OnRetry: func(st retry.State) {
			fmt.Fprintf(out, "\n[forbinder igen %d/%d om %s]\n", st.Attempt, st.Max, st.Delay)
		},
	})

	if msgs := sess.Messages(); len(msgs) == 0 {
		env.send(ctx, sess, conversation.Greeting)
	} else {
		fmt.Fprintf(out, "Fortsætter samtale med %d beskeder (%s).\n", len(msgs), sess.Model())
	}
	fmt.Fprintln(out, "Skriv /help for kommandoer.")

	for {
		line, err := env.prompt.line("\n> ")
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			env.send(ctx, sess, line)
			continue
		}
		quit, err := env.command(ctx, sess, line)
		if err != nil {
			fmt.Fprintln(out, "Fejl:", err)
		}
		if quit {
			return nil
		}
	}
}

// loadCatalog builds the client's view of the models from the server's list.
func (e *clientEnv) loadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	ml, err := e.client.Models(ctx)
	if err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}
	cat := catalog.Default()
	cat.Models = ml.Models
	cat.PIIModels = ml.PIIModels
	return cat, nil
}

func (e *clientEnv) reset(ctx context.Context) {
	err := errors.Join(
		e.store.ClearMessages(ctx),
		e.store.ClearCosts(ctx),
		e.store.ClearOnboarding(ctx),
		e.store.ClearGDPR(ctx),
	)
	if err != nil {
		slog.Warn("chat: reset failed", "err", err)
	}
}

func (e *clientEnv) send(ctx context.Context, sess *conversation.Session, text string) {
	_, err := sess.Send(ctx, text)
	e.afterSend(sess, err)
}

func (e *clientEnv) afterSend(sess *conversation.Session, err error) {
	out := e.prompt.out
	if err == nil {
		msgs := sess.Messages()
		if c, ok := sess.Cost(len(msgs) - 1); ok {
			fmt.Fprintf(out, "\n[%s]", catalog.FormatDKK(c))
		}
		fmt.Fprintln(out)
		return
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(out, "\nAfbrudt.")
		return
	}
	fmt.Fprintln(out, "\nFejl:", err)
	if !sess.HasFailed() {
		return
	}
	if sess.RetriesExhausted() || sess.LastError().Category == apierr.ModelUnavailable {
		fb := sess.FallbackModels()
		fmt.Fprintf(out, "Modellen svarer ikke. Prøv en anden med /switch %s (se /models).\n", fb.RecommendedID)
	} else {
		fmt.Fprintln(out, "Prøv igen med /retry.")
	}
}

// command runs a slash command and reports whether to quit.
func (e *clientEnv) command(ctx context.Context, sess *conversation.Session, line string) (bool, error) {
	out := e.prompt.out
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/help":
		fmt.Fprintln(out, chatHelp)
	case "/quit", "/exit":
		return true, nil
	case "/retry":
		_, err := sess.RetryFailed(ctx)
		if errors.Is(err, conversation.ErrNothingToRetry) || errors.Is(err, conversation.ErrRetryCooldown) {
			return false, err
		}
		e.afterSend(sess, err)
	case "/models":
		fb := sess.FallbackModels()
		for _, m := range fb.Models {
			mark := " "
			if m.ID == fb.RecommendedID {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %-32s %s (%s)\n", mark, m.ID, m.Name, m.PricingTier)
		}
	case "/switch":
		if arg == "" {
			return false, errors.New("brug: /switch <model-id>")
		}
		if err := sess.CanSwitch(arg); err != nil {
			return false, err
		}
		if err := e.ensureEnhanced(ctx, arg); err != nil {
			return false, err
		}
		reply, err := sess.SwitchModel(ctx, arg)
		if err == nil && reply == "" {
			fmt.Fprintln(out, "Model skiftet til", arg)
			return false, nil
		}
		e.afterSend(sess, err)
	case "/attach":
		text, err := docparse.File(arg)
		if err != nil {
			return false, err
		}
		sess.Attach(&onboarding.AttachedFile{Name: arg, Content: text})
		fmt.Fprintf(out, "Vedhæftet %s (%d tegn).\n", arg, len(text))
	case "/cost":
		fmt.Fprintln(out, "Samlet pris:", sess.FormatTotal())
	case "/balance":
		bal, err := e.client.Balance(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Saldo: %s (%s)\n", catalog.FormatUSD(bal), catalog.FormatDKK(catalog.ToDKK(bal)))
	case "/clear":
		if err := sess.Clear(ctx); err != nil {
			return false, err
		}
		e.reset(ctx)
		fmt.Fprintln(out, "Samtalen er slettet. Start igen med: feedbackbot chat")
		return true, nil
	case "/logout":
		if err := e.client.Logout(ctx); err != nil {
			return false, err
		}
		if err := e.store.ClearSession(ctx); err != nil {
			slog.Warn("chat: clear session failed", "err", err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("ukendt kommando %s", name)
	}
	return false, nil
}

// ensureEnhanced asks for the enhanced-quality password before a commercial
// model is used, when the server requires one.
func (e *clientEnv) ensureEnhanced(ctx context.Context, id string) error {
	m, ok := e.cat.ByID(id)
	if !ok {
		return fmt.Errorf("ukendt model %s", id)
	}
	if m.TEE() {
		return nil
	}
	st, err := e.client.CheckEnhanced(ctx)
	if err != nil {
		return err
	}
	if !st.Configured || st.Authenticated {
		return nil
	}
	pw, err := e.prompt.password("Adgangskode til udvidet kvalitet: ")
	if err != nil {
		return err
	}
	return e.client.AuthenticateEnhanced(ctx, pw)
}
