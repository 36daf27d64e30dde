package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gonkalabs/feedbackbot-go/internal/catalog"
	"github.com/gonkalabs/feedbackbot-go/internal/chatclient"
	"github.com/gonkalabs/feedbackbot-go/internal/config"
	"github.com/gonkalabs/feedbackbot-go/internal/store"
)

// clientEnv is what the client commands share.
type clientEnv struct {
	cfg    *config.ClientCfg
	store  *store.Store
	client *chatclient.Client
	prompt *prompter
	cat    *catalog.Catalog // set once the server's models are loaded
}

func openClient(ctx context.Context, p *prompter) (*clientEnv, error) {
	cfg := config.LoadClient()
	setupLogging(cfg.LogLevel)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	env := &clientEnv{
		cfg:    cfg,
		store:  st,
		client: chatclient.New(cfg.ServerURL, chatclient.WithSessionToken(st.LoadSession(ctx))),
		prompt: p,
	}
	if err := env.login(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return env, nil
}

func (e *clientEnv) Close() error { return e.store.Close() }

// login reuses the saved session when the server still accepts it and asks
// for the password otherwise.
func (e *clientEnv) login(ctx context.Context) error {
	if e.client.SessionToken() != "" {
		ok, err := e.client.VerifySession(ctx)
		if err != nil {
			return fmt.Errorf("cannot reach %s: %w", e.cfg.ServerURL, err)
		}
		if ok {
			slog.Debug("client: resumed session")
			return nil
		}
	}
	if e.cfg.Password != "" {
		if err := e.client.Authenticate(ctx, e.cfg.Password); err != nil {
			return fmt.Errorf("login with FEEDBACKBOT_PASSWORD: %w", err)
		}
		return e.saveSession(ctx)
	}
	for range 3 {
		pw, err := e.prompt.password("Adgangskode: ")
		if err != nil {
			return err
		}
		if err := e.client.Authenticate(ctx, pw); err != nil {
			fmt.Fprintln(e.prompt.out, "Forkert adgangskode:", err)
			continue
		}
		return e.saveSession(ctx)
	}
	return fmt.Errorf("login failed")
}

func (e *clientEnv) saveSession(ctx context.Context) error {
	if err := e.store.SaveSession(ctx, e.client.SessionToken()); err != nil {
		slog.Warn("client: save session failed", "err", err)
	}
	return nil
}
