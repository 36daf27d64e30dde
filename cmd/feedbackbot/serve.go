package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gonkalabs/feedbackbot-go/internal/api"
	"github.com/gonkalabs/feedbackbot-go/internal/catalog"
	"github.com/gonkalabs/feedbackbot-go/internal/config"
	"github.com/gonkalabs/feedbackbot-go/internal/metrics"
	"github.com/gonkalabs/feedbackbot-go/internal/piidetect"
	"github.com/gonkalabs/feedbackbot-go/internal/upstream"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the feedbackbot HTTP API.

Required environment:
  PASSWORD_HASH       hex SHA-256 of the site password (see hash-password)
  SESSION_SECRET      HMAC key for session cookies (see gen-secret)
  NANO_GPT_API_KEY    inference API key`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	setupLogging(cfg.LogLevel)

	cat := catalog.Default()
	if cfg.ModelsFile != "" {
		if cat, err = catalog.Load(cfg.ModelsFile); err != nil {
			return err
		}
		slog.Info("model catalog loaded", "file", cfg.ModelsFile, "models", len(cat.Models))
	}
	if !cat.IsValid(cfg.DefaultModel) {
		slog.Warn("default model is not in the catalog", "model", cfg.DefaultModel)
	}

	client := upstream.New(cfg.APIBaseURL, cfg.APIKey)
	handler := api.New(client, piidetect.NewDetector(client, piidetect.DefaultTimeout), cat, metrics.New(), api.Options{
		PasswordHash:         cfg.PasswordHash,
		EnhancedPasswordHash: cfg.EnhancedPasswordHash,
		SessionSecret:        cfg.SessionSecret,
		DefaultModel:         cfg.DefaultModel,
		AuthRatePerMinute:    cfg.AuthRatePerMinute,
		StaticDir:            cfg.StaticDir,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server",
			"addr", cfg.ListenAddr,
			"upstream", cfg.APIBaseURL,
			"model", cfg.DefaultModel,
			"enhanced", cfg.EnhancedPasswordHash != "",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
