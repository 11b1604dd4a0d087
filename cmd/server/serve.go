package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fissler.com/cooker-assistant/internal/api"
	"fissler.com/cooker-assistant/internal/config"
	"fissler.com/cooker-assistant/internal/core"
	"fissler.com/cooker-assistant/internal/index"
	"fissler.com/cooker-assistant/internal/store"
)

type serveFlags struct {
	sessionIdleTimeout time.Duration
	evictionInterval   time.Duration
}

func NewServeCommand() *cobra.Command {
	f := serveFlags{
		sessionIdleTimeout: 2 * time.Hour,
		evictionInterval:   5 * time.Minute,
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registration API and the chat assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(config.AppConfig, f)
		},
	}
	cmd.Flags().DurationVar(&f.sessionIdleTimeout, "session-idle-timeout", f.sessionIdleTimeout,
		"End chat sessions that have been idle this long")
	cmd.Flags().DurationVar(&f.evictionInterval, "session-eviction-interval", f.evictionInterval,
		"How often idle chat sessions are checked")
	return cmd
}

func runServe(cfg config.Config, f serveFlags) error {
	if cfg.SessionSecret == "" {
		return errors.New("SESSION_SECRET must be set to serve chat sessions")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbStore, err := store.NewSQLStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()

	provider, closeProvider, err := newModelProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize %s provider: %w", cfg.LLMProvider, err)
	}
	defer closeProvider()

	if _, err := os.Stat(cfg.IndexPath); err != nil {
		log.WithField("index", cfg.IndexPath).Warn("manual index not found, run the ingest command; searches will report the missing index")
	} else if ix, err := index.Open(cfg.IndexPath); err == nil {
		if counts, err := ix.CountByFamily(ctx); err == nil {
			log.WithField("chunks", counts).Info("manual index ready")
		}
		ix.Close()
	}

	registrations := core.NewRegistrationService(dbStore)
	retriever := core.NewManualRetriever(cfg.IndexPath, provider)
	agent := core.NewAgent(provider, core.NewToolbox(retriever, registrations), cfg.MaxToolRounds)
	sessions := core.NewSessionRegistry()
	go sessions.RunEviction(ctx, f.evictionInterval, f.sessionIdleTimeout)

	chatService := core.NewChatService(dbStore, agent, sessions, cfg.TurnTimeout())
	router := api.NewRouter(api.NewAPIHandler(chatService, registrations, cfg.SessionSecret))

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.TurnTimeout() + 30*time.Second, // Turns are cancelled first
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{"addr": serverAddr, "provider": cfg.LLMProvider}).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exited gracefully")
	return nil
}
