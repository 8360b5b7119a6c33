package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/frontdesk/backend/internal/agent"
	"github.com/frontdesk/backend/internal/calls"
	"github.com/frontdesk/backend/internal/config"
	"github.com/frontdesk/backend/internal/db"
	httpapi "github.com/frontdesk/backend/internal/http"
	"github.com/frontdesk/backend/internal/llm"
	"github.com/frontdesk/backend/internal/notify"
	"github.com/frontdesk/backend/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "frontdesk-backend").Logger()

	ctx := context.Background()
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate db")
	}
	if seeded, err := store.SeedKnowledge(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to seed knowledge")
	} else if seeded > 0 {
		logger.Info().Int("entries", seeded).Msg("seeded knowledge base")
	}

	var completer llm.Completer
	if cfg.AssistantBaseURL == "" {
		completer = llm.MockCompleter{Marker: cfg.EscalationMarker}
		logger.Info().Msg("using mock assistant")
	} else {
		completer = llm.ChatCompleter{
			BaseURL:   cfg.AssistantBaseURL,
			Model:     cfg.AssistantModel,
			APIKey:    cfg.AssistantAPIKey,
			MaxTokens: 300,
		}
	}

	hub := notify.NewHub(logger)
	ag := &agent.Agent{
		Knowledge:           store,
		Requests:            store,
		Completer:           completer,
		Bus:                 hub,
		Notifier:            notify.LogNotifier{Logger: logger},
		History:             agent.NewHistory(),
		Logger:              logger,
		Marker:              cfg.EscalationMarker,
		ModelTimeout:        cfg.ModelTimeout,
		PromptWindowPairs:   cfg.PromptWindowPairs,
		SnapshotWindowPairs: cfg.SnapshotWindowPairs,
	}

	sw := &sweeper.Sweeper{
		Store:         store,
		Logger:        logger,
		Interval:      cfg.SweepInterval,
		MaxPendingAge: cfg.PendingTimeout,
	}
	sw.Start()
	defer sw.Stop()

	router := httpapi.Router(cfg, store, ag, calls.NewRegistry(), hub, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
