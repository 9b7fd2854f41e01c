package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-router/internal/bus"
	"github.com/capitalize-ai/concierge-router/internal/config"
	"github.com/capitalize-ai/concierge-router/internal/handler"
	"github.com/capitalize-ai/concierge-router/internal/llm"
	natsclient "github.com/capitalize-ai/concierge-router/internal/nats"
	"github.com/capitalize-ai/concierge-router/internal/platform"
	"github.com/capitalize-ai/concierge-router/internal/responder"
	"github.com/capitalize-ai/concierge-router/internal/service"
	"github.com/capitalize-ai/concierge-router/internal/store"
	"github.com/capitalize-ai/concierge-router/pkg/logger"
	"github.com/capitalize-ai/concierge-router/pkg/tracing"
)

const serviceName = "concierge-router"

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, err := logger.ForEnv(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting API server", zap.String("env", cfg.Env))

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.WithoutCancel(ctx), tp)
		}
	}

	st, err := store.Open(ctx, store.Driver(cfg.DatabaseDriver), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	hub := bus.NewHub(log)
	publishers := []service.Publisher{hub}

	natsClient, journal := connectJournal(ctx, cfg, log)
	if natsClient != nil {
		defer natsClient.Close()
	}
	if journal != nil {
		publishers = append(publishers, journal)
	}

	cache := platform.NewClientCache(st, platform.TelegramFactory(cfg.PlatformAPIEndpoint, nil))
	outbound := platform.NewOutbound(cache)

	router := service.NewRouter(st, newResponder(cfg, st, log), outbound, outbound, service.Options{
		ResponderTimeout: cfg.ResponderTimeout,
		HistoryLimit:     cfg.ResponderHistory,
	}, log, publishers...)
	adapter := platform.NewAdapter(router, cache, outbound, cfg.WebhookEventTimeout, log)

	routes := handler.Routes{
		Chat:              handler.NewChatHandler(router, log),
		Conversations:     handler.NewConversationHandler(router, log),
		Messages:          handler.NewMessageHandler(router, log),
		QuickResponses:    handler.NewQuickResponseHandler(service.NewQuickResponseService(st), log),
		Training:          handler.NewTrainingHandler(service.NewTrainingService(st), log),
		Platform:          handler.NewPlatformHandler(service.NewPlatformSettingsService(st, cache, log), log),
		Webhook:           handler.NewWebhookHandler(adapter, log),
		Realtime:          handler.NewRealtimeHandler(hub, st, cfg.JWTSecret, cfg.AllowedOrigins, log),
		Health:            handler.NewHealthHandler(st, natsClient),
		JWTSecret:         cfg.JWTSecret,
		AllowedOrigins:    cfg.AllowedOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Logger:            log,
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      routes.Handler(),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	adapter.Wait()

	log.Info("server stopped")
	return nil
}

// connectJournal returns nil values when NATS is not configured or unreachable.
func connectJournal(ctx context.Context, cfg *config.Config, log *logger.Logger) (*natsclient.Client, *natsclient.Journal) {
	if cfg.NATSURL == "" {
		return nil, nil
	}

	client, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Warn("event journal disabled", zap.Error(err))
		return nil, nil
	}

	journal := natsclient.NewJournal(client, log)
	if err := journal.EnsureStream(ctx); err != nil {
		log.Warn("event journal disabled", zap.Error(err))
		return client, nil
	}
	return client, journal
}

// newResponder returns nil when no generation backend is configured, which
// turns automated replies off.
func newResponder(cfg *config.Config, st *store.SQLStore, log *logger.Logger) service.Responder {
	key := cfg.LLMAPIKey()
	if key == "" {
		log.Warn("no LLM API key configured, automated replies disabled")
		return nil
	}

	client, err := llm.NewClient(llm.Provider(cfg.DefaultLLM), key)
	if err != nil {
		log.Warn("failed to create LLM client, automated replies disabled", zap.Error(err))
		return nil
	}

	catalog, err := responder.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		log.Warn("failed to load catalog, continuing without it", zap.Error(err))
		catalog = nil
	}

	return responder.New(client, st, catalog, responder.Config{
		Instructions: cfg.AssistantInstructions,
		Model:        cfg.LLMModel,
	}, log)
}
