package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/npc-engine/internal/config"
	"github.com/jwebster45206/npc-engine/internal/engine"
	"github.com/jwebster45206/npc-engine/internal/gateway"
	"github.com/jwebster45206/npc-engine/internal/handlers"
	"github.com/jwebster45206/npc-engine/internal/logger"
	"github.com/jwebster45206/npc-engine/internal/middleware"
	"github.com/jwebster45206/npc-engine/internal/services"
	"github.com/jwebster45206/npc-engine/internal/services/events"
	"github.com/jwebster45206/npc-engine/internal/session"
	"github.com/jwebster45206/npc-engine/internal/telemetry"
	"github.com/jwebster45206/npc-engine/pkg/npc"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting NPC Engine API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"llm_provider", cfg.LLMProvider,
		"model_name", cfg.Model(),
		"session_backend", cfg.SessionBackend)

	shutdownTracing, err := telemetry.Setup(context.Background(), "npc-engine-api", cfg)
	if err != nil {
		log.Error("Failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Error("Error flushing traces", "error", err)
		}
	}()

	catalog := npc.DefaultCatalog()
	if cfg.CatalogDir != "" {
		catalog, err = npc.LoadCatalog(cfg.CatalogDir)
		if err != nil {
			log.Error("Failed to load character catalog", "error", err, "dir", cfg.CatalogDir)
			os.Exit(1)
		}
	}
	log.Info("Character catalog loaded", "characters", catalog.IDs())

	llmService, err := services.NewLLMService(cfg, log)
	if err != nil {
		log.Error("Failed to create LLM service", "error", err)
		os.Exit(1)
	}

	// Initialize the model on startup
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if err := llmService.InitModel(ctx, cfg.Model()); err != nil {
		log.Error("Failed to initialize LLM model", "error", err, "model", cfg.Model())
		os.Exit(1)
	}

	var (
		store  session.Store
		pinger session.Pinger
		opts   = []engine.Option{
			engine.WithLogger(log),
			engine.WithTimeout(cfg.ModelTimeout),
			engine.WithRetry(cfg.ModelRetries),
		}
		redisStore *session.RedisStore
	)
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		redisStore = session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL, log)
		storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer storageCancel()
		if err := redisStore.WaitForConnection(storageCtx); err != nil {
			log.Error("Failed to connect to session store", "error", err)
			os.Exit(1)
		}
		store, pinger = redisStore, redisStore
		opts = append(opts,
			engine.WithLocker(session.NewRedisLocker(redisStore.Client(), session.LockTTL(cfg.ModelTimeout, cfg.ModelRetries), log)),
			engine.WithPublisher(events.NewBroadcaster(redisStore.Client(), log)),
		)
	default:
		memStore := session.NewMemoryStore()
		store, pinger = memStore, memStore
	}

	eng := engine.New(catalog, store, gateway.New(llmService, log), opts...)

	mux := http.NewServeMux()

	mux.Handle("/health", handlers.NewHealthHandler(pinger, llmService, log))
	mux.Handle("/v1/interact", handlers.NewInteractHandler(eng, log))
	mux.Handle("/v1/chat", handlers.NewChatHandler(eng, log))

	sessionsHandler := handlers.NewSessionsHandler(eng, log)
	mux.Handle("/v1/sessions/", sessionsHandler)

	charactersHandler := handlers.NewCharactersHandler(catalog, log)
	mux.Handle("/v1/characters", charactersHandler)
	mux.Handle("/v1/characters/", charactersHandler)

	if redisStore != nil {
		mux.Handle("/v1/events/", handlers.NewEventsHandler(events.NewBroadcaster(redisStore.Client(), log), log))
	}

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     middleware.Logger(log)(mux),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the events stream is long-lived
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if redisStore != nil {
		if err := redisStore.Close(); err != nil {
			log.Error("Error closing session store", "error", err)
		}
	}

	log.Info("Server exited")
}
