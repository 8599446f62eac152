// Package main is the entry point for the chat bridge server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pocketllama/chat-relay/internal/backend"
	"github.com/pocketllama/chat-relay/internal/config"
	"github.com/pocketllama/chat-relay/internal/crypto"
	"github.com/pocketllama/chat-relay/internal/handler"
	"github.com/pocketllama/chat-relay/internal/middleware"
	"github.com/pocketllama/chat-relay/internal/service"
	"github.com/pocketllama/chat-relay/internal/store"
	"github.com/pocketllama/chat-relay/internal/upstream"
	"github.com/pocketllama/chat-relay/pkg/logger"
	"github.com/pocketllama/chat-relay/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting chat bridge")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chat-relay", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open the encrypted chat store
	cipher := crypto.New(cfg.EncryptionSecret)
	if cfg.EncryptionSecret == "" {
		log.Warn("ENCRYPTION_SECRET not set, using built-in fallback key")
	}
	st, err := store.Open(cfg.DBPath, cipher)
	if err != nil {
		log.Error("failed to open database", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close()
	log.Info("database initialized", zap.String("path", cfg.DBPath))

	// Upstream client and backend mode detection
	client := upstream.NewHTTPClient(upstream.Config{
		LocalURL:      cfg.LocalOllamaURL,
		CloudURL:      cfg.CloudOllamaURL,
		APIKey:        cfg.OllamaAPIKey,
		StreamTimeout: cfg.UpstreamTimeout,
	})
	cache := backend.NewModelCache(cfg.ModelsCachePath, log)
	detector := backend.NewDetector(client, cache, cfg.Mode, cfg.OllamaAPIKey != "", log)
	detector.Detect(ctx)

	// Access gate
	gate := middleware.NewGate(cfg.AppPassword, cfg.JWTExpiration)

	// Initialize services
	chatSvc := service.NewChatService(st, log)
	relaySvc := service.NewRelayService(st, chatSvc, client, detector, log)

	// Initialize handlers
	statusHandler := handler.NewStatusHandler(detector, gate, st, cfg.ServerPort, log)
	chatHandler := handler.NewChatHandler(chatSvc, log)
	modelsHandler := handler.NewModelsHandler(client, cache, detector, log)
	relayHandler := handler.NewRelayHandler(relaySvc, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-App-Password", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoint (no auth required)
	r.Get("/health", statusHandler.Health)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Status and login stay public: clients need them to discover
		// whether a password is required at all.
		r.Get("/status", statusHandler.Status)
		r.Post("/login", statusHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(gate.Middleware)

			r.Get("/models", modelsHandler.List)
			r.Post("/chat", relayHandler.Chat)

			r.Route("/chats", func(r chi.Router) {
				r.Get("/", chatHandler.List)
				r.Post("/", chatHandler.Create)
				r.Get("/{id}", chatHandler.Get)
				r.Delete("/{id}", chatHandler.Delete)
			})
		})
	})

	// Create HTTP server. WriteTimeout stays unset by default so streaming
	// responses are not cut off mid-generation.
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort), zap.String("mode", string(detector.Mode())))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
