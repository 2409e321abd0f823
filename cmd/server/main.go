package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shineIB/flowsync/internal/analysis"
	"github.com/shineIB/flowsync/internal/api"
	"github.com/shineIB/flowsync/internal/bridge"
	"github.com/shineIB/flowsync/internal/config"
	"github.com/shineIB/flowsync/internal/metrics"
	"github.com/shineIB/flowsync/internal/routers"
	"github.com/shineIB/flowsync/internal/session"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.String("redis_addr", cfg.RedisAddr),
		zap.String("channel", cfg.BroadcastChannel),
		zap.Bool("gemini_configured", cfg.GeminiAPIKey != ""))

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	hub := session.NewHub(logger, cfg.SendQueueSize)

	br := bridge.New(logger, rdb, hub, cfg.BroadcastChannel)
	hub.SetPublisher(br)

	bridgeCtx, stopBridge := context.WithCancel(context.Background())
	go br.Run(bridgeCtx)

	prompts, err := analysis.NewPromptManager()
	if err != nil {
		logger.Fatal("Failed to load analysis template", zap.Error(err))
	}

	// Gemini is optional: without a key the analyze endpoint serves
	// the offline report.
	var provider analysis.Provider
	if cfg.GeminiAPIKey != "" {
		gemini, err := analysis.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("Failed to initialize Gemini, falling back to offline analysis", zap.Error(err))
		} else {
			provider = gemini
		}
	}
	analyzer := analysis.NewService(provider, prompts, logger)

	handlers := api.NewHandlers(logger, hub, analyzer, rdb, cfg.IdleTimeout)

	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	router.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	router.Use(metrics.Middleware)

	router.Mount("/", routers.New(handlers))

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("FlowSync API starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownChan

	logger.Info("FlowSync API shutting down...")

	stopBridge()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	if err := rdb.Close(); err != nil {
		logger.Warn("redis close failed", zap.Error(err))
	}

	logger.Info("FlowSync API exited")
}
