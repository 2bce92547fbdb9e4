package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fitmind/voicecoach/adapters/live"
	"github.com/fitmind/voicecoach/adapters/memory"
	"github.com/fitmind/voicecoach/adapters/mongo"
	"github.com/fitmind/voicecoach/domain/repositories"
	"github.com/fitmind/voicecoach/internal/api"
	"github.com/fitmind/voicecoach/internal/auth"
	"github.com/fitmind/voicecoach/internal/config"
	"github.com/fitmind/voicecoach/internal/voice"
	"github.com/fitmind/voicecoach/internal/websocket"
	"github.com/fitmind/voicecoach/usecase"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()

	// Initialize logger
	logger, err := config.NewLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Initialize adapters
	var conversations repositories.ConversationRepository
	switch cfg.Store.Backend {
	case config.StoreMongo:
		client, err := mongo.NewClient(ctx, mongo.Config{
			URI:      cfg.Store.MongoURI,
			Database: cfg.Store.MongoDatabase,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer client.Close(context.Background())
		conversations = mongo.NewConversationRepository(client.Database, logger)
	default:
		logger.Warn("Using in-memory conversation store; chat history is lost on restart")
		conversations = memory.NewConversationRepository()
	}

	liveModel, err := live.NewGeminiLive(ctx, cfg.Gemini.APIKey, logger)
	if err != nil {
		logger.Fatal("Failed to create Gemini Live client", zap.Error(err))
	}

	signer, err := auth.NewSigner(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatal("Failed to create token signer", zap.Error(err))
	}

	// Initialize usecase services
	coach := usecase.NewCoachService(conversations, logger)

	// Initialize WebSocket hub with one voice session manager per client
	hub := websocket.NewHub(coach, liveModel, cfg.VoiceOptions(), voice.NewMetrics(reg), clock.New(), logger)
	go hub.Run(ctx)

	cleanup := websocket.NewConversationCleanup(conversations, cfg.Store.CleanupInterval, clock.New(), logger)
	cleanup.Start()
	defer cleanup.Stop()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, hub, coach, signer, reg, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Backend),
		zap.String("model", cfg.Gemini.Model))

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
