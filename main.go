package main

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"hookstats/internal/analytics"
	"hookstats/internal/config"
	"hookstats/internal/db"
	"hookstats/internal/handlers"
	"hookstats/internal/metrics"
	"hookstats/internal/rdb"
	"hookstats/internal/teams"
	"hookstats/internal/telemetry"
)

func main() {
	// Load .env if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	if cfg.WebhookSecret == "" {
		logger.Warn("WEBHOOK_SECRET not set, accepting unsigned deliveries")
	}

	// Database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close()

	// Redis
	cache, err := rdb.New(cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer cache.Close()

	// Team membership for cross-team classification
	dir := teams.Empty()
	if cfg.TeamsFile != "" {
		if dir, err = teams.Load(cfg.TeamsFile); err != nil {
			logger.Fatal("failed to load teams file", zap.Error(err))
		}
	} else {
		logger.Warn("TEAMS_FILE not set, cross-team columns stay NULL")
	}

	// Analytics
	ph := analytics.New(cfg.PostHogAPIKey, logger)
	defer ph.Close()

	col := telemetry.NewCollector()
	store := metrics.NewStore(database.Conn())

	// HTTP router
	h := handlers.New(store, database, cache, ph, dir, col, cfg, logger.Named("http"))
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(cache.RateLimit(300, time.Minute))

	r.Post("/webhook", h.Webhook)

	r.Get("/api/metrics/turnaround", h.ReviewTurnaround)
	r.Get("/api/metrics/comment-resolution-time", h.CommentResolution)
	r.Get("/api/metrics/cross-team-reviews", h.CrossTeamReviews)
	r.Get("/api/metrics/user-prs", h.UserPRs)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", telemetry.Handler())

	logger.Info("hookstats listening", zap.String("port", cfg.Port))
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
