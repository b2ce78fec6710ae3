package config

import "os"

type Config struct {
	DatabaseURL   string
	Port          string
	RedisURL      string
	WebhookSecret string
	PostHogAPIKey string
	TeamsFile     string
	LogLevel      string
}

func Load() *Config {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = "postgres://localhost:5432/hookstats?sslmode=disable"
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	return &Config{
		DatabaseURL:   databaseURL,
		Port:          port,
		RedisURL:      redisURL,
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
		PostHogAPIKey: os.Getenv("POSTHOG_API_KEY"),
		TeamsFile:     os.Getenv("TEAMS_FILE"),
		LogLevel:      logLevel,
	}
}
