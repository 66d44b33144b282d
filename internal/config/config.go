package config

import (
	"errors"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LLMProvider   string // "gemini" or "openai"
	LLMModel      string
	LLMTimeout    time.Duration
	GeminiAPIKey  string
	OpenAIAPIKey  string
	DatabaseURL   string
	HTTPPort      string
	LogLevel      string
	LogFormat     string
	JWTSecret     string
	SessionStore  string // "redis" or "memory"
	RedisURL      string
	RedisDB       int
	SessionMaxAge time.Duration
}

var AppConfig Config

// LoadConfig populates AppConfig and exits the process when required settings are missing.
func LoadConfig() {
	cfg, err := Load()
	if err != nil {
		log.Fatal(err)
	}
	AppConfig = *cfg
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		LLMProvider:   strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
		LLMModel:      getEnv("LLM_MODEL", ""),
		LLMTimeout:    getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		DatabaseURL:   getEnv("DATABASE_URL", "patient_portal.db"),
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		SessionStore:  strings.ToLower(getEnv("SESSION_STORE", "memory")),
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisDB:       getEnvAsInt("REDIS_DB", 2),
		SessionMaxAge: getEnvAsDuration("SESSION_MAX_AGE", 24*time.Hour),
	}

	switch cfg.LLMProvider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, errors.New("GEMINI_API_KEY environment variable is required")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY environment variable is required")
		}
	default:
		return nil, errors.New("LLM_PROVIDER must be one of: gemini, openai")
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}

	if cfg.SessionStore != "memory" && cfg.SessionStore != "redis" {
		return nil, errors.New("SESSION_STORE must be one of: memory, redis")
	}
	return cfg, nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}
