package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the banking assistant service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	// Conversational state.
	SessionTTL time.Duration
	MaxHistory int

	// Reference data (rate tables).
	DataDir string

	// Retrieval.
	DatabaseURL        string
	EmbeddingDim       int
	RetrieverTopK      int
	RetrieverFetchK    int
	RetrieverDiversity bool

	// Language-model provider.
	LLMMode       string
	LLMURL        string
	LLMExtractURL string
	EmbedURL      string

	// Market data feed (exchange rates XML).
	MarketFeedURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "tellerbot"),
		AllowAnyOrigin:   false,
		SessionTTL:       time.Hour,
		MaxHistory:       5,
		DataDir:          envOrDefault("APP_DATA_DIR", "data"),
		DatabaseURL:      trimmedEnv("DATABASE_URL"),
		EmbeddingDim:     1536,
		RetrieverTopK:    4,
		RetrieverFetchK:  20,
		LLMMode:          envOrDefault("LLM_MODE", "auto"),
		LLMURL:           trimmedEnv("LLM_URL"),
		LLMExtractURL:    trimmedEnv("LLM_EXTRACT_URL"),
		EmbedURL:         trimmedEnv("EMBED_URL"),
		MarketFeedURL:    envOrDefault("MARKET_FEED_URL", "https://portal.vietcombank.com.vn/UserControls/TVPortal.TyGia/pXML.aspx"),
		ShutdownTimeout:  15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTTL, err = durationFromEnv("APP_SESSION_TTL", cfg.SessionTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxHistory, err = intFromEnv("APP_MAX_HISTORY", cfg.MaxHistory)
	if err != nil {
		return Config{}, err
	}
	cfg.EmbeddingDim, err = intFromEnv("EMBED_DIM", cfg.EmbeddingDim)
	if err != nil {
		return Config{}, err
	}
	cfg.RetrieverTopK, err = intFromEnv("RETRIEVER_TOP_K", cfg.RetrieverTopK)
	if err != nil {
		return Config{}, err
	}
	cfg.RetrieverFetchK, err = intFromEnv("RETRIEVER_FETCH_K", cfg.RetrieverFetchK)
	if err != nil {
		return Config{}, err
	}
	cfg.RetrieverDiversity, err = boolFromEnv("RETRIEVER_DIVERSITY", cfg.RetrieverDiversity)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionTTL < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_TTL must be at least 5s")
	}
	if cfg.MaxHistory < 1 || cfg.MaxHistory > 50 {
		return Config{}, fmt.Errorf("APP_MAX_HISTORY must be between 1 and 50")
	}
	if cfg.EmbeddingDim <= 0 {
		return Config{}, fmt.Errorf("EMBED_DIM must be positive")
	}
	if cfg.RetrieverTopK <= 0 {
		return Config{}, fmt.Errorf("RETRIEVER_TOP_K must be positive")
	}
	if cfg.RetrieverFetchK < cfg.RetrieverTopK {
		return Config{}, fmt.Errorf("RETRIEVER_FETCH_K must be >= RETRIEVER_TOP_K")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
