package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     string
	LogLevel string
	Version  string

	RedisAddr string

	Qdrant QdrantConfig
	Gemini GeminiConfig

	DatabaseURL    string
	UserTokenLimit int

	Context ContextConfig

	IntentCacheTTL     time.Duration
	PseudonymRetention time.Duration
	QueryTimeout       time.Duration
}

type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	VectorSize uint64
}

type GeminiConfig struct {
	ProjectID      string
	Location       string
	PrimaryModel   string
	FallbackModel  string
	IntentModel    string
	EmbeddingModel string
}

type ContextConfig struct {
	MaxTokens      int
	MaxResults     int
	Strategy       string
	CandidateLimit int
	PageSize       int
}

// Load reads .env.dev (if present) and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load(".env.dev")

	cfg := Config{
		Env:       getEnv("ENV", "development"),
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		Version:   getEnv("APP_VERSION", "dev"),
		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		Qdrant: QdrantConfig{
			Host:       getEnv("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnv("QDRANT_COLLECTION", "findings"),
			VectorSize: uint64(getEnvInt("QDRANT_VECTOR_SIZE", 768)),
		},
		Gemini: GeminiConfig{
			ProjectID:      getEnv("GOOGLE_CLOUD_PROJECT", ""),
			Location:       getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),
			PrimaryModel:   getEnv("PRIMARY_MODEL", "gemini-2.5-flash"),
			FallbackModel:  getEnv("FALLBACK_MODEL", "gemini-2.0-flash"),
			IntentModel:    getEnv("INTENT_MODEL", "gemini-2.5-flash"),
			EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		},
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UserTokenLimit: getEnvInt("USER_TOKEN_LIMIT", 200000),
		Context: ContextConfig{
			MaxTokens:      getEnvInt("CONTEXT_MAX_TOKENS", 8000),
			MaxResults:     getEnvInt("CONTEXT_MAX_RESULTS", 20),
			Strategy:       getEnv("CONTEXT_STRATEGY", "keyword"),
			CandidateLimit: getEnvInt("CANDIDATE_LIMIT", 500),
			PageSize:       getEnvInt("PAGE_SIZE", 20),
		},
		IntentCacheTTL:     getEnvDuration("INTENT_CACHE_TTL", time.Hour),
		PseudonymRetention: getEnvDuration("PSEUDONYM_RETENTION", 30*24*time.Hour),
		QueryTimeout:       getEnvDuration("QUERY_TIMEOUT", 60*time.Second),
	}

	if cfg.Gemini.ProjectID == "" {
		return Config{}, fmt.Errorf("GOOGLE_CLOUD_PROJECT is required")
	}
	switch cfg.Context.Strategy {
	case "keyword", "semantic", "hybrid":
	default:
		return Config{}, fmt.Errorf("CONTEXT_STRATEGY must be keyword, semantic or hybrid, got %q", cfg.Context.Strategy)
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
