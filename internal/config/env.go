package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	DatabaseURL string
	Port        string

	AwsAccessKey   string
	AwsSecretKey   string
	AwsRegion      string
	AwsEndpointURL string
	BucketName     string

	AIAPIKey   string
	EmbedModel string
	EmbedDim   int
	GenModel   string

	// Ingestion tunables.
	TargetTokens     int
	OverlapSentences int
	EmbedBatchSize   int
	EmbedWorkers     int
	QualityThreshold float64
	MaxAttempts      int
	RetryBackoff     time.Duration
	LeaseDuration    time.Duration
	PollInterval     time.Duration
	IngestWorkers    int

	// Retrieval tunables.
	LexicalWeight  float64
	SemanticWeight float64
	FusionTopK     int
	RerankTopN     int
	RerankEnabled  bool
	LegTimeout     time.Duration
}

// LoadConfig loads the environment variables and returns config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Port:        getEnv("PORT", "8080"),

		AwsAccessKey:   getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:   getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:      getEnv("AWS_REGION", "us-east-2"),
		AwsEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		BucketName:     getEnv("BUCKET_NAME", "lab-agent-docs"),

		AIAPIKey:   getEnv("GEMINI_API_KEY", ""),
		EmbedModel: getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:   getEnvInt("EMBED_DIM", 768),
		GenModel:   getEnv("GEN_MODEL", "gemini-1.5-flash"),

		TargetTokens:     getEnvInt("CHUNK_TARGET_TOKENS", 512),
		OverlapSentences: getEnvInt("CHUNK_OVERLAP_SENTENCES", 1),
		EmbedBatchSize:   getEnvInt("EMBED_BATCH_SIZE", 16),
		EmbedWorkers:     getEnvInt("EMBED_WORKERS", 4),
		QualityThreshold: getEnvFloat("QUALITY_THRESHOLD", 0.5),
		MaxAttempts:      getEnvInt("JOB_MAX_ATTEMPTS", 3),
		RetryBackoff:     getEnvDuration("JOB_RETRY_BACKOFF", 2*time.Second),
		LeaseDuration:    getEnvDuration("JOB_LEASE_DURATION", 5*time.Minute),
		PollInterval:     getEnvDuration("JOB_POLL_INTERVAL", 5*time.Second),
		IngestWorkers:    getEnvInt("INGEST_WORKERS", 2),

		LexicalWeight:  getEnvFloat("FUSION_LEXICAL_WEIGHT", 0.5),
		SemanticWeight: getEnvFloat("FUSION_SEMANTIC_WEIGHT", 0.5),
		FusionTopK:     getEnvInt("FUSION_TOP_K", 25),
		RerankTopN:     getEnvInt("RERANK_TOP_N", 8),
		RerankEnabled:  getEnvBool("RERANK_ENABLED", true),
		LegTimeout:     getEnvDuration("SEARCH_LEG_TIMEOUT", 3*time.Second),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Int("default", def).Msg("not an int, using default")
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Float64("default", def).Msg("not a float, using default")
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Bool("default", def).Msg("not a bool, using default")
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Dur("default", def).Msg("not a duration, using default")
		return def
	}
	return d
}
