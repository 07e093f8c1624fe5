package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values.
type Config struct {
	// Knowledge base storage
	KBRoot string

	// Job store (MySQL)
	JobsDSN string

	// Embedding providers
	OllamaHost       string
	OllamaEmbedModel string
	OpenAIAPIKey     string
	OpenAIEmbedModel string

	// Ingestion tuning
	IngestBatchSize   int
	MaxWriteAttempts  int
	BackoffMultiplier time.Duration
	InterFileDelay    time.Duration
	JobTimeout        time.Duration // 0 disables the per-job deadline

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		KBRoot:  getEnv("KBASE_KB_ROOT", defaultKBRoot()),
		JobsDSN: getEnv("KBASE_JOBS_DSN", "root:root@tcp(localhost:3306)/kbase?charset=utf8mb4&parseTime=True&loc=UTC"),

		OllamaHost:       getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaEmbedModel: getEnv("KBASE_OLLAMA_EMBED_MODEL", "all-minilm:l6-v2"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIEmbedModel: getEnv("KBASE_OPENAI_EMBED_MODEL", "text-embedding-3-small"),

		IngestBatchSize:   getEnvInt("KBASE_INGEST_BATCH_SIZE", 100),
		MaxWriteAttempts:  getEnvInt("KBASE_MAX_WRITE_ATTEMPTS", 3),
		BackoffMultiplier: getEnvDuration("KBASE_BACKOFF_MULTIPLIER", 2*time.Second),
		InterFileDelay:    getEnvDuration("KBASE_INTER_FILE_DELAY", 10*time.Millisecond),
		JobTimeout:        getEnvDuration("KBASE_JOB_TIMEOUT", 0),

		LogFile:  getEnv("KBASE_LOG_FILE", "/tmp/kbase.log"),
		LogLevel: parseLogLevel(getEnv("KBASE_LOG_LEVEL", "INFO")),
	}
}

func defaultKBRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kbase/knowledge_bases"
	}
	return filepath.Join(home, ".kbase", "knowledge_bases")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d >= 0 {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
