package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Qdrant   QdrantConfig
	Gemini   GeminiConfig
	Storage  StorageConfig
	Worker   WorkerConfig
	Matching MatchingConfig
	Dedup    DedupConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
}

type GeminiConfig struct {
	APIKey string
}

type StorageConfig struct {
	UploadPath  string
	MaxFileSize int64
}

type WorkerConfig struct {
	Concurrency       int
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	PollInterval      time.Duration
}

// MatchingConfig holds the tunables of the matching pipeline. A snapshot of
// these is taken per request; nothing reads them mutably at match time.
type MatchingConfig struct {
	LexicalWeight     float64
	SemanticWeight    float64
	DefaultTopK       int
	MinEvidence       int
	SemanticEnabled   bool
	ExtractionTimeout time.Duration
	RequestTimeout    time.Duration
}

// DedupConfig holds the merge-decision tunables. The thresholds are policy,
// not contract: they bias toward false negatives because duplicate records
// are cheaper to fix than wrongly merged identities.
type DedupConfig struct {
	MergeThreshold     float64
	NearMissMargin     float64
	EmbeddingThreshold float64
	MaxUpdateRetries   int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Using default values.")
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "3000"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "talent_match"),
		},
		Qdrant: QdrantConfig{
			URL:        getEnv("QDRANT_URL", "http://localhost:6333"),
			APIKey:     getEnv("QDRANT_API_KEY", ""),
			Collection: getEnv("QDRANT_COLLECTION", "talent_match_candidates"),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
		},
		Storage: StorageConfig{
			UploadPath:  getEnv("UPLOAD_PATH", "./uploads"),
			MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 10485760),
		},
		Worker: WorkerConfig{
			Concurrency:       getEnvAsInt("WORKER_CONCURRENCY", 3),
			RetryMaxAttempts:  getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			RetryInitialDelay: getEnvAsDuration("RETRY_INITIAL_DELAY", "2s"),
			PollInterval:      getEnvAsDuration("WORKER_POLL_INTERVAL", "10s"),
		},
		Matching: MatchingConfig{
			LexicalWeight:     getEnvAsFloat("MATCH_LEXICAL_WEIGHT", 0.5),
			SemanticWeight:    getEnvAsFloat("MATCH_SEMANTIC_WEIGHT", 0.5),
			DefaultTopK:       getEnvAsInt("MATCH_DEFAULT_TOP_K", 10),
			MinEvidence:       getEnvAsInt("MATCH_MIN_EVIDENCE", 2),
			SemanticEnabled:   getEnvAsBool("SEMANTIC_RECALL_ENABLED", true),
			ExtractionTimeout: getEnvAsDuration("MATCH_EXTRACTION_TIMEOUT", "700ms"),
			RequestTimeout:    getEnvAsDuration("MATCH_REQUEST_TIMEOUT", "1s"),
		},
		Dedup: DedupConfig{
			MergeThreshold:     getEnvAsFloat("MERGE_THRESHOLD", 0.82),
			NearMissMargin:     getEnvAsFloat("MERGE_NEAR_MISS_MARGIN", 0.1),
			EmbeddingThreshold: getEnvAsFloat("MERGE_EMBEDDING_THRESHOLD", 0.92),
			MaxUpdateRetries:   getEnvAsInt("MERGE_MAX_UPDATE_RETRIES", 3),
		},
	}
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
