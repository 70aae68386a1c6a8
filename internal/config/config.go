package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	// MockEmbedding swaps the OpenAI embedder for the deterministic local
	// one; classification and vision still require an API key.
	MockEmbedding bool `envconfig:"MOCK_EMBEDDING" default:"false"`

	ParseAPIURL string `envconfig:"PARSE_API_URL"`
	ParseAPIKey string `envconfig:"PARSE_API_KEY"`

	EnrichBatchSize    int           `envconfig:"ENRICH_BATCH_SIZE" default:"10"`
	EnrichConcurrency  int           `envconfig:"ENRICH_CONCURRENCY" default:"5"`
	EnrichPollInterval time.Duration `envconfig:"ENRICH_POLL_INTERVAL" default:"30s"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"curio-books"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	// CacheDir is where S3-staged documents land before parsing.
	CacheDir string `envconfig:"CACHE_DIR" default:"/tmp/curio-cache"`

	SentryDSN string `envconfig:"SENTRY_DSN"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("CURIO", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasCloudParser() bool {
	return c.ParseAPIURL != "" && c.ParseAPIKey != ""
}
