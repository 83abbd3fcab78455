package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"cardsmith-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel  string `envconfig:"OPENAI_MODEL"`

	AnkiURL string `envconfig:"ANKI_URL" default:"http://localhost:8765"`

	SentryDSN string `envconfig:"SENTRY_DSN"`

	// Pipeline tuning
	MaxPagesPerChunk  int  `envconfig:"MAX_PAGES_PER_CHUNK" default:"10"`
	ChunkOverlap      bool `envconfig:"CHUNK_OVERLAP" default:"true"`
	BatchSize         int  `envconfig:"BATCH_SIZE" default:"3"`
	PacingSeconds     int  `envconfig:"PACING_SECONDS" default:"5"`
	MaxConcurrentJobs int  `envconfig:"MAX_CONCURRENT_JOBS" default:"2"`

	// Worker cadence
	PollIntervalSeconds   int `envconfig:"POLL_INTERVAL_SECONDS" default:"5"`
	StaleThresholdMinutes int `envconfig:"STALE_THRESHOLD_MINUTES" default:"10"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("CARDSMITH", &cfg); err != nil {
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
