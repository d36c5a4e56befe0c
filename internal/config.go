package internal

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	TelegramToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	DBPath        string `envconfig:"DB_PATH" default:"warden.db"`

	// Duplicate policy. The threshold is bits out of 256; 5 matches
	// re-encodes and recompressions without catching unrelated images.
	SimilarityThreshold int `envconfig:"SIMILARITY_THRESHOLD" default:"5"`

	// Weekly digest.
	TopContributors int    `envconfig:"TOP_CONTRIBUTORS" default:"5"`
	TopOffenders    int    `envconfig:"TOP_OFFENDERS" default:"3"`
	DigestCron      string `envconfig:"DIGEST_CRON" default:"0 10 * * 1"`
	DigestChatID    int64  `envconfig:"DIGEST_CHAT_ID" default:"0"`

	// How many media events are hashed concurrently.
	MediaWorkers int `envconfig:"MEDIA_WORKERS" default:"4"`

	// Optional evidence archive. Enabled when S3_BUCKET is set.
	S3Endpoint  string `envconfig:"S3_ENDPOINT" default:""`
	S3Region    string `envconfig:"S3_REGION" default:""`
	S3Bucket    string `envconfig:"S3_BUCKET" default:""`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY" default:""`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY" default:""`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.TelegramToken) == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 256 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be within [0, 256]")
	}
	if c.TopContributors < 1 {
		return fmt.Errorf("TOP_CONTRIBUTORS must be >= 1")
	}
	if c.TopOffenders < 1 {
		return fmt.Errorf("TOP_OFFENDERS must be >= 1")
	}
	if c.MediaWorkers < 1 {
		return fmt.Errorf("MEDIA_WORKERS must be >= 1")
	}
	if c.ArchiveEnabled() {
		if c.S3Region == "" || c.S3AccessKey == "" || c.S3SecretKey == "" {
			return fmt.Errorf("S3_REGION and S3 credentials are required when S3_BUCKET is set")
		}
	}
	return nil
}

// ArchiveEnabled reports whether the S3 evidence archive is configured.
func (c Config) ArchiveEnabled() bool {
	return strings.TrimSpace(c.S3Bucket) != ""
}
