package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server  ServerConfig
	OpenAI  OpenAIConfig
	Daily   DailyConfig
	Scrape  ScrapeConfig
	Storage StorageConfig
	Admin   AdminConfig
}

type ServerConfig struct {
	Port int `env:"COACHD_PORT" envDefault:"4000"`
}

type OpenAIConfig struct {
	APIKey       string `env:"COACHD_OPENAI_API_KEY"`
	BaseURL      string `env:"COACHD_OPENAI_BASE_URL"`
	DefaultModel string `env:"COACHD_DEFAULT_MODEL" envDefault:"gpt-4o-mini"`
	EmbedModel   string `env:"COACHD_EMBED_MODEL" envDefault:"text-embedding-3-small"`
}

// DailyConfig enables the voice session broker. When APIKey is empty the
// session endpoints are disabled.
type DailyConfig struct {
	APIKey string `env:"COACHD_DAILY_API_KEY"`
}

// ScrapeConfig enables scrape-type content sources. When Token is empty
// those sources fail with a clear error.
type ScrapeConfig struct {
	Token   string `env:"COACHD_SCRAPE_TOKEN"`
	ActorID string `env:"COACHD_SCRAPE_ACTOR" envDefault:"apify~website-content-crawler"`
}

type StorageConfig struct {
	DataDir string `env:"COACHD_DATA_DIR"`
}

type AdminConfig struct {
	Token string `env:"COACHD_ADMIN_TOKEN"`
}

// Load reads configuration from COACHD_* environment variables on top of
// built-in defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = defaultDataDir()
	}

	if cfg.OpenAI.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: OpenAI API key. " +
			"Set it via environment variable COACHD_OPENAI_API_KEY")
	}

	return cfg, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "data")
	}
	return filepath.Join(home, ".coachd")
}
