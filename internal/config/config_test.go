package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COACHD_OPENAI_API_KEY", "sk-test")
	t.Setenv("COACHD_DATA_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.OpenAI.DefaultModel != "gpt-4o-mini" {
		t.Errorf("DefaultModel = %q", cfg.OpenAI.DefaultModel)
	}
	if cfg.OpenAI.EmbedModel != "text-embedding-3-small" {
		t.Errorf("EmbedModel = %q", cfg.OpenAI.EmbedModel)
	}
	if cfg.Scrape.ActorID != "apify~website-content-crawler" {
		t.Errorf("ActorID = %q", cfg.Scrape.ActorID)
	}
	if cfg.Daily.APIKey != "" {
		t.Errorf("Daily.APIKey = %q", cfg.Daily.APIKey)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("COACHD_OPENAI_API_KEY", "sk-test")
	t.Setenv("COACHD_PORT", "9999")
	t.Setenv("COACHD_DEFAULT_MODEL", "gpt-4o")
	t.Setenv("COACHD_DAILY_API_KEY", "daily-key")
	t.Setenv("COACHD_ADMIN_TOKEN", "admin-token")
	t.Setenv("COACHD_DATA_DIR", "/tmp/coachd-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.OpenAI.DefaultModel != "gpt-4o" {
		t.Errorf("DefaultModel = %q", cfg.OpenAI.DefaultModel)
	}
	if cfg.Daily.APIKey != "daily-key" {
		t.Errorf("Daily.APIKey = %q", cfg.Daily.APIKey)
	}
	if cfg.Admin.Token != "admin-token" {
		t.Errorf("Admin.Token = %q", cfg.Admin.Token)
	}
	if cfg.Storage.DataDir != "/tmp/coachd-test" {
		t.Errorf("DataDir = %q", cfg.Storage.DataDir)
	}
}

func TestLoadMissingAPIKey(t *testing.T) {
	t.Setenv("COACHD_OPENAI_API_KEY", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "COACHD_OPENAI_API_KEY") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadDataDirDefault(t *testing.T) {
	t.Setenv("COACHD_OPENAI_API_KEY", "sk-test")
	t.Setenv("COACHD_DATA_DIR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("DataDir not defaulted")
	}
}
