package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadReadsSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
redis:
  addr: localhost:6379
authoring:
  draft_ttl: 12h
live:
  staleness: 30m
  join_code_attempts: 5
  defaults:
    time_per_question: 45
rate_limit:
  max: 3
  window: 1m
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected server/redis section: %+v", cfg)
	}
	if got := TTLDuration(cfg.Authoring.DraftTTL, time.Hour); got != 12*time.Hour {
		t.Fatalf("expected 12h draft ttl, got %s", got)
	}
	if cfg.Live.JoinCodeAttempts != 5 || cfg.RateLimit.Max != 3 {
		t.Fatalf("unexpected live/rate limit section: %+v", cfg)
	}

	defaults := cfg.SessionDefaults()
	if defaults.TimePerQuestion != 45 {
		t.Fatalf("expected configured time per question, got %d", defaults.TimePerQuestion)
	}
	if defaults.BasePoints != DefaultSessionSettings.BasePoints || defaults.RoundMultiplierIncrement != DefaultSessionSettings.RoundMultiplierIncrement {
		t.Fatalf("expected built-in fallbacks, got %+v", defaults)
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("empty should fall back, got %s", got)
	}
	if got := TTLDuration("soon", time.Minute); got != time.Minute {
		t.Fatalf("invalid should fall back, got %s", got)
	}
	if got := TTLDuration("5s", time.Minute); got != 5*time.Second {
		t.Fatalf("expected 5s, got %s", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
