package config

import (
	"os"
	"time"

	"classroom-quiz-service/internal/domain"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Authoring struct {
		DraftTTL string `yaml:"draft_ttl"`
	} `yaml:"authoring"`
	Live struct {
		Staleness        string                 `yaml:"staleness"`
		PollInterval     string                 `yaml:"poll_interval"`
		JoinCodeAttempts int                    `yaml:"join_code_attempts"`
		BannerCacheTTL   string                 `yaml:"banner_cache_ttl"`
		Defaults         domain.SessionSettings `yaml:"defaults"`
	} `yaml:"live"`
	RateLimit struct {
		Max    int    `yaml:"max"`
		Window string `yaml:"window"`
	} `yaml:"rate_limit"`
}

// DefaultSessionSettings apply when neither the host nor the config sets a value.
var DefaultSessionSettings = domain.SessionSettings{
	TimePerQuestion:          20,
	BasePoints:               1000,
	RoundMultiplierIncrement: 0.1,
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SessionDefaults returns the configured settings with built-in fallbacks for zero fields.
func (c Config) SessionDefaults() domain.SessionSettings {
	return c.Live.Defaults.WithDefaults(DefaultSessionSettings)
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
