package config

import (
	"os"
	"time"

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
		GuestTTL string `yaml:"guest_ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Catalog struct {
		TTL string `yaml:"ttl"`
	} `yaml:"catalog"`
	Game struct {
		FeedbackDelay    string `yaml:"feedback_delay"`
		AuthPromptDelay  string `yaml:"auth_prompt_delay"`
		AutoSaveInterval string `yaml:"auto_save_interval"`
		DeferredAuth     *bool  `yaml:"deferred_auth"`
	} `yaml:"game"`
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

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// DeferredAuth reports whether the guest try-before-sign-up policy is on.
// Defaults to true, matching the product behavior.
func (c Config) DeferredAuth() bool {
	if c.Game.DeferredAuth == nil {
		return true
	}
	return *c.Game.DeferredAuth
}
