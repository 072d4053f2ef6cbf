package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the wabridge.toml service configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Store    StoreConfig    `toml:"store"`
	Provider ProviderConfig `toml:"provider"`
	Bot      BotConfig      `toml:"bot"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Listen    string `toml:"listen"`
	AuthToken string `toml:"auth_token"`
	LogPath   string `toml:"log_path"`
}

// StoreConfig holds the sqlite database location.
type StoreConfig struct {
	Path string `toml:"path"`
}

// ProviderConfig holds the default provider binding for the owning instance.
type ProviderConfig struct {
	BaseURL        string   `toml:"base_url"`
	APIKey         string   `toml:"api_key"`
	Instance       string   `toml:"instance"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	WebhookKeys    []string `toml:"webhook_keys"`
}

// BotConfig holds the AI collaborator binding.
type BotConfig struct {
	Enabled       bool   `toml:"enabled"`
	Endpoint      string `toml:"endpoint"`
	Attribution   string `toml:"attribution"`
	FallbackReply string `toml:"fallback_reply"`
}

// Timeout returns the provider call ceiling, defaulting to 30s.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Load reads config from the given path and applies defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Starter returns a configuration template with defaults applied and
// placeholder provider credentials, for writing a first config file.
func Starter() *Config {
	cfg := &Config{
		Provider: ProviderConfig{
			BaseURL: "http://localhost:8080",
			APIKey:  "change-me",
		},
	}
	cfg.applyDefaults()
	return cfg
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Store.Path == "" {
		c.Store.Path = "wabridge.db"
	}
	if c.Provider.Instance == "" {
		c.Provider.Instance = "main"
	}
	if c.Bot.Attribution == "" {
		c.Bot.Attribution = "IA"
	}
	if c.Bot.FallbackReply == "" {
		c.Bot.FallbackReply = "Desculpe, não consegui processar sua mensagem agora. Um atendente irá responder em breve."
	}
}

func (c *Config) validate() error {
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if c.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key is required")
	}
	if c.Bot.Enabled && c.Bot.Endpoint == "" {
		return fmt.Errorf("bot.endpoint is required when bot.enabled")
	}
	return nil
}
