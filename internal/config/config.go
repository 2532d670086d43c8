// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AccountConfig holds mailbox and SP-API credentials for a single seller account.
type AccountConfig struct {
	Name    string `yaml:"name"`
	Channel string `yaml:"channel"` // "amazon" today; other channels reserved

	// Mailbox (IMAP/SMTP app-password pair)
	MailAddress  string `yaml:"mail_address"`
	MailPassword string `yaml:"mail_password"`

	// SP-API (Login with Amazon)
	RefreshToken    string `yaml:"refresh_token"`
	LWAClientID     string `yaml:"lwa_client_id"`
	LWAClientSecret string `yaml:"lwa_client_secret"`
}

// MailConfigured reports whether the account has a usable mailbox credential set.
func (a AccountConfig) MailConfigured() bool {
	return a.MailAddress != "" && a.MailPassword != ""
}

// SPAPIConfigured reports whether the account has a usable LWA credential set.
func (a AccountConfig) SPAPIConfigured() bool {
	return a.RefreshToken != "" && a.LWAClientID != "" && a.LWAClientSecret != ""
}

// Config holds all configuration for the support desk service.
type Config struct {
	Accounts []AccountConfig

	// Ingestion
	FetchInterval time.Duration
	FetchLookback time.Duration

	// Mail endpoints
	IMAPHost string
	SMTPHost string

	// Product fact cache
	ProductCacheTTL time.Duration

	// SP-API
	MarketplaceID string
	SPAPIEndpoint string
	LWATokenURL   string

	// AI generation
	AnthropicAPIKey string
	AnthropicModel  string

	// Storage
	DatabaseURL string
	RedisURL    string

	// Dashboard auth
	DashboardPassword string
	SessionSecret     string

	// Server
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Accounts []AccountConfig `yaml:"accounts"`
	Mail     struct {
		IMAPHost string `yaml:"imap_host"`
		SMTPHost string `yaml:"smtp_host"`
	} `yaml:"mail"`
	Amazon struct {
		MarketplaceID string `yaml:"marketplace_id"`
		Endpoint      string `yaml:"endpoint"`
	} `yaml:"amazon"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		FetchInterval:     envOrDefaultDuration("FETCH_INTERVAL", 5*time.Minute),
		FetchLookback:     envOrDefaultDuration("FETCH_LOOKBACK", 90*24*time.Hour),
		IMAPHost:          firstNonEmpty(raw.Mail.IMAPHost, "imap.gmail.com:993"),
		SMTPHost:          firstNonEmpty(raw.Mail.SMTPHost, "smtp.gmail.com:465"),
		ProductCacheTTL:   envOrDefaultDuration("PRODUCT_CACHE_TTL", 7*24*time.Hour),
		MarketplaceID:     firstNonEmpty(raw.Amazon.MarketplaceID, envOrDefault("AMAZON_MARKETPLACE_ID", "A1VC38T7YXB528")),
		SPAPIEndpoint:     firstNonEmpty(raw.Amazon.Endpoint, "https://sellingpartnerapi-fe.amazon.com"),
		LWATokenURL:       envOrDefault("LWA_TOKEN_URL", "https://api.amazon.com/auth/o2/token"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:    envOrDefault("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		DatabaseURL:       firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "postgres://localhost:5432/sellerdesk")),
		RedisURL:          firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		DashboardPassword: envOrDefault("DASHBOARD_PASSWORD", "changeme"),
		SessionSecret:     os.Getenv("SESSION_SECRET"),
		Port:              envOrDefaultInt("PORT", 8080),
	}

	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET must be set")
	}

	// Build account configs
	for _, a := range raw.Accounts {
		if a.Name == "" {
			continue
		}
		if a.Channel == "" {
			a.Channel = "amazon"
		}
		// App passwords pasted from provider UIs often carry regular,
		// non-breaking, or ideographic spaces.
		a.MailPassword = stripSpaces(a.MailPassword)

		cfg.Accounts = append(cfg.Accounts, a)
	}

	if len(cfg.Accounts) == 0 {
		return nil, fmt.Errorf("no accounts configured, check config.yaml and environment variables")
	}

	return cfg, nil
}

// Account returns the configuration for the named account, if present.
func (c *Config) Account(name string) (AccountConfig, bool) {
	for _, a := range c.Accounts {
		if a.Name == name {
			return a, true
		}
	}
	return AccountConfig{}, false
}

func stripSpaces(s string) string {
	return strings.TrimSpace(strings.NewReplacer(" ", "", " ", "", "　", "").Replace(s))
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
