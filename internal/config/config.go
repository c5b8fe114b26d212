// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Browser backend kinds.
const (
	BackendRemote = "remote"
	BackendDocker = "docker"
)

// Config holds all application configuration.
type Config struct {
	// Telegram transport.
	BotToken      string
	UseWebhook    bool
	WebhookURL    string
	WebhookPath   string
	WebhookSecret string
	Port          string

	// Automation agent service.
	AgentAddr string

	// LLM sidekick (intent classification, recommendations, formatting).
	OpenAIKey   string
	OpenAIModel string

	// Browser backend.
	BrowserBackend     string // "remote" or "docker"
	BrowserProviderURL string
	BrowserAPIKey      string

	// Storage.
	DBPath     string
	MaxHistory int

	// Session pool limits.
	IdleTimeout  time.Duration
	ReapInterval time.Duration
	MaxSessions  int

	// Executor limits.
	AutomationTimeout time.Duration
	MaxRetries        int

	// Outbound message chunking.
	ChunkSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		BotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		UseWebhook:    getEnvBool("USE_WEBHOOK", false),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
		WebhookPath:   getEnv("WEBHOOK_PATH", "/telegram/webhook"),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		Port:          getEnv("PORT", "8080"),

		AgentAddr: os.Getenv("AGENT_ADDR"),

		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: getEnv("OPENAI_MODEL", "gpt-4o"),

		BrowserBackend:     getEnv("BROWSER_BACKEND", BackendRemote),
		BrowserProviderURL: getEnv("BROWSER_PROVIDER_URL", ""),
		BrowserAPIKey:      getEnv("BROWSER_API_KEY", ""),

		DBPath:     getEnv("DB_PATH", "./data/concierge.db"),
		MaxHistory: getEnvInt("MAX_HISTORY_LENGTH", 50),

		IdleTimeout:  getEnvDuration("SESSION_IDLE_TIMEOUT", 15*time.Minute),
		ReapInterval: getEnvDuration("SESSION_REAP_INTERVAL", time.Minute),
		MaxSessions:  getEnvInt("MAX_CONCURRENT_SESSIONS", 10),

		AutomationTimeout: getEnvDuration("AUTOMATION_TIMEOUT", 90*time.Second),
		MaxRetries:        getEnvInt("MAX_RETRIES", 2),

		ChunkSize: getEnvInt("MESSAGE_CHUNK_SIZE", 4000),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.AgentAddr == "" {
		return fmt.Errorf("AGENT_ADDR is required")
	}
	if c.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.UseWebhook && c.WebhookURL == "" {
		return fmt.Errorf("WEBHOOK_URL is required when USE_WEBHOOK is set")
	}
	switch c.BrowserBackend {
	case BackendRemote:
		if c.BrowserProviderURL == "" {
			return fmt.Errorf("BROWSER_PROVIDER_URL is required for the remote backend")
		}
		if c.BrowserAPIKey == "" {
			return fmt.Errorf("BROWSER_API_KEY is required for the remote backend")
		}
	case BackendDocker:
		// Docker connection details come from the standard DOCKER_* env vars.
	default:
		return fmt.Errorf("BROWSER_BACKEND must be %q or %q, got %q", BackendRemote, BackendDocker, c.BrowserBackend)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_SESSIONS must be > 0")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be > 0")
	}
	if c.ReapInterval <= 0 {
		return fmt.Errorf("SESSION_REAP_INTERVAL must be > 0")
	}
	if c.AutomationTimeout <= 0 {
		return fmt.Errorf("AUTOMATION_TIMEOUT must be > 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES cannot be negative")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("MESSAGE_CHUNK_SIZE must be > 0")
	}
	if c.MaxHistory <= 0 {
		return fmt.Errorf("MAX_HISTORY_LENGTH must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	trimmed := strings.TrimSpace(value)
	if d, err := time.ParseDuration(trimmed); err == nil {
		return d
	}
	// Bare integers are read as seconds, matching the deployment docs.
	if n, err := strconv.Atoi(trimmed); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
