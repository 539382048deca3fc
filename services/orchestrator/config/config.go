// Package config loads the orchestrator configuration: defaults, then an
// optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"grievancebot/services/orchestrator/backend"
	"grievancebot/services/orchestrator/langpack"
	"grievancebot/services/orchestrator/session"
)

// DefaultPath is read when ORCHESTRATOR_CONFIG is unset.
const DefaultPath = "orchestrator.yaml"

// Config is the orchestrator configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Backend  BackendConfig  `yaml:"backend"`
	Session  SessionConfig  `yaml:"session"`
	Dialogue DialogueConfig `yaml:"dialogue"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the health endpoint.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// RedisConfig configures the stream consumer.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Group    string `yaml:"group"`
	Consumer string `yaml:"consumer"`
}

// BackendConfig configures the answer service gateway.
type BackendConfig struct {
	URL            string         `yaml:"url"`
	AskBackend     bool           `yaml:"ask_backend"`
	MaxRetries     int            `yaml:"max_retries"`
	RetryDelay     string         `yaml:"retry_delay"`
	HealthInterval string         `yaml:"health_interval"`
	Timeouts       TimeoutsConfig `yaml:"timeouts"`
}

// TimeoutsConfig bounds each backend endpoint.
type TimeoutsConfig struct {
	Query       string `yaml:"query"`
	Status      string `yaml:"status"`
	Rating      string `yaml:"rating"`
	Health      string `yaml:"health"`
	Suggestions string `yaml:"suggestions"`
}

// SessionConfig selects the working-state store.
type SessionConfig struct {
	Store string `yaml:"store"` // memory, redis
	TTL   string `yaml:"ttl"`
}

// DialogueConfig tunes the conversation engine.
type DialogueConfig struct {
	DefaultLanguage string `yaml:"default_language"`
	FollowUpDelay   string `yaml:"follow_up_delay"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8082"},
		Redis: RedisConfig{
			URL:      "redis://localhost:6379",
			Group:    "orchestrator-group",
			Consumer: "orchestrator-1",
		},
		Backend: BackendConfig{
			URL:            "http://localhost:8000",
			MaxRetries:     2,
			RetryDelay:     "1s",
			HealthInterval: "30s",
			Timeouts: TimeoutsConfig{
				Query:       "20s",
				Status:      "15s",
				Rating:      "10s",
				Health:      "5s",
				Suggestions: "10s",
			},
		},
		Session: SessionConfig{Store: string(session.StoreTypeRedis), TTL: "2h"},
		Dialogue: DialogueConfig{
			DefaultLanguage: string(langpack.English),
			FollowUpDelay:   "800ms",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Path returns the config file location.
func Path() string {
	if p := os.Getenv("ORCHESTRATOR_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("SESSION_STORE"); v != "" {
		c.Session.Store = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_RETRIES %q: %w", v, err)
		}
		c.Backend.MaxRetries = n
	}
	if v := os.Getenv("ASK_BACKEND"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ASK_BACKEND %q: %w", v, err)
		}
		c.Backend.AskBackend = b
	}
	return nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("redis url not configured (set REDIS_URL)")
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("backend url not configured (set BACKEND_URL)")
	}
	if c.Backend.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative: %d", c.Backend.MaxRetries)
	}
	switch session.StoreType(c.Session.Store) {
	case session.StoreTypeMemory, session.StoreTypeRedis:
	default:
		return fmt.Errorf("invalid session store: %s (valid: memory, redis)", c.Session.Store)
	}
	if _, err := langpack.ParseLocale(c.Dialogue.DefaultLanguage); err != nil {
		return fmt.Errorf("invalid default_language: %w", err)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	durations := map[string]string{
		"backend.retry_delay":          c.Backend.RetryDelay,
		"backend.health_interval":      c.Backend.HealthInterval,
		"backend.timeouts.query":       c.Backend.Timeouts.Query,
		"backend.timeouts.status":      c.Backend.Timeouts.Status,
		"backend.timeouts.rating":      c.Backend.Timeouts.Rating,
		"backend.timeouts.health":      c.Backend.Timeouts.Health,
		"backend.timeouts.suggestions": c.Backend.Timeouts.Suggestions,
		"session.ttl":                  c.Session.TTL,
		"dialogue.follow_up_delay":     c.Dialogue.FollowUpDelay,
	}
	for name, v := range durations {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetTimeouts returns the per-endpoint backend timeouts.
func (c *Config) GetTimeouts() backend.Timeouts {
	def := backend.DefaultTimeouts()
	t := c.Backend.Timeouts
	return backend.Timeouts{
		Query:       parseDuration(t.Query, def.Query),
		Status:      parseDuration(t.Status, def.Status),
		Rating:      parseDuration(t.Rating, def.Rating),
		Health:      parseDuration(t.Health, def.Health),
		Suggestions: parseDuration(t.Suggestions, def.Suggestions),
	}
}

// GetRetrier returns the backend retry policy.
func (c *Config) GetRetrier() backend.Retrier {
	return backend.Retrier{
		MaxRetries: c.Backend.MaxRetries,
		Delay:      parseDuration(c.Backend.RetryDelay, time.Second),
	}
}

// GetHealthInterval returns the backend poll interval.
func (c *Config) GetHealthInterval() time.Duration {
	return parseDuration(c.Backend.HealthInterval, 30*time.Second)
}

// GetSessionTTL returns the working-state TTL.
func (c *Config) GetSessionTTL() time.Duration {
	return parseDuration(c.Session.TTL, 2*time.Hour)
}

// GetFollowUpDelay returns the pause between consecutive bot messages.
func (c *Config) GetFollowUpDelay() time.Duration {
	return parseDuration(c.Dialogue.FollowUpDelay, 800*time.Millisecond)
}

// GetDefaultLanguage returns the locale new sessions start in.
func (c *Config) GetDefaultLanguage() langpack.Locale {
	l, err := langpack.ParseLocale(c.Dialogue.DefaultLanguage)
	if err != nil {
		return langpack.English
	}
	return l
}
