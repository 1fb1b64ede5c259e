package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all service configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
	Gemini GeminiConfig `yaml:"gemini"`
	Limits LimitsConfig `yaml:"limits"`
	Feed   FeedConfig   `yaml:"feed"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	SessionTTL      time.Duration `yaml:"session_ttl"` // idle editor sessions are dropped after this
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL       string `yaml:"url"` // takes precedence over Address when set
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// GeminiConfig holds verdict analysis settings. Analysis is disabled when
// neither APIKey nor Project is set.
type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	Project string `yaml:"project"`
	Region  string `yaml:"region"`
	Model   string `yaml:"model"`
}

// LimitsConfig holds per-IP request limits
type LimitsConfig struct {
	SharePerMinute   int   `yaml:"share_per_minute"`
	AnalyzePerMinute int   `yaml:"analyze_per_minute"`
	EventsPerSecond  int   `yaml:"events_per_second"`
	MaxUploadBytes   int64 `yaml:"max_upload_bytes"`
}

// FeedConfig holds community feed settings
type FeedConfig struct {
	Size     int           `yaml:"size"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load reads configuration from a YAML file. A missing file is not an error:
// defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.SessionTTL == 0 {
		cfg.Server.SessionTTL = 2 * time.Hour
	}
	if cfg.Redis.Address == "" && cfg.Redis.URL == "" {
		cfg.Redis.Address = "localhost:6379"
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "waifu100"
	}
	if cfg.Gemini.Region == "" {
		cfg.Gemini.Region = "europe-west1"
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.5-flash"
	}
	if cfg.Limits.SharePerMinute == 0 {
		cfg.Limits.SharePerMinute = 5
	}
	if cfg.Limits.AnalyzePerMinute == 0 {
		cfg.Limits.AnalyzePerMinute = 5
	}
	if cfg.Limits.EventsPerSecond == 0 {
		cfg.Limits.EventsPerSecond = 60
	}
	if cfg.Limits.MaxUploadBytes == 0 {
		cfg.Limits.MaxUploadBytes = 10 << 20
	}
	if cfg.Feed.Size == 0 {
		cfg.Feed.Size = 50
	}
	if cfg.Feed.CacheTTL == 0 {
		cfg.Feed.CacheTTL = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Address = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Gemini.APIKey = v
	}
	if v := os.Getenv("GCP_PROJECT_ID"); v != "" {
		cfg.Gemini.Project = v
	}
	if v := os.Getenv("GCP_REGION"); v != "" {
		cfg.Gemini.Region = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// AnalysisEnabled reports whether verdict analysis has credentials.
func (c *Config) AnalysisEnabled() bool {
	return c.Gemini.APIKey != "" || c.Gemini.Project != ""
}
