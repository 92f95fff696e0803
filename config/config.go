package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all boards configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	Forum    ForumConfig    `yaml:"forum"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the store. Driver is postgres or sqlite; URL is a
// pgx connection string or a sqlite file name.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

type SessionConfig struct {
	Lifetime     string `yaml:"lifetime"`
	CookieName   string `yaml:"cookie_name"`
	SecureCookie bool   `yaml:"secure_cookie"`
}

type ForumConfig struct {
	TopicsPerPage int `yaml:"topics_per_page"`
	PostsPerPage  int `yaml:"posts_per_page"`
	BcryptCost    int `yaml:"bcrypt_cost"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     "15s",
			WriteTimeout:    "30s",
			ShutdownTimeout: "10s",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			URL:    "boards.db",
		},
		Session: SessionConfig{
			Lifetime:   "336h",
			CookieName: "boards_session",
		},
		Forum: ForumConfig{
			TopicsPerPage: 10,
			PostsPerPage:  10,
			BcryptCost:    12,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment variables override either.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		c.Database.URL = url
		if c.Database.Driver == "sqlite" && strings.HasPrefix(url, "postgres") {
			c.Database.Driver = "postgres"
		}
	}
	if driver := os.Getenv("BOARDS_DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if addr := os.Getenv("BOARDS_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv("BOARDS_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database url is empty")
	}
	if c.Forum.TopicsPerPage < 1 || c.Forum.PostsPerPage < 1 {
		return fmt.Errorf("page sizes must be positive")
	}
	return nil
}

func duration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func (c *Config) GetReadTimeout() time.Duration {
	return duration(c.Server.ReadTimeout, 15*time.Second)
}

func (c *Config) GetWriteTimeout() time.Duration {
	return duration(c.Server.WriteTimeout, 30*time.Second)
}

func (c *Config) GetShutdownTimeout() time.Duration {
	return duration(c.Server.ShutdownTimeout, 10*time.Second)
}

func (c *Config) GetSessionLifetime() time.Duration {
	return duration(c.Session.Lifetime, 14*24*time.Hour)
}
