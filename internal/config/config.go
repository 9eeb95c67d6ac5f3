package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the automation engine process.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Risk      RiskConfig      `yaml:"risk"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Executor  ExecutorConfig  `yaml:"executor"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds the commerce platform's read-only connection.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig enables the shared cooldown store. When disabled, cooldowns
// live in process memory.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// RiskConfig holds scan thresholds and cadence.
type RiskConfig struct {
	ScanIntervalMinutes int     `yaml:"scan_interval_minutes"`
	ChurnThreshold      float64 `yaml:"churn_threshold"`
	CartHoursThreshold  int     `yaml:"cart_hours_threshold"`
	InactiveDays        int     `yaml:"inactive_days"`
	LowStockThreshold   int     `yaml:"low_stock_threshold"`
}

// ScanInterval returns the scan interval as a duration.
func (r RiskConfig) ScanInterval() time.Duration {
	return time.Duration(r.ScanIntervalMinutes) * time.Minute
}

// SchedulerConfig holds the calendar scheduler settings.
type SchedulerConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

// PollInterval returns the poll interval as a duration.
func (s SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// ExecutorConfig holds settings for the default logging executor.
type ExecutorConfig struct {
	CostPerMessage float64 `yaml:"cost_per_message"`
}

// Load reads the YAML config file, then applies environment overrides.
// A missing file is not an error; defaults and environment carry it.
func Load(path string) (*Config, error) {
	// Best effort: a .env file is a developer convenience, not a requirement.
	_ = godotenv.Load()

	cfg := defaults()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Risk: RiskConfig{
			ScanIntervalMinutes: 15,
			ChurnThreshold:      0.4,
			CartHoursThreshold:  24,
			InactiveDays:        30,
			LowStockThreshold:   10,
		},
		Scheduler: SchedulerConfig{PollIntervalSeconds: 60},
		Executor:  ExecutorConfig{CostPerMessage: 0.001},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}
