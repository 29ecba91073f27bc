package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Job store backends.
const (
	StoreMemory   = "memory"
	StoreBadger   = "badger"
	StorePostgres = "postgres"
)

type Config struct {
	NodeID    string `yaml:"node_id"`
	HTTPPort  int    `yaml:"http_port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	SeqURL    string `yaml:"seq_url"`

	UploadDir    string `yaml:"upload_dir"`
	ProcessedDir string `yaml:"processed_dir"`
	DataDir      string `yaml:"data_dir"`

	JobStore    string `yaml:"job_store"`
	DatabaseURL string `yaml:"database_url"`

	WorkerCount    int   `yaml:"worker_count"`
	JobTimeout     int   `yaml:"job_timeout_seconds"`
	PreviewDefault int   `yaml:"preview_default"`
	PreviewMax     int   `yaml:"preview_max"`
	UploadMaxBytes int64 `yaml:"upload_max_bytes"`

	ShutdownTimeout int `yaml:"shutdown_timeout_seconds"`
}

func Default() *Config {
	return &Config{
		NodeID:          "node-default",
		HTTPPort:        8000,
		LogLevel:        "info",
		LogFormat:       "text",
		UploadDir:       "uploads",
		ProcessedDir:    "processed",
		DataDir:         "data",
		JobStore:        StoreMemory,
		WorkerCount:     4,
		JobTimeout:      300,
		PreviewDefault:  100,
		PreviewMax:      10000,
		UploadMaxBytes:  50 << 20,
		ShutdownTimeout: 30,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables, and validates the result.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("yaml parse: %w", err)
		}
	}

	cfg.NodeID = getEnv("NODE_ID", cfg.NodeID)
	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.SeqURL = getEnv("SEQ_URL", cfg.SeqURL)
	cfg.UploadDir = getEnv("UPLOAD_DIR", cfg.UploadDir)
	cfg.ProcessedDir = getEnv("PROCESSED_DIR", cfg.ProcessedDir)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.JobStore = strings.ToLower(getEnv("JOB_STORE", cfg.JobStore))
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.WorkerCount = getEnvInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.JobTimeout = getEnvInt("JOB_TIMEOUT_SECONDS", cfg.JobTimeout)
	cfg.PreviewDefault = getEnvInt("PREVIEW_DEFAULT", cfg.PreviewDefault)
	cfg.PreviewMax = getEnvInt("PREVIEW_MAX", cfg.PreviewMax)
	cfg.UploadMaxBytes = int64(getEnvInt("UPLOAD_MAX_BYTES", int(cfg.UploadMaxBytes)))
	cfg.ShutdownTimeout = getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", cfg.ShutdownTimeout)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []string

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Sprintf("HTTP_PORT must be between 1 and 65535, got %d", c.HTTPPort))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if c.UploadDir == "" || c.ProcessedDir == "" {
		errs = append(errs, "UPLOAD_DIR and PROCESSED_DIR are required")
	}

	switch c.JobStore {
	case StoreMemory:
	case StoreBadger:
		if c.DataDir == "" {
			errs = append(errs, "DATA_DIR is required when JOB_STORE=badger")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required when JOB_STORE=postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("JOB_STORE must be memory, badger or postgres, got %q", c.JobStore))
	}

	if c.WorkerCount < 1 {
		errs = append(errs, fmt.Sprintf("WORKER_COUNT must be at least 1, got %d", c.WorkerCount))
	}
	if c.JobTimeout < 0 {
		errs = append(errs, fmt.Sprintf("JOB_TIMEOUT_SECONDS must not be negative, got %d", c.JobTimeout))
	}
	if c.PreviewMax < 1 {
		errs = append(errs, fmt.Sprintf("PREVIEW_MAX must be at least 1, got %d", c.PreviewMax))
	}
	if c.PreviewDefault < 1 || c.PreviewDefault > c.PreviewMax {
		errs = append(errs, fmt.Sprintf("PREVIEW_DEFAULT must be between 1 and PREVIEW_MAX, got %d", c.PreviewDefault))
	}
	if c.UploadMaxBytes < 0 {
		errs = append(errs, "UPLOAD_MAX_BYTES must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func (c *Config) JobTimeoutDuration() time.Duration {
	return time.Duration(c.JobTimeout) * time.Second
}

func (c *Config) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(c.ShutdownTimeout) * time.Second
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
