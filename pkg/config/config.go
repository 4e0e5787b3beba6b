package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel      string `yaml:"log_level" default:"info"`
	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb" default:"10"`
	LogMaxBackups int    `yaml:"log_max_backups" default:"3"`
	LogMaxAgeDays int    `yaml:"log_max_age_days" default:"28"`

	Transport      string        `yaml:"transport" default:"ble"` // ble, serial
	BaudRate       int           `yaml:"baud_rate" default:"115200"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	WriteChunkSize int           `yaml:"write_chunk_size" default:"20"`
	WriteDelay     time.Duration `yaml:"write_delay" default:"10ms"`

	HistorySize int `yaml:"history_size" default:"50"`
	LogLimit    int `yaml:"log_limit" default:"100"`
	QueueSize   int `yaml:"queue_size" default:"256"`

	UI           string `yaml:"ui" default:"auto"` // auto, tui, plain
	ChartAddr    string `yaml:"chart_addr"`
	OutputFormat string `yaml:"output_format" default:"table"` // table, json
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enumerations and ranges.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch c.Transport {
	case "ble", "serial":
	default:
		return fmt.Errorf("transport: unsupported value %q (expected ble or serial)", c.Transport)
	}
	switch c.UI {
	case "auto", "tui", "plain":
	default:
		return fmt.Errorf("ui: unsupported value %q (expected auto, tui or plain)", c.UI)
	}
	switch c.OutputFormat {
	case "table", "json":
	default:
		return fmt.Errorf("output_format: unsupported value %q (expected table or json)", c.OutputFormat)
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be > 0")
	}
	if c.WriteChunkSize <= 0 {
		return fmt.Errorf("write_chunk_size must be > 0")
	}
	if c.HistorySize <= 0 || c.LogLimit <= 0 || c.QueueSize <= 0 {
		return fmt.Errorf("history_size, log_limit and queue_size must be > 0")
	}
	if c.ConnectTimeout <= 0 || c.ScanTimeout <= 0 {
		return fmt.Errorf("connect_timeout and scan_timeout must be > 0")
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance. With LogFile set, output
// goes to a size-rotated file instead of stderr.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	if c.LogFile != "" {
		logger.SetOutput(&lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    c.LogMaxSizeMB,
			MaxBackups: c.LogMaxBackups,
			MaxAge:     c.LogMaxAgeDays,
		})
	}

	return logger
}
