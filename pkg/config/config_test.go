package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "ble", cfg.Transport)
	assert.Equal(t, 115200, cfg.BaudRate)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 20, cfg.WriteChunkSize)
	assert.Equal(t, 10*time.Millisecond, cfg.WriteDelay)
	assert.Equal(t, 50, cfg.HistorySize)
	assert.Equal(t, 100, cfg.LogLimit)
	assert.Equal(t, 256, cfg.QueueSize)
	assert.Equal(t, "auto", cfg.UI)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.Empty(t, cfg.LogFile)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "altimon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
transport: serial
baud_rate: 9600
history_size: 120
write_delay: 25ms
ui: plain
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "serial", cfg.Transport)
	assert.Equal(t, 9600, cfg.BaudRate)
	assert.Equal(t, 120, cfg.HistorySize)
	assert.Equal(t, 25*time.Millisecond, cfg.WriteDelay)
	assert.Equal(t, "plain", cfg.UI)

	// untouched keys keep their defaults
	assert.Equal(t, 100, cfg.LogLimit)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("history_size: [1, 2"), 0o600))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "failed to parse config")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("transport: zigbee\n"), 0o600))
	_, err = Load(invalid)
	assert.ErrorContains(t, err, "transport")
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{
			name:     "creates logger with debug level",
			logLevel: "debug",
			expected: logrus.DebugLevel,
		},
		{
			name:     "creates logger with info level",
			logLevel: "info",
			expected: logrus.InfoLevel,
		},
		{
			name:     "creates logger with warn level",
			logLevel: "warn",
			expected: logrus.WarnLevel,
		},
		{
			name:     "falls back to info on unknown level",
			logLevel: "chatty",
			expected: logrus.InfoLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel: tt.logLevel,
			}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.expected, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestConfig_NewLoggerWithFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "altimon.log")

	logger := cfg.NewLogger()

	out, ok := logger.Out.(*lumberjack.Logger)
	require.True(t, ok, "file output MUST rotate")
	assert.Equal(t, cfg.LogFile, out.Filename)
	assert.Equal(t, 10, out.MaxSize)

	logger.Info("hello")
	require.NoError(t, out.Close())

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
			valid:  true,
		},
		{
			name:   "json format is valid",
			mutate: func(c *Config) { c.OutputFormat = "json" },
			valid:  true,
		},
		{
			name:   "unknown format",
			mutate: func(c *Config) { c.OutputFormat = "xml" },
			valid:  false,
		},
		{
			name:   "unknown ui",
			mutate: func(c *Config) { c.UI = "gui" },
			valid:  false,
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.LogLevel = "loud" },
			valid:  false,
		},
		{
			name:   "zero history",
			mutate: func(c *Config) { c.HistorySize = 0 },
			valid:  false,
		},
		{
			name:   "zero chunk size",
			mutate: func(c *Config) { c.WriteChunkSize = 0 },
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultConfig()
	}
}

func BenchmarkConfig_NewLogger(b *testing.B) {
	cfg := DefaultConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cfg.NewLogger()
	}
}
