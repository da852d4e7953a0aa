package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for the stock server.
type Config struct {
	Port            int           `yaml:"port"`
	MaxWorkers      int           `yaml:"max_workers"`
	LogLevel        string        `yaml:"log_level"`
	OpsAddr         string        `yaml:"ops_addr"`
	AcceptRate      float64       `yaml:"accept_rate"`
	AcceptBurst     int           `yaml:"accept_burst"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RedisAddr       string        `yaml:"redis_addr"`
	RedisPrefix     string        `yaml:"redis_prefix"`
	FeedBuffer      int           `yaml:"feed_buffer"`
	ReportInterval  time.Duration `yaml:"report_interval"`
}

// Default returns the configuration used when nothing is overridden.
// Port 0 lets the OS pick a free port.
func Default() *Config {
	return &Config{
		Port:            0,
		MaxWorkers:      20,
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		RedisPrefix:     "stockserver:stats",
		FeedBuffer:      64,
	}
}

// Load builds the configuration from, in increasing precedence: defaults,
// the YAML file at path (skipped when path is empty), environment variables
// and the positional arguments [port] [maxWorkers]. The result is validated.
func Load(path string, args []string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.loadArgs(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	var err error
	if c.Port, err = getInt("PORT", c.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}
	if c.MaxWorkers, err = getInt("MAX_WORKERS", c.MaxWorkers); err != nil {
		return fmt.Errorf("invalid MAX_WORKERS: %w", err)
	}
	c.LogLevel = getStr("LOG_LEVEL", c.LogLevel)
	c.OpsAddr = getStr("OPS_ADDR", c.OpsAddr)
	if c.AcceptRate, err = getFloat("ACCEPT_RATE", c.AcceptRate); err != nil {
		return fmt.Errorf("invalid ACCEPT_RATE: %w", err)
	}
	if c.AcceptBurst, err = getInt("ACCEPT_BURST", c.AcceptBurst); err != nil {
		return fmt.Errorf("invalid ACCEPT_BURST: %w", err)
	}
	if c.ReadTimeout, err = getDuration("READ_TIMEOUT", c.ReadTimeout); err != nil {
		return fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}
	if c.WriteTimeout, err = getDuration("WRITE_TIMEOUT", c.WriteTimeout); err != nil {
		return fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}
	if c.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}
	c.RedisAddr = getStr("REDIS_ADDR", c.RedisAddr)
	c.RedisPrefix = getStr("REDIS_PREFIX", c.RedisPrefix)
	if c.FeedBuffer, err = getInt("FEED_BUFFER", c.FeedBuffer); err != nil {
		return fmt.Errorf("invalid FEED_BUFFER: %w", err)
	}
	if c.ReportInterval, err = getDuration("REPORT_INTERVAL", c.ReportInterval); err != nil {
		return fmt.Errorf("invalid REPORT_INTERVAL: %w", err)
	}
	return nil
}

// loadArgs applies the positional arguments: listen port, then the maximum
// number of concurrent workers.
func (c *Config) loadArgs(args []string) error {
	if len(args) > 2 {
		return fmt.Errorf("too many arguments: want at most [port] [maxWorkers], got %d", len(args))
	}
	if len(args) > 0 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port argument %q: %w", args[0], err)
		}
		c.Port = port
	}
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid max workers argument %q: %w", args[1], err)
		}
		c.MaxWorkers = n
	}
	return nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be in [0, 65535], got %d", c.Port))
	}
	if c.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("max_workers must be >= 1, got %d", c.MaxWorkers))
	}
	if !isValidLogLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid log_level: %q, must be one of: debug, info, warn, error", c.LogLevel))
	}
	if c.AcceptRate < 0 {
		errs = append(errs, fmt.Errorf("accept_rate must be >= 0, got %v", c.AcceptRate))
	}
	if c.AcceptBurst < 0 {
		errs = append(errs, fmt.Errorf("accept_burst must be >= 0, got %d", c.AcceptBurst))
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 || c.ReportInterval < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.FeedBuffer < 1 {
		errs = append(errs, fmt.Errorf("feed_buffer must be >= 1, got %d", c.FeedBuffer))
	}
	return errors.Join(errs...)
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
