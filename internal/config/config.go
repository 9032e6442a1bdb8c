// Package config loads the receiver configuration from command-line
// overrides, environment variables (optionally from a .env file), a YAML file
// and defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultBind         = "127.0.0.1:28081"
	DefaultDatabasePath = "./webmention-receiver.sqlite3"
	DefaultConfigFile   = "config.yaml"
	DefaultEnvFile      = ".env"
)

// Config holds the application configuration. It is loaded once and not
// modified afterwards.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Server   ServerConfig
	Store    StoreConfig
	Receiver ReceiverConfig
	Metrics  MetricsConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Bind         string        // host:port (default: 127.0.0.1:28081)
	ReadTimeout  time.Duration // default: 15s
	WriteTimeout time.Duration // default: 15s
	IdleTimeout  time.Duration // default: 60s
}

// StoreConfig holds database configuration.
type StoreConfig struct {
	DatabasePath string
	BackupDir    string // default: directory of DatabasePath
}

// ReceiverConfig holds webmention ingestion configuration.
type ReceiverConfig struct {
	// ExternalURL is the public base URL mention links are built from.
	ExternalURL string
	// AllowedDomains restricts which domains may receive mentions. Nil means
	// unrestricted; a non-nil empty list rejects every domain.
	AllowedDomains []string
	// RateLimitPerMinute caps receiver submissions per client IP; 0 disables.
	RateLimitPerMinute int
	RateLimitBurst     int
}

// MetricsConfig holds Prometheus configuration.
type MetricsConfig struct {
	Enabled bool
}

// Overrides carries values given on the command line. Empty fields fall
// through to the next source.
type Overrides struct {
	ConfigFile     string
	EnvFile        string
	Environment    string
	LogLevel       string
	Bind           string
	ExternalURL    string
	DatabasePath   string
	BackupDir      string
	AllowedDomains []string
}

// fileConfig mirrors the YAML file layout.
type fileConfig struct {
	Environment    string   `yaml:"environment"`
	LogLevel       string   `yaml:"log_level"`
	ExternalURL    string   `yaml:"external_url"`
	Bind           string   `yaml:"bind"`
	AllowedDomains []string `yaml:"allowed_domains"`
	Database       string   `yaml:"database"`
	BackupDir      string   `yaml:"backup_dir"`
	RateLimit      struct {
		PerMinute string `yaml:"per_minute"`
		Burst     string `yaml:"burst"`
	} `yaml:"rate_limit"`
	Server struct {
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		IdleTimeout  string `yaml:"idle_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled string `yaml:"enabled"`
	} `yaml:"metrics"`
}

// Load builds a validated Config.
func Load(o Overrides) (*Config, error) {
	envFile := firstNonEmpty(o.EnvFile, DefaultEnvFile)
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(envFile); err != nil && (o.EnvFile != "" || !errors.Is(err, os.ErrNotExist)) {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	configFile := getConfigValue(o.ConfigFile, "WEBMENTION_CONFIG", "", "")
	file, err := readFile(firstNonEmpty(configFile, DefaultConfigFile), configFile != "")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(o.Environment, "ENV", file.Environment, "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(o.LogLevel, "LOG_LEVEL", file.LogLevel, "info"),
		},
		Server: ServerConfig{
			Bind: getConfigValue(o.Bind, "WEBMENTION_BIND", file.Bind, DefaultBind),
		},
		Store: StoreConfig{
			DatabasePath: getConfigValue(o.DatabasePath, "WEBMENTION_DB_PATH", file.Database, DefaultDatabasePath),
			BackupDir:    getConfigValue(o.BackupDir, "WEBMENTION_BACKUP_DIR", file.BackupDir, ""),
		},
		Receiver: ReceiverConfig{
			ExternalURL:    strings.TrimRight(getConfigValue(o.ExternalURL, "WEBMENTION_EXTERNAL_URL", file.ExternalURL, ""), "/"),
			AllowedDomains: allowedDomains(o.AllowedDomains, file.AllowedDomains),
		},
	}

	if cfg.Receiver.RateLimitPerMinute, err = getIntConfigValue("WEBMENTION_RATE_LIMIT_PER_MINUTE", file.RateLimit.PerMinute, 30); err != nil {
		return nil, err
	}
	if cfg.Receiver.RateLimitBurst, err = getIntConfigValue("WEBMENTION_RATE_LIMIT_BURST", file.RateLimit.Burst, 10); err != nil {
		return nil, err
	}
	cfg.Metrics.Enabled = getBoolConfigValue("WEBMENTION_METRICS_ENABLED", file.Metrics.Enabled, true)

	timeouts := []struct {
		dst      *time.Duration
		envKey   string
		fileVal  string
		fallback string
	}{
		{&cfg.Server.ReadTimeout, "WEBMENTION_READ_TIMEOUT", file.Server.ReadTimeout, "15s"},
		{&cfg.Server.WriteTimeout, "WEBMENTION_WRITE_TIMEOUT", file.Server.WriteTimeout, "15s"},
		{&cfg.Server.IdleTimeout, "WEBMENTION_IDLE_TIMEOUT", file.Server.IdleTimeout, "60s"},
	}
	for _, t := range timeouts {
		raw := getConfigValue("", t.envKey, t.fileVal, t.fallback)
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", t.envKey, raw, err)
		}
		*t.dst = d
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Receiver.ExternalURL == "" {
		return errors.New("external_url is required")
	}
	u, err := url.Parse(c.Receiver.ExternalURL)
	if err != nil {
		return fmt.Errorf("invalid external_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("external_url must be an absolute http(s) URL, got %q", c.Receiver.ExternalURL)
	}
	if strings.HasSuffix(c.Receiver.ExternalURL, "/") {
		return errors.New("external_url must not end with a slash")
	}

	if _, _, err := net.SplitHostPort(c.Server.Bind); err != nil {
		return fmt.Errorf("invalid bind address %q: %w", c.Server.Bind, err)
	}

	if c.Store.DatabasePath == "" {
		return errors.New("database path cannot be empty")
	}

	if c.Receiver.RateLimitPerMinute < 0 || c.Receiver.RateLimitBurst < 0 {
		return errors.New("rate limit values must not be negative")
	}

	return nil
}

// IsProduction reports whether the app runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) expandPaths() error {
	db, err := expandPath(c.Store.DatabasePath, DefaultDatabasePath)
	if err != nil {
		return fmt.Errorf("invalid database path: %w", err)
	}
	c.Store.DatabasePath = db

	backupDir, err := expandPath(c.Store.BackupDir, filepath.Dir(db))
	if err != nil {
		return fmt.Errorf("invalid backup dir: %w", err)
	}
	c.Store.BackupDir = backupDir
	return nil
}

// readFile parses the YAML file at path. A missing file is only an error when
// it was asked for explicitly.
func readFile(path string, required bool) (*fileConfig, error) {
	var fc fileConfig

	data, err := os.ReadFile(path) //#nosec G304 -- operator-supplied config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return &fc, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &fc, nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is used instead.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		path = defaultPath
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// allowedDomains applies flag > env > file precedence to the allow-list.
// WEBMENTION_ALLOWED_DOMAINS is a comma-separated list.
func allowedDomains(flagValue, fileValue []string) []string {
	if len(flagValue) > 0 {
		return flagValue
	}
	if env, ok := os.LookupEnv("WEBMENTION_ALLOWED_DOMAINS"); ok && strings.TrimSpace(env) != "" {
		var out []string
		for _, d := range strings.Split(env, ",") {
			if d = strings.TrimSpace(d); d != "" {
				out = append(out, d)
			}
		}
		return out
	}
	return fileValue
}

// getConfigValue returns the first non-empty value from flag, env var, file
// or default.
func getConfigValue(flagValue, envKey, fileValue, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return firstNonEmpty(fileValue, defaultValue)
}

// getBoolConfigValue accepts "true", "1", "yes" (case-insensitive) as true.
func getBoolConfigValue(envKey, fileValue string, defaultValue bool) bool {
	strValue := getConfigValue("", envKey, fileValue, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

func getIntConfigValue(envKey, fileValue string, defaultValue int) (int, error) {
	strValue := getConfigValue("", envKey, fileValue, "")
	if strValue == "" {
		return defaultValue, nil
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return result, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
