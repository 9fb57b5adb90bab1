// Package config handles loading and resolving pitboss configuration.
// Resolution order (first non-empty value wins):
//  1. CLI flags (--token, --base-url, ...)
//  2. Environment variables (PITBOSS_*), optionally seeded from a .env file
//  3. config.json in the current working directory
//  4. Built-in defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultConfigFile   = "config.json"
	DefaultEnvFile      = ".env"
	DefaultFormat       = "table"
	DefaultBaseURL      = "https://backoffice.example.com/api/v1/"
	DefaultTimeout      = 30 * time.Second
	DefaultRate         = 5.0
	DefaultPageSize     = 100
	DefaultHierarchyTTL = 30 * time.Minute
	DefaultCatalogTTL   = 12 * time.Hour
	DefaultAuthSettle   = 300 * time.Millisecond
	DefaultListenAddr   = ":8080"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "console"
	DefaultCurrency     = "EUR"
	DefaultTimezone     = "Local"

	EnvBaseURL  = "PITBOSS_BASE_URL"
	EnvToken    = "PITBOSS_TOKEN"
	EnvDBPath   = "PITBOSS_DB_PATH"
	EnvLogLevel = "PITBOSS_LOG_LEVEL"
)

// File is the on-disk representation of config.json.
type File struct {
	BaseURL       string  `json:"base_url"`
	DefaultFormat string  `json:"default_format"`
	Timeout       string  `json:"timeout"`
	Rate          float64 `json:"rate"`
	PageSize      int     `json:"page_size"`
	DBPath        string  `json:"db_path"`
	HierarchyTTL  string  `json:"hierarchy_ttl"`
	CatalogTTL    string  `json:"catalog_ttl"`
	AuthSettle    string  `json:"auth_settle"`
	ListenAddr    string  `json:"listen_addr"`
	LogLevel      string  `json:"log_level"`
	LogFormat     string  `json:"log_format"`
	Currency      string  `json:"currency"`
	Timezone      string  `json:"timezone"`
}

// Config is the fully-resolved runtime configuration.
// All callers use this struct; the File is only read during loading.
type Config struct {
	BaseURL      string        `validate:"required,url"`
	Token        string        // explicit token; usually restored from the store instead
	Format       string        `validate:"oneof=table json jsonl csv tsv md"`
	Timeout      time.Duration `validate:"gt=0"`
	Rate         float64       `validate:"gt=0"`
	PageSize     int           `validate:"gte=1,lte=1000"`
	DBPath       string        `validate:"required"`
	HierarchyTTL time.Duration `validate:"gt=0"`
	CatalogTTL   time.Duration `validate:"gt=0"`
	AuthSettle   time.Duration `validate:"gte=0"`
	ListenAddr   string        `validate:"required"`
	LogLevel     string        `validate:"oneof=trace debug info warn error disabled"`
	LogFormat    string        `validate:"oneof=console json"`
	Currency     string        `validate:"len=3"`
	Timezone     string        `validate:"required"`
	ConfigPath   string        // path of the config.json that was loaded (empty if none found)

	// Runtime overrides set from CLI flags after Load()
	Quiet   bool
	Verbose bool
	Debug   bool
}

// Load resolves configuration from all sources.
// flagToken is the value of --token (empty string if not set).
func Load(flagToken string) (*Config, error) {
	cfg := defaults()

	// Layer 1: config.json (lowest priority)
	if f, path, err := loadFile(); err == nil {
		applyFile(cfg, f, path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	// Layer 2: environment, seeded from .env without overriding real vars
	_ = godotenv.Load(DefaultEnvFile)
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}

	// Layer 3: CLI flag (highest priority)
	if flagToken != "" {
		cfg.Token = flagToken
	}

	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DBPath = filepath.Join(home, ".pitboss", "pitboss.db")
		}
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		BaseURL:      DefaultBaseURL,
		Format:       DefaultFormat,
		Timeout:      DefaultTimeout,
		Rate:         DefaultRate,
		PageSize:     DefaultPageSize,
		HierarchyTTL: DefaultHierarchyTTL,
		CatalogTTL:   DefaultCatalogTTL,
		AuthSettle:   DefaultAuthSettle,
		ListenAddr:   DefaultListenAddr,
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		Currency:     DefaultCurrency,
		Timezone:     DefaultTimezone,
	}
}

var validate = validator.New()

// Validate returns an error describing every invalid field.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msg := "invalid configuration:"
			for _, fe := range verrs {
				msg += fmt.Sprintf("\n  %s: failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
			}
			return errors.New(msg)
		}
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone used for hourly bucketing.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// RedactedToken returns the token with most characters replaced by asterisks.
// Safe for logging and display.
func RedactedToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}

// loadFile attempts to read config.json from the current working directory.
// A missing file is reported with an error wrapping os.ErrNotExist.
func loadFile() (*File, string, error) {
	path, err := filepath.Abs(DefaultConfigFile)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("config.json not found at %s: %w", path, os.ErrNotExist)
		}
		return nil, "", fmt.Errorf("reading config.json: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parsing config.json: %w", err)
	}
	return &f, path, nil
}

// applyFile copies values from a parsed File into cfg,
// skipping any fields that are zero/empty.
func applyFile(cfg *Config, f *File, path string) {
	cfg.ConfigPath = path
	if f.BaseURL != "" {
		cfg.BaseURL = f.BaseURL
	}
	if f.DefaultFormat != "" {
		cfg.Format = f.DefaultFormat
	}
	setDuration(&cfg.Timeout, f.Timeout)
	setDuration(&cfg.HierarchyTTL, f.HierarchyTTL)
	setDuration(&cfg.CatalogTTL, f.CatalogTTL)
	setDuration(&cfg.AuthSettle, f.AuthSettle)
	if f.Rate > 0 {
		cfg.Rate = f.Rate
	}
	if f.PageSize > 0 {
		cfg.PageSize = f.PageSize
	}
	if f.DBPath != "" {
		cfg.DBPath = f.DBPath
	}
	if f.ListenAddr != "" {
		cfg.ListenAddr = f.ListenAddr
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.LogFormat != "" {
		cfg.LogFormat = f.LogFormat
	}
	if f.Currency != "" {
		cfg.Currency = f.Currency
	}
	if f.Timezone != "" {
		cfg.Timezone = f.Timezone
	}
}

func setDuration(dst *time.Duration, s string) {
	if s == "" {
		return
	}
	if d, err := time.ParseDuration(s); err == nil {
		*dst = d
	}
}

// Template returns a File populated with sensible defaults, suitable for
// writing an initial config.json via `pitboss config init`.
func Template() File {
	return File{
		BaseURL:       DefaultBaseURL,
		DefaultFormat: DefaultFormat,
		Timeout:       "30s",
		Rate:          DefaultRate,
		PageSize:      DefaultPageSize,
		HierarchyTTL:  "30m",
		CatalogTTL:    "12h",
		AuthSettle:    "300ms",
		ListenAddr:    DefaultListenAddr,
		LogLevel:      DefaultLogLevel,
		LogFormat:     DefaultLogFormat,
		Currency:      DefaultCurrency,
		Timezone:      DefaultTimezone,
	}
}

// WriteFile serialises a File to the given path.
func WriteFile(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}
