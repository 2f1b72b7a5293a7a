package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// devSecret is used when JWT_SECRET is unset so a local checkout runs
// without setup. Never rely on it outside development.
const devSecret = "dev-insecure-secret-change"

// Config holds service settings read from the environment.
type Config struct {
	HTTPAddr string

	DBDSN         string
	DBAutoMigrate bool
	AdminPassword string

	JWTSecret  string
	UploadBase string

	OCRLanguage      string
	OCRMultiPass     bool
	OCRMinConfidence float64

	ScanRatePerSec float64
	ScanBurst      int

	WatchDir     string
	WatchWorkers int
	ProcessedDir string

	LogLevel string
	LogDev   bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8081")
	v.SetDefault("db_dsn", "")
	v.SetDefault("db_auto_migrate", true)
	v.SetDefault("admin_password", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("upload_base", "uploads")
	v.SetDefault("ocr_language", "eng")
	v.SetDefault("ocr_multipass", true)
	v.SetDefault("ocr_min_confidence", 0.15)
	v.SetDefault("scan_rate_per_sec", 2.0)
	v.SetDefault("scan_burst", 4)
	v.SetDefault("watch_dir", "inbox")
	v.SetDefault("watch_workers", 0)
	v.SetDefault("processed_dir", "processed")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_dev", false)
}

// Load reads ./.env when present (without overriding variables already
// set) and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromViper(newViper()), nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return v
}

// FromViper builds a Config from v.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		HTTPAddr:         v.GetString("http_addr"),
		DBDSN:            strings.TrimSpace(v.GetString("db_dsn")),
		DBAutoMigrate:    v.GetBool("db_auto_migrate"),
		AdminPassword:    v.GetString("admin_password"),
		JWTSecret:        v.GetString("jwt_secret"),
		UploadBase:       v.GetString("upload_base"),
		OCRLanguage:      v.GetString("ocr_language"),
		OCRMultiPass:     v.GetBool("ocr_multipass"),
		OCRMinConfidence: v.GetFloat64("ocr_min_confidence"),
		ScanRatePerSec:   v.GetFloat64("scan_rate_per_sec"),
		ScanBurst:        v.GetInt("scan_burst"),
		WatchDir:         v.GetString("watch_dir"),
		WatchWorkers:     v.GetInt("watch_workers"),
		ProcessedDir:     v.GetString("processed_dir"),
		LogLevel:         strings.ToLower(v.GetString("log_level")),
		LogDev:           v.GetBool("log_dev"),
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = devSecret
	}
	return cfg
}

// Languages splits OCR_LANGUAGE ("eng+sin" or "eng,sin") into Tesseract
// language codes.
func (c *Config) Languages() []string {
	f := strings.FieldsFunc(c.OCRLanguage, func(r rune) bool { return r == '+' || r == ',' || r == ' ' })
	if len(f) == 0 {
		return []string{"eng"}
	}
	return f
}

// UsingDevSecret reports whether tokens are signed with the built-in secret.
func (c *Config) UsingDevSecret() bool { return c.JWTSecret == devSecret }

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.HTTPAddr) == "" {
		problems = append(problems, "HTTP_ADDR must not be empty")
	}
	if strings.TrimSpace(c.UploadBase) == "" {
		problems = append(problems, "UPLOAD_BASE must not be empty")
	}
	if c.OCRMinConfidence < 0 || c.OCRMinConfidence > 1 {
		problems = append(problems, fmt.Sprintf("invalid OCR_MIN_CONFIDENCE %v: must be between 0 and 1", c.OCRMinConfidence))
	}
	if c.ScanRatePerSec <= 0 {
		problems = append(problems, fmt.Sprintf("invalid SCAN_RATE_PER_SEC %v: must be positive", c.ScanRatePerSec))
	}
	if c.ScanBurst < 1 {
		problems = append(problems, fmt.Sprintf("invalid SCAN_BURST %d: must be at least 1", c.ScanBurst))
	}
	if c.WatchWorkers < 0 {
		problems = append(problems, fmt.Sprintf("invalid WATCH_WORKERS %d: must not be negative", c.WatchWorkers))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("invalid LOG_LEVEL '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RequireDB fails when no database DSN is configured.
func (c *Config) RequireDB() error {
	if c.DBDSN == "" {
		return errors.New("DB_DSN is not set. This service requires a Postgres DSN in DB_DSN")
	}
	return nil
}
