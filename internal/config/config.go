package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains HTTP listener settings.
type Server struct {
	Port           string   `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
	JWTSecret      string   `toml:"jwt_secret"`
	BodyLimitBytes int64    `toml:"body_limit_bytes"`
}

// Database contains Postgres connection settings. An empty URL selects the
// in-memory store where the caller supports it.
type Database struct {
	URL      string `toml:"url"`
	MaxConns int32  `toml:"max_conns"`
}

// Redis contains progress cache settings. Caching is disabled when Addr is empty.
type Redis struct {
	Addr               string `toml:"addr"`
	ProgressTTLSeconds int    `toml:"progress_ttl_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Matching controls how scanned barcodes are bound to order items.
type Matching struct {
	// SerializedTypes lists item type tags counted by distinct barcode.
	SerializedTypes []string `toml:"serialized_types"`
	AllowFallback   bool     `toml:"allow_fallback"`
}

// Station contains settings for the interactive scan station.
type Station struct {
	MaxRetries int `toml:"max_retries"`
}

// Config encapsulates all configuration values for the fulfillment services.
type Config struct {
	Server   Server   `toml:"server"`
	Database Database `toml:"database"`
	Redis    Redis    `toml:"redis"`
	Logging  Logging  `toml:"logging"`
	Matching Matching `toml:"matching"`
	Station  Station  `toml:"station"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Port:           "8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			BodyLimitBytes: 1 << 20,
		},
		Database: Database{MaxConns: 10},
		Redis:    Redis{ProgressTTLSeconds: 30},
		Logging:  Logging{Level: "info", Format: "console"},
		Matching: Matching{
			SerializedTypes: []string{"Jumbo Roll"},
			AllowFallback:   true,
		},
		Station: Station{MaxRetries: 3},
	}
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/fulfillment/config.toml")
}

// Load locates, parses and validates a configuration file, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	projectPath, err := filepath.Abs("fulfillment.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// CreateSample writes the sample configuration to path, creating parent
// directories. It refuses to overwrite an existing file.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}
