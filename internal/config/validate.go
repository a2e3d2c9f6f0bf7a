package config

import (
	"errors"
	"fmt"
	"strconv"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if c.Database.MaxConns < 0 {
		return errors.New("database.max_conns must not be negative")
	}
	if c.Redis.ProgressTTLSeconds <= 0 {
		return errors.New("redis.progress_ttl_seconds must be positive")
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Station.MaxRetries < 0 {
		return errors.New("station.max_retries must not be negative")
	}
	return nil
}

func (c *Config) validateServer() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("server.port: invalid value %q", c.Server.Port)
	}
	if c.Server.BodyLimitBytes <= 0 {
		return errors.New("server.body_limit_bytes must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
