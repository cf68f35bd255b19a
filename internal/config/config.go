// Package config provides centralized configuration management for the
// gateway. Configuration is loaded from environment variables with
// sensible defaults. Required configuration that is missing will cause
// the application to fail fast with helpful error messages.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string
	Port int

	// Storage configuration
	DatabasePath string

	// Twitch OAuth configuration
	TwitchClientID     string
	TwitchClientSecret string
	TwitchRedirectURL  string
	TwitchScopes       string

	// Streamlabs OAuth configuration
	StreamlabsClientID     string
	StreamlabsClientSecret string
	StreamlabsRedirectURL  string
	StreamlabsScopes       string

	// Protocol configuration
	ClientVersion string

	// Logging configuration
	LogLevel string
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Default values.
const (
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 8080
	DefaultDatabasePath  = "vrctv.db"
	DefaultClientVersion = "1.0.0"
	DefaultLogLevel      = "info"
)

// Load reads configuration from environment variables and returns a
// Config. It applies defaults for optional values and validates the
// configuration. Returns an error if validation fails.
func Load() (*Config, error) {
	cfg := &Config{
		Host:          DefaultHost,
		Port:          DefaultPort,
		DatabasePath:  DefaultDatabasePath,
		ClientVersion: DefaultClientVersion,
		LogLevel:      DefaultLogLevel,
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}

	return cfg, nil
}

// loadFromEnv populates the config from environment variables.
func (c *Config) loadFromEnv() error {
	var parseErrors ValidationErrors

	// Server configuration
	if v := os.Getenv("HOST"); v != "" {
		c.Host = v
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "PORT",
				Message: fmt.Sprintf("invalid port number: %q (must be an integer)", v),
			})
		} else {
			c.Port = port
		}
	}

	// Storage configuration
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabasePath = v
	}

	// Twitch OAuth configuration
	c.TwitchClientID = os.Getenv("TWITCH_CLIENT")
	c.TwitchClientSecret = os.Getenv("TWITCH_SECRET")
	c.TwitchRedirectURL = os.Getenv("TWITCH_REDIRECT")
	c.TwitchScopes = os.Getenv("TWITCH_SCOPES")

	// Streamlabs OAuth configuration
	c.StreamlabsClientID = os.Getenv("STREAMLABS_CLIENT")
	c.StreamlabsClientSecret = os.Getenv("STREAMLABS_SECRET")
	c.StreamlabsRedirectURL = os.Getenv("STREAMLABS_REDIRECT")
	c.StreamlabsScopes = os.Getenv("STREAMLABS_SCOPES")

	// Protocol configuration
	if v := os.Getenv("CLIENT_VERSION"); v != "" {
		c.ClientVersion = v
	}

	// Logging configuration
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	if len(parseErrors) > 0 {
		return parseErrors
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "PORT",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Port),
		})
	}

	if c.DatabasePath == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "database path cannot be empty",
		})
	}

	if c.TwitchClientID == "" {
		errs = append(errs, ValidationError{Field: "TWITCH_CLIENT", Message: "required"})
	}
	if c.TwitchClientSecret == "" {
		errs = append(errs, ValidationError{Field: "TWITCH_SECRET", Message: "required"})
	}
	if c.TwitchRedirectURL == "" {
		errs = append(errs, ValidationError{Field: "TWITCH_REDIRECT", Message: "required"})
	}

	if c.StreamlabsClientID == "" {
		errs = append(errs, ValidationError{Field: "STREAMLABS_CLIENT", Message: "required"})
	}
	if c.StreamlabsClientSecret == "" {
		errs = append(errs, ValidationError{Field: "STREAMLABS_SECRET", Message: "required"})
	}
	if c.StreamlabsRedirectURL == "" {
		errs = append(errs, ValidationError{Field: "STREAMLABS_REDIRECT", Message: "required"})
	}

	return errs
}

// Addr returns the host:port pair the HTTP server should listen on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MustLoad loads configuration and, if it fails, prints the errors to
// stderr and exits the process with status 1.
// Use this for application startup where configuration errors are fatal.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: failed to load configuration\n\n%s\n\nSee the environment variable reference for configuration options.\n", err)
		os.Exit(1)
	}
	return cfg
}
