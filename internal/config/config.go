// Package config loads fable configuration. Configuration is read once
// at startup and is immutable for the life of the process; changing the
// file requires a restart.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/viper"
)

// Load reads configuration from cfgFile (or the default search path),
// applies FABLE_-prefixed environment overrides and validates the result.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("server", defaults.Server)
	v.SetDefault("store", defaults.Store)
	v.SetDefault("openai", defaults.OpenAI)
	v.SetDefault("storage", defaults.Storage)
	v.SetDefault("workers", defaults.Workers)

	v.SetEnvPrefix("FABLE")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.fable")
	}

	// The config file is optional; defaults plus env cover the common case.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.OpenAI.APIKey = ResolveEnvVars(cfg.OpenAI.APIKey)
	cfg.Storage.AuthToken = ResolveEnvVars(cfg.Storage.AuthToken)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot run with. Validation
// happens at load time so misconfiguration fails startup, not the first
// generation request.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("config: server.port is required")
	}
	if c.Store.Path == "" {
		return errors.New("config: store.path is required")
	}
	if c.OpenAI.RPM <= 0 {
		return fmt.Errorf("config: openai.rpm must be positive, got %d", c.OpenAI.RPM)
	}
	if c.Workers.Narrative < 0 || c.Workers.Illustrate < 0 || c.Workers.Finalize < 0 {
		return errors.New("config: worker counts must not be negative")
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

// ResolveEnvVars expands a ${ENV_VAR} reference into its value. Literal
// strings pass through unchanged; an unset variable resolves to "".
func ResolveEnvVars(s string) string {
	m := envVarPattern.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	return os.Getenv(m[1])
}
