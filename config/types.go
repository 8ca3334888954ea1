package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Config is the parsed relay.yml.
type Config struct {
	// Version of the config format.
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// API configures the remote telemetry backend.
	API APIConfig `yaml:"api" json:"api"`

	// Folder is the backend folder/project slug conversations are filed under.
	Folder string `yaml:"folder,omitempty" json:"folder,omitempty"`

	// AssistantID identifies the backend assistant conversations belong to.
	AssistantID string `yaml:"assistant_id,omitempty" json:"assistant_id,omitempty"`

	// Extensions captures all other top-level keys for extensibility
	// (e.g. the "logging" section).
	Extensions map[string]interface{} `yaml:",inline" json:"-"`
}

// APIConfig holds the remote backend connection settings.
type APIConfig struct {
	// BaseURL is the root of the backend API, e.g. https://relay.example.com/api.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// APIKey is the pre-shared identity header value. Takes precedence over
	// Cookie when both are set.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// Cookie is the session-cookie header value used when no API key is
	// configured.
	Cookie string `yaml:"cookie,omitempty" json:"cookie,omitempty"`

	// TimeoutSeconds bounds each individual request attempt.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`

	// RetryAttempts is the maximum number of attempts per payload.
	RetryAttempts int `yaml:"retry_attempts,omitempty" json:"retry_attempts,omitempty"`

	// DryRun skips network calls and logs would-be payloads instead.
	DryRun bool `yaml:"dry_run,omitempty" json:"dry_run,omitempty"`
}

// Defaults applied after load.
const (
	DefaultTimeoutSeconds = 30
	DefaultRetryAttempts  = 3
)

// ApplyDefaults fills zero-valued API settings with their defaults.
func (c *Config) ApplyDefaults() {
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.API.RetryAttempts <= 0 {
		c.API.RetryAttempts = DefaultRetryAttempts
	}
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded relay.yml into the provided target struct. The target must be a pointer.
// This provides a type-safe way for extensions to access their
// custom configuration sections.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// It's not an error if the key doesn't exist.
		// The target struct will simply remain zero-valued.
		return nil
	}

	// Use mapstructure to decode the generic map[string]interface{}
	// into the strongly-typed target struct. We configure it to use
	// `yaml` tags for consistency.
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "yaml",
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
