package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/relaykit/relay/errors"
	"github.com/relaykit/relay/pkg/paths"
	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads and parses a Relay configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML, expanding ${VAR}
// references, validating against the embedded schema, and applying defaults.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	// Validate the raw document so unknown keys are caught before they are
	// silently dropped by struct decoding.
	var doc map[string]interface{}
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse config")
	}
	if doc != nil {
		if err := validate(doc); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse config")
	}

	cfg.ApplyDefaults()
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// LoadDefault finds and loads the configuration:
// 1. Project config (relay.yml, walking up from cwd)
// 2. Global config (XDG config dir) as fallback
// Returns an empty defaulted config when neither exists, since hook handling
// must work in repositories that never opted into a local relay.yml.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}

	return LoadFrom(cwd)
}

// LoadFrom loads configuration starting the search from the given directory.
func LoadFrom(startDir string) (*Config, error) {
	path, err := FindConfigFile(startDir)
	if err != nil {
		// No config anywhere: fall back to defaults + env overrides
		cfg := &Config{}
		cfg.ApplyDefaults()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	return Load(path)
}

// FindConfigFile searches for a relay config file from startDir up to the
// filesystem root, then falls back to the global XDG config.
func FindConfigFile(startDir string) (string, error) {
	configNames := []string{
		"relay.yml",
		"relay.yaml",
		".relay.yml",
		".relay.yaml",
	}

	// 1. Search from current directory up to filesystem root
	dir := startDir
	for {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	// 2. Fall back to the global config
	if configDir := paths.ConfigDir(); configDir != "" {
		path := filepath.Join(configDir, "relay.yml")
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}

	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

// applyEnvOverrides lets the environment win over file values for the
// settings operators most often need to flip per-invocation.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RELAY_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("RELAY_API_KEY"); v != "" {
		cfg.API.APIKey = v
	}
	if v := os.Getenv("RELAY_DRY_RUN"); v == "1" || v == "true" {
		cfg.API.DryRun = true
	}
}
