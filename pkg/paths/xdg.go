// Package paths provides XDG-compliant path resolution for Relay.
//
// Resolution order:
// 1. RELAY_HOME (portable root) → $RELAY_HOME/{config,state}
// 2. XDG env vars → $XDG_*_HOME/relay
// 3. Platform defaults → ~/.config/relay, ~/.local/state/relay
package paths

import (
	"os"
	"path/filepath"
)

// getConfigHome returns the base config home directory.
func getConfigHome() string {
	if relayHome := os.Getenv("RELAY_HOME"); relayHome != "" {
		return filepath.Join(relayHome, "config")
	}
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config")
	}
	return ""
}

// getStateHome returns the base state home directory.
func getStateHome() string {
	if relayHome := os.Getenv("RELAY_HOME"); relayHome != "" {
		return filepath.Join(relayHome, "state")
	}
	if xdgStateHome := os.Getenv("XDG_STATE_HOME"); xdgStateHome != "" {
		return xdgStateHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "state")
	}
	return ""
}

// ConfigDir returns the Relay configuration directory.
// Used for the global relay.yml.
func ConfigDir() string {
	base := getConfigHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "relay")
}

// StateDir returns the Relay state directory.
// Session records, payload queues, and logs live under here.
func StateDir() string {
	base := getStateHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "relay")
}

// LogsDir returns the directory for component log files.
func LogsDir() string {
	base := StateDir()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "logs")
}

// SessionsDir returns the directory holding per-session files.
func SessionsDir() string {
	base := StateDir()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "sessions")
}
