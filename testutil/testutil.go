// Package testutil provides shared fixtures for relay tests.
package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaykit/relay/pkg/paths"
)

// TempHome points RELAY_HOME at a fresh temp directory for the duration of
// the test, isolating config, state, and session files.
func TempHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("RELAY_HOME", dir)
	return dir
}

// RandomSessionID returns a hex id unique enough for test fixtures.
func RandomSessionID(t *testing.T) string {
	t.Helper()
	buf := make([]byte, 8)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	return "test-" + hex.EncodeToString(buf)
}

// WriteSessionRecord persists a session record fixture into dir the way the
// store lays it out on disk.
func WriteSessionRecord(t *testing.T, dir string, record interface{}) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))

	data, err := json.MarshalIndent(record, "", "  ")
	require.NoError(t, err)

	var probe struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(data, &probe))
	require.NotEmpty(t, probe.SessionID, "record fixture needs a session_id")

	require.NoError(t, os.WriteFile(paths.SessionFile(dir, probe.SessionID), append(data, '\n'), 0644))
}

// WriteQueueLine appends one raw JSONL payload line to a queue file,
// creating parent directories as needed.
func WriteQueueLine(t *testing.T, path string, payload interface{}) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer file.Close()
	_, err = file.Write(append(data, '\n'))
	require.NoError(t, err)
}

// WriteTranscript writes an agent transcript fixture with one JSON document
// per line and returns its path.
func WriteTranscript(t *testing.T, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
