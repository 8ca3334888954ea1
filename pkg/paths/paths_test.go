package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelayHomeOverridesXDG(t *testing.T) {
	t.Setenv("RELAY_HOME", "/tmp/relay-home")
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")

	assert.Equal(t, filepath.Join("/tmp/relay-home", "state", "relay"), StateDir())
	assert.Equal(t, filepath.Join("/tmp/relay-home", "config", "relay"), ConfigDir())
}

func TestXDGStateHome(t *testing.T) {
	t.Setenv("RELAY_HOME", "")
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")

	assert.Equal(t, filepath.Join("/tmp/xdg-state", "relay"), StateDir())
	assert.Equal(t, filepath.Join("/tmp/xdg-state", "relay", "sessions"), SessionsDir())
	assert.Equal(t, filepath.Join("/tmp/xdg-state", "relay", "logs"), LogsDir())
}

func TestSessionFileLayout(t *testing.T) {
	dir := "/data/sessions"
	assert.Equal(t, filepath.Join(dir, "abc.json"), SessionFile(dir, "abc"))
	assert.Equal(t, filepath.Join(dir, "abc_metrics.jsonl"), MetricsQueueFile(dir, "abc"))
	assert.Equal(t, filepath.Join(dir, "abc_conversation.jsonl"), ConversationQueueFile(dir, "abc"))
}

func TestCompletedName(t *testing.T) {
	path := "/data/sessions/abc.json"
	completed := CompletedName(path)
	assert.Equal(t, "/data/sessions/completed_abc.json", completed)

	// Idempotent
	assert.Equal(t, completed, CompletedName(completed))
}
