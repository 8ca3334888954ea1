package paths

import (
	"path/filepath"
	"strings"
)

// CompletedPrefix marks a session's on-disk files as closed. It is prepended
// to the base name of the record and queue files as the final act of
// SessionEnd handling.
const CompletedPrefix = "completed_"

// SessionFile returns the path of the session metadata record inside dir.
func SessionFile(dir, sessionID string) string {
	return filepath.Join(dir, sessionID+".json")
}

// MetricsQueueFile returns the path of the metrics payload queue inside dir.
func MetricsQueueFile(dir, sessionID string) string {
	return filepath.Join(dir, sessionID+"_metrics.jsonl")
}

// ConversationQueueFile returns the path of the conversation payload queue
// inside dir.
func ConversationQueueFile(dir, sessionID string) string {
	return filepath.Join(dir, sessionID+"_conversation.jsonl")
}

// CompletedName returns the path with the completed prefix applied to its
// base name. Applying it twice is a no-op.
func CompletedName(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if strings.HasPrefix(base, CompletedPrefix) {
		return path
	}
	return filepath.Join(dir, CompletedPrefix+base)
}
