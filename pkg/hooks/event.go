// Package hooks receives the wrapped agent's lifecycle events and
// orchestrates the session store and sync processors.
package hooks

import (
	"encoding/json"

	"github.com/relaykit/relay/errors"
)

// Canonical event names the router dispatches on. Agent plugins normalize
// their raw names to these.
const (
	EventSessionStart      = "SessionStart"
	EventSessionEnd        = "SessionEnd"
	EventStop              = "Stop"
	EventSubagentStop      = "SubagentStop"
	EventUserPromptSubmit  = "UserPromptSubmit"
	EventPreCompact        = "PreCompact"
	EventPermissionRequest = "PermissionRequest"
)

// Event is one lifecycle event as delivered over the CLI's process boundary.
type Event struct {
	SessionID      string `json:"session_id"`
	HookEventName  string `json:"hook_event_name"`
	TranscriptPath string `json:"transcript_path"`

	// Event-specific fields
	Source              string `json:"source,omitempty"` // SessionStart
	Reason              string `json:"reason,omitempty"` // SessionEnd
	CWD                 string `json:"cwd,omitempty"`
	Prompt              string `json:"prompt,omitempty"`                // UserPromptSubmit
	AgentID             string `json:"agent_id,omitempty"`              // SubagentStop
	AgentTranscriptPath string `json:"agent_transcript_path,omitempty"` // SubagentStop
	StopHookActive      bool   `json:"stop_hook_active,omitempty"`      // SubagentStop
}

// ParseEvent decodes an event from its JSON wire form.
func ParseEvent(data []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return Event{}, errors.Wrap(err, errors.ErrCodeEventInvalid, "failed to parse hook event")
	}
	return event, nil
}

// Validate checks the fields every event must carry. Missing any is caller
// misuse, not a condition to tolerate.
func (e Event) Validate() error {
	if e.SessionID == "" {
		return errors.EventInvalid("session_id")
	}
	if e.HookEventName == "" {
		return errors.EventInvalid("hook_event_name")
	}
	if e.TranscriptPath == "" {
		return errors.EventInvalid("transcript_path")
	}
	return nil
}
