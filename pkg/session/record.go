// Package session owns the per-session metadata record: its creation on
// SessionStart, active-duration accounting, sync watermarks, and the
// terminal rename of its on-disk files.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a session record.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// CorrelationStatus reports whether the wrapped agent's own session identity
// was linked to this record.
type CorrelationStatus string

const (
	CorrelationMatched   CorrelationStatus = "matched"
	CorrelationUnmatched CorrelationStatus = "unmatched"
)

// Correlation links the external agent's session/transcript identity to the
// internally generated session id.
type Correlation struct {
	Status           CorrelationStatus `json:"status"`
	AgentSessionID   string            `json:"agent_session_id,omitempty"`
	AgentSessionFile string            `json:"agent_session_file,omitempty"`
	RetryCount       int               `json:"retry_count,omitempty"`
}

// SyncState is the conversation processor's watermark into the transcript.
type SyncState struct {
	LastSyncedHistoryIndex int    `json:"last_synced_history_index"`
	ConversationID         string `json:"conversation_id,omitempty"`
	TotalMessagesSynced    int    `json:"total_messages_synced"`
	TotalSyncAttempts      int    `json:"total_sync_attempts"`
	LastSyncAt             int64  `json:"last_sync_at,omitempty"` // epoch ms
}

// Record is the session metadata stored on disk, one per CLI invocation.
type Record struct {
	SessionID        string      `json:"session_id"`
	AgentName        string      `json:"agent_name"`
	Provider         string      `json:"provider"`
	Project          string      `json:"project,omitempty"`
	Model            string      `json:"model,omitempty"`
	StartTime        int64       `json:"start_time"` // epoch ms
	EndTime          int64       `json:"end_time,omitempty"`
	WorkingDirectory string      `json:"working_directory"`
	GitBranch        string      `json:"git_branch,omitempty"`
	Status           Status      `json:"status"`
	ActiveDurationMs int64       `json:"active_duration_ms"`
	Correlation      Correlation `json:"correlation"`
	Sync             *SyncState  `json:"sync,omitempty"`

	// MCPSummary counts tool invocations per MCP server, best-effort.
	MCPSummary map[string]int `json:"mcp_summary,omitempty"`

	// ActivityStartedAt is the open "busy" interval's start (epoch ms), zero
	// when no interval is open. Persisted so an interval survives separate
	// hook process invocations.
	ActivityStartedAt int64 `json:"activity_started_at,omitempty"`
}

// SyncUpdates is what a sync processor reports back for the router to
// persist into the record's Sync state. Processors never write the record
// themselves.
type SyncUpdates struct {
	ConversationID         string `json:"conversation_id,omitempty"`
	LastSyncedHistoryIndex int    `json:"last_synced_history_index"`
	MessagesSynced         int    `json:"messages_synced"`
	SyncAttempts           int    `json:"sync_attempts"`
}

// NewSessionID generates the internal session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// NowMillis returns the current wall clock as epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
