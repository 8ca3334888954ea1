package hooks

import (
	"context"

	"github.com/relaykit/relay/config"
	"github.com/sirupsen/logrus"
)

// EventTransformer may rewrite an event's shape or name entirely before the
// router dispatches it. A transformer error is logged and the untransformed
// event is used instead.
type EventTransformer func(Event) (Event, error)

// Plugin is the capability contract an agent integration supplies.
type Plugin interface {
	// Name identifies the agent (e.g. "claude").
	Name() string

	// EventNames maps raw agent event names to canonical ones. Unmapped
	// names pass through unchanged.
	EventNames() map[string]string

	// Transformer returns the plugin's event transformer, or nil.
	Transformer() EventTransformer

	// Adapter returns the transcript-to-queue transformer, or nil when the
	// agent produces no payloads.
	Adapter() SessionAdapter
}

// AdapterContext gives a session adapter what it needs to fill the payload
// queues for one session.
type AdapterContext struct {
	Config      *config.Config
	SessionsDir string
	Log         *logrus.Entry

	// Watermark is the last transcript index already covered by queued or
	// synced payloads; the adapter only queues lines past it.
	Watermark int
}

// AdapterProcessorResult reports one processor queue's share of a
// ProcessSession run.
type AdapterProcessorResult struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	RecordsProcessed int    `json:"records_processed"`
}

// AdapterResult is the aggregate outcome of one transcript transformation.
type AdapterResult struct {
	Success          bool                              `json:"success"`
	TotalRecords     int                               `json:"total_records"`
	Processors       map[string]AdapterProcessorResult `json:"processors"`
	FailedProcessors []string                          `json:"failed_processors,omitempty"`

	// MCPSummary counts MCP tool invocations per server seen in the new
	// transcript lines, when the agent exposes them.
	MCPSummary map[string]int `json:"mcp_summary,omitempty"`
}

// SessionAdapter converts a raw agent transcript into queued payloads for
// the sync processors to consume.
type SessionAdapter interface {
	ProcessSession(ctx context.Context, transcriptPath, sessionID string, actx *AdapterContext) (*AdapterResult, error)
}
