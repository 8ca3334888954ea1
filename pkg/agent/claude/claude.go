// Package claude integrates the Claude Code agent: it maps the agent's hook
// event names to canonical ones and converts its transcript files into
// queued sync payloads.
package claude

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/relaykit/relay/errors"
	"github.com/relaykit/relay/pkg/hooks"
	"github.com/relaykit/relay/pkg/jsonl"
	"github.com/relaykit/relay/pkg/paths"
	"github.com/relaykit/relay/pkg/processor"
	"github.com/relaykit/relay/pkg/session"
)

// Name is the agent name this plugin handles.
const Name = "claude"

// maxTranscriptLine bounds a single transcript line; assistant messages with
// large tool results can run long.
const maxTranscriptLine = 16 * 1024 * 1024

// Plugin is the built-in Claude Code agent plugin.
type Plugin struct{}

// New creates the claude plugin.
func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Name() string { return Name }

// EventNames maps Claude Code's raw hook names to the canonical set. Most
// are already canonical; Notification carries permission prompts.
func (p *Plugin) EventNames() map[string]string {
	return map[string]string{
		"SessionStart":     hooks.EventSessionStart,
		"SessionEnd":       hooks.EventSessionEnd,
		"Stop":             hooks.EventStop,
		"SubagentStop":     hooks.EventSubagentStop,
		"UserPromptSubmit": hooks.EventUserPromptSubmit,
		"PreCompact":       hooks.EventPreCompact,
		"Notification":     hooks.EventPermissionRequest,
	}
}

// Transformer normalizes the shapes Claude Code is sloppy about: transcript
// paths may arrive with a leading ~, and SessionEnd sometimes omits a reason.
func (p *Plugin) Transformer() hooks.EventTransformer {
	return func(event hooks.Event) (hooks.Event, error) {
		event.TranscriptPath = expandHome(event.TranscriptPath)
		event.AgentTranscriptPath = expandHome(event.AgentTranscriptPath)
		if event.HookEventName == hooks.EventSessionEnd && event.Reason == "" {
			event.Reason = "other"
		}
		return event, nil
	}
}

func (p *Plugin) Adapter() hooks.SessionAdapter {
	return &transcriptAdapter{}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// transcriptLine is the subset of a Claude Code transcript entry the adapter
// cares about. Lines of other types (summaries, system notes) are skipped.
type transcriptLine struct {
	Type    string `json:"type"`
	IsMeta  bool   `json:"isMeta,omitempty"`
	Message *struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

// historyEntry is one message in the shape the backend's conversation
// endpoint accepts.
type historyEntry struct {
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// contentBlock is just enough structure to count tool uses inside an
// assistant message's content array.
type contentBlock struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type transcriptAdapter struct{}

// ProcessSession reads the transcript lines past the watermark and queues
// one conversation payload plus one metrics payload covering the batch.
// Lines already represented in the queue (queued but not yet synced) are
// skipped as well, so repeated Stop events never duplicate work.
func (a *transcriptAdapter) ProcessSession(ctx context.Context, transcriptPath, sessionID string, actx *hooks.AdapterContext) (*hooks.AdapterResult, error) {
	log := actx.Log.WithField("transcript", transcriptPath)

	convPath := paths.ConversationQueueFile(actx.SessionsDir, sessionID)
	floor, err := queuedWatermark(convPath, actx.Watermark)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(transcriptPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEventFailed, "failed to open transcript")
	}
	defer file.Close()

	var (
		history   []json.RawMessage
		indices   []int
		userMsgs  int
		agentMsgs int
		toolUses  int
		mcpUses   map[string]int
	)
	// History indices must track physical line numbers, so the transcript
	// is scanned here rather than through the lenient queue reader.
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxTranscriptLine)
	for i := -1; scanner.Scan(); {
		i++
		if i <= floor {
			continue
		}
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var line transcriptLine
		if err := json.Unmarshal(raw, &line); err != nil {
			log.WithField("line", i).Debug("Skipping unparseable transcript line")
			continue
		}
		if line.IsMeta || line.Message == nil {
			continue
		}
		switch line.Type {
		case "user":
			userMsgs++
		case "assistant":
			agentMsgs++
			for _, block := range toolUseBlocks(line.Message.Content) {
				toolUses++
				if server, ok := mcpServer(block.Name); ok {
					if mcpUses == nil {
						mcpUses = make(map[string]int)
					}
					mcpUses[server]++
				}
			}
		default:
			continue
		}

		entry, err := json.Marshal(historyEntry{
			Role:      line.Message.Role,
			Content:   line.Message.Content,
			Timestamp: line.Timestamp,
		})
		if err != nil {
			log.WithError(err).WithField("line", i).Warn("Skipping unmarshalable transcript line")
			continue
		}
		history = append(history, entry)
		indices = append(indices, i)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEventFailed, "failed to read transcript")
	}

	result := &hooks.AdapterResult{
		Success:    true,
		Processors: make(map[string]hooks.AdapterProcessorResult),
		MCPSummary: mcpUses,
	}
	if len(history) == 0 {
		result.Processors["conversation"] = hooks.AdapterProcessorResult{
			Success: true,
			Message: "no new messages",
		}
		return result, nil
	}

	now := session.NowMillis()

	convBody, err := json.Marshal(map[string]interface{}{"history": history})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeQueueWrite, "failed to encode conversation payload")
	}
	if err := jsonl.Append(convPath, processor.Payload{
		Timestamp:      now,
		Status:         processor.PayloadPending,
		Payload:        convBody,
		HistoryIndices: indices,
	}); err != nil {
		result.FailedProcessors = append(result.FailedProcessors, "conversation")
		result.Processors["conversation"] = hooks.AdapterProcessorResult{
			Success: false,
			Message: err.Error(),
		}
	} else {
		result.TotalRecords += len(history)
		result.Processors["conversation"] = hooks.AdapterProcessorResult{
			Success:          true,
			Message:          fmt.Sprintf("queued %d messages", len(history)),
			RecordsProcessed: len(history),
		}
	}

	metricsBody, err := json.Marshal(map[string]interface{}{
		"message_count":      userMsgs + agentMsgs,
		"user_messages":      userMsgs,
		"assistant_messages": agentMsgs,
		"tool_uses":          toolUses,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeQueueWrite, "failed to encode metrics payload")
	}
	if err := jsonl.Append(paths.MetricsQueueFile(actx.SessionsDir, sessionID), processor.Payload{
		Timestamp: now,
		Status:    processor.PayloadPending,
		Payload:   metricsBody,
	}); err != nil {
		result.FailedProcessors = append(result.FailedProcessors, "metrics")
		result.Processors["metrics"] = hooks.AdapterProcessorResult{
			Success: false,
			Message: err.Error(),
		}
	} else {
		result.TotalRecords++
		result.Processors["metrics"] = hooks.AdapterProcessorResult{
			Success:          true,
			Message:          "queued metrics batch",
			RecordsProcessed: 1,
		}
	}

	result.Success = len(result.FailedProcessors) == 0
	return result, nil
}

// queuedWatermark raises the sync watermark by the transcript indices already
// sitting in the queue file, synced or not.
func queuedWatermark(queuePath string, watermark int) (int, error) {
	queued, err := jsonl.ReadAll[processor.Payload](queuePath)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeQueueRead, "failed to read conversation queue")
	}
	floor := watermark
	for _, payload := range queued {
		for _, idx := range payload.HistoryIndices {
			if idx > floor {
				floor = idx
			}
		}
	}
	return floor, nil
}

// toolUseBlocks extracts the tool_use blocks from an assistant message's
// content. String content (plain text messages) yields none.
func toolUseBlocks(content json.RawMessage) []contentBlock {
	var blocks []contentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return nil
	}
	uses := blocks[:0]
	for _, block := range blocks {
		if block.Type == "tool_use" {
			uses = append(uses, block)
		}
	}
	return uses
}

// mcpServer extracts the server segment from an MCP tool name of the form
// mcp__<server>__<tool>.
func mcpServer(toolName string) (string, bool) {
	rest, ok := strings.CutPrefix(toolName, "mcp__")
	if !ok {
		return "", false
	}
	server, _, ok := strings.Cut(rest, "__")
	if !ok || server == "" {
		return "", false
	}
	return server, true
}
