package processor

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/relaykit/relay/pkg/api"
	"github.com/relaykit/relay/pkg/paths"
	"github.com/relaykit/relay/pkg/session"
)

// conversationPayload is the body a transformer queues for one conversation
// upsert.
type conversationPayload struct {
	ConversationID string            `json:"conversation_id,omitempty"`
	History        []json.RawMessage `json:"history"`
}

// ConversationProcessor pushes queued conversation history chunks to the
// backend. It conventionally runs after metrics.
type ConversationProcessor struct {
	syncing atomic.Bool
}

// NewConversationProcessor creates the conversation sync processor.
func NewConversationProcessor() *ConversationProcessor {
	return &ConversationProcessor{}
}

func (p *ConversationProcessor) Name() string  { return "conversation-sync" }
func (p *ConversationProcessor) Priority() int { return 20 }

// ShouldProcess always applies; an empty queue makes Process a cheap no-op.
func (p *ConversationProcessor) ShouldProcess(record *session.Record) bool {
	return true
}

// Process drains the session's conversation queue.
func (p *ConversationProcessor) Process(ctx context.Context, record *session.Record, pctx *Context) Result {
	// Overlapping hook events (Stop then SessionEnd) must not double-send
	if !p.syncing.CompareAndSwap(false, true) {
		return Result{Success: true, Message: "sync already in progress"}
	}
	defer p.syncing.Store(false)

	log := pctx.Log.WithField("processor", p.Name())

	client, err := pctx.client()
	if err != nil {
		return Result{Success: false, Message: err.Error()}
	}

	// Conversation identity: previously assigned id wins, otherwise the
	// payload's own, otherwise the internal session id seeds a new one.
	sessionConversationID := ""
	if record.Sync != nil {
		sessionConversationID = record.Sync.ConversationID
	}

	var lastConversationID string
	queuePath := resolveQueuePath(paths.ConversationQueueFile(pctx.Store.Dir(), record.SessionID))

	result := syncQueue(ctx, queuePath, "conversations", log, func(ctx context.Context, payload Payload) (api.Result, int) {
		var body conversationPayload
		if err := json.Unmarshal(payload.Payload, &body); err != nil {
			return api.Result{Success: false, Message: "malformed conversation payload: " + err.Error()}, 0
		}

		conversationID := sessionConversationID
		if conversationID == "" {
			conversationID = body.ConversationID
		}
		if conversationID == "" {
			conversationID = record.SessionID
		}

		res := client.PushConversation(ctx, conversationID, api.ConversationRequest{
			AssistantID: pctx.Config.AssistantID,
			Folder:      pctx.Config.Folder,
			History:     body.History,
		})
		if !res.Success {
			return res, 0
		}

		items := len(body.History)
		lastConversationID = conversationID
		if echo, err := api.DecodeConversationResponse(res); err == nil {
			items = echo.NewMessages
			if echo.ConversationID != "" {
				lastConversationID = echo.ConversationID
			}
		}
		// Later payloads in this pass join the conversation the backend chose
		sessionConversationID = lastConversationID
		return res, items
	})

	if result.SyncUpdates != nil {
		result.SyncUpdates.ConversationID = lastConversationID
	}
	return result
}
