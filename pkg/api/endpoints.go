package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// ConversationRequest is the body of PUT /conversations/{id}/history.
type ConversationRequest struct {
	AssistantID string            `json:"assistant_id,omitempty"`
	Folder      string            `json:"folder,omitempty"`
	History     []json.RawMessage `json:"history"`
}

// ConversationResponse is the backend's echo for a conversation upsert.
type ConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	NewMessages    int    `json:"new_messages"`
	TotalMessages  int    `json:"total_messages"`
	Created        bool   `json:"created"`
}

// StatusRequest is the body of the session-status/metrics endpoint.
type StatusRequest struct {
	SessionID        string         `json:"session_id"`
	Status           string         `json:"status"` // "started" or "completed"
	Reason           string         `json:"reason,omitempty"`
	AgentName        string         `json:"agent_name,omitempty"`
	WallClockMs      int64          `json:"wall_clock_ms,omitempty"`
	ActiveDurationMs int64          `json:"active_duration_ms,omitempty"`
	MCPSummary       map[string]int `json:"mcp_summary,omitempty"`
}

// PushConversation upserts a conversation's history on the backend.
func (c *Client) PushConversation(ctx context.Context, conversationID string, req ConversationRequest) Result {
	path := fmt.Sprintf("/conversations/%s/history", url.PathEscape(conversationID))
	return c.Push(ctx, http.MethodPut, path, req)
}

// DecodeConversationResponse parses the server echo of a conversation push.
func DecodeConversationResponse(res Result) (*ConversationResponse, error) {
	if len(res.ServerEcho) == 0 {
		return nil, fmt.Errorf("empty server response")
	}
	var out ConversationResponse
	if err := json.Unmarshal(res.ServerEcho, &out); err != nil {
		return nil, fmt.Errorf("decode conversation response: %w", err)
	}
	return &out, nil
}

// PushSessionStatus reports a session lifecycle transition to the backend.
func (c *Client) PushSessionStatus(ctx context.Context, req StatusRequest) Result {
	return c.Push(ctx, http.MethodPost, "/sessions/status", req)
}
