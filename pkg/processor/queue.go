package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/relaykit/relay/pkg/api"
	"github.com/relaykit/relay/pkg/jsonl"
	"github.com/relaykit/relay/pkg/paths"
	"github.com/relaykit/relay/pkg/session"
	"github.com/sirupsen/logrus"
)

// PayloadStatus is the sync state of one queue entry.
type PayloadStatus string

const (
	PayloadPending PayloadStatus = "pending"
	PayloadSuccess PayloadStatus = "success"
	PayloadFailed  PayloadStatus = "failed"
)

// Payload is one unit of work awaiting sync. Its timestamp doubles as its
// identity within the queue file for a rewrite pass.
type Payload struct {
	Timestamp      int64           `json:"timestamp"`
	Status         PayloadStatus   `json:"status"`
	Payload        json.RawMessage `json:"payload"`
	HistoryIndices []int           `json:"history_indices,omitempty"`
	Response       *api.Result     `json:"response,omitempty"`
}

// resolveQueuePath prefers the live queue file, falling back to the
// completed-prefixed name a finalized session leaves behind so a manual
// sync can still drain it.
func resolveQueuePath(path string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	completed := paths.CompletedName(path)
	if _, err := os.Stat(completed); err == nil {
		return completed
	}
	return path
}

// pushFunc sends one payload and reports the API result plus how many new
// items the backend accepted.
type pushFunc func(ctx context.Context, payload Payload) (api.Result, int)

// syncQueue is the shared sync pass over one payload queue file:
// read, filter pending, push each in file order (one failure never aborts the
// batch), then atomically rewrite the queue with individually-successful
// payloads marked success. Failed payloads stay pending for the next pass.
func syncQueue(ctx context.Context, path, noun string, log *logrus.Entry, push pushFunc) Result {
	records, err := jsonl.ReadAll[Payload](path)
	if err != nil {
		return Result{Success: false, Message: fmt.Sprintf("read queue: %v", err)}
	}

	pending := 0
	for _, record := range records {
		if record.Status == PayloadPending {
			pending++
		}
	}
	if pending == 0 {
		return Result{
			Success:  true,
			Message:  fmt.Sprintf("no pending %s", noun),
			Metadata: map[string]interface{}{"total": len(records)},
		}
	}

	synced := 0
	itemsSynced := 0
	maxHistoryIndex := -1
	outcomes := make(map[int64]*api.Result, pending)

	for _, record := range records {
		if record.Status != PayloadPending {
			continue
		}

		res, items := push(ctx, record)
		outcome := res
		outcomes[record.Timestamp] = &outcome

		if !res.Success {
			log.WithFields(logrus.Fields{
				"timestamp": record.Timestamp,
				"message":   res.Message,
			}).Warn("Payload sync failed, continuing with next payload")
			continue
		}

		synced++
		itemsSynced += items
		for _, idx := range record.HistoryIndices {
			if idx > maxHistoryIndex {
				maxHistoryIndex = idx
			}
		}
	}

	// Rewrite the whole queue, flipping only individually-successful
	// payloads; the rest remain pending so the next hook event retries them.
	for i := range records {
		outcome, attempted := outcomes[records[i].Timestamp]
		if !attempted {
			continue
		}
		records[i].Response = outcome
		if outcome.Success {
			records[i].Status = PayloadSuccess
		}
	}
	if err := jsonl.WriteAtomic(path, records); err != nil {
		return Result{Success: false, Message: fmt.Sprintf("rewrite queue: %v", err)}
	}

	result := Result{
		Success: synced == pending,
		Message: fmt.Sprintf("Synced %d/%d %s", synced, pending, noun),
		Metadata: map[string]interface{}{
			"total":   len(records),
			"pending": pending,
			"synced":  synced,
		},
	}
	if synced > 0 {
		result.SyncUpdates = &session.SyncUpdates{}
		result.SyncUpdates.MessagesSynced = itemsSynced
		result.SyncUpdates.SyncAttempts = 1
		if maxHistoryIndex >= 0 {
			result.SyncUpdates.LastSyncedHistoryIndex = maxHistoryIndex
		}
	}
	return result
}
