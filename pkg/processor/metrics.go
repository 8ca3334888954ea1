package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/relaykit/relay/pkg/api"
	"github.com/relaykit/relay/pkg/paths"
	"github.com/relaykit/relay/pkg/session"
)

// MetricsProcessor pushes queued metrics batches to the backend. It runs
// before conversation sync.
type MetricsProcessor struct {
	syncing atomic.Bool
}

// NewMetricsProcessor creates the metrics sync processor.
func NewMetricsProcessor() *MetricsProcessor {
	return &MetricsProcessor{}
}

func (p *MetricsProcessor) Name() string  { return "metrics-sync" }
func (p *MetricsProcessor) Priority() int { return 10 }

// ShouldProcess always applies; an empty queue makes Process a cheap no-op.
func (p *MetricsProcessor) ShouldProcess(record *session.Record) bool {
	return true
}

// Process drains the session's metrics queue.
func (p *MetricsProcessor) Process(ctx context.Context, record *session.Record, pctx *Context) Result {
	if !p.syncing.CompareAndSwap(false, true) {
		return Result{Success: true, Message: "sync already in progress"}
	}
	defer p.syncing.Store(false)

	log := pctx.Log.WithField("processor", p.Name())

	client, err := pctx.client()
	if err != nil {
		return Result{Success: false, Message: err.Error()}
	}

	queuePath := resolveQueuePath(paths.MetricsQueueFile(pctx.Store.Dir(), record.SessionID))

	result := syncQueue(ctx, queuePath, "metrics batches", log, func(ctx context.Context, payload Payload) (api.Result, int) {
		// Metrics batches are opaque to the processor; the transformer
		// already shaped them for the endpoint.
		body := json.RawMessage(payload.Payload)
		res := client.Push(ctx, http.MethodPost, "/sessions/"+record.SessionID+"/metrics", body)
		if !res.Success {
			return res, 0
		}
		return res, 1
	})

	// The sync watermark on the session record belongs to conversation sync
	result.SyncUpdates = nil
	return result
}
