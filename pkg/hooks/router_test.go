package hooks_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykit/relay/config"
	"github.com/relaykit/relay/errors"
	"github.com/relaykit/relay/pkg/api"
	"github.com/relaykit/relay/pkg/hooks"
	"github.com/relaykit/relay/pkg/jsonl"
	"github.com/relaykit/relay/pkg/paths"
	"github.com/relaykit/relay/pkg/processor"
	"github.com/relaykit/relay/pkg/session"
)

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

// testPlugin drives the router with controllable behavior per test.
type testPlugin struct {
	name        string
	names       map[string]string
	transformer hooks.EventTransformer
	adapter     hooks.SessionAdapter
}

func (p *testPlugin) Name() string {
	if p.name == "" {
		return "claude"
	}
	return p.name
}
func (p *testPlugin) EventNames() map[string]string       { return p.names }
func (p *testPlugin) Transformer() hooks.EventTransformer { return p.transformer }
func (p *testPlugin) Adapter() hooks.SessionAdapter       { return p.adapter }

// queueingAdapter queues one conversation payload per new transcript line
// past the watermark, mimicking the real transcript adapters.
type queueingAdapter struct{}

func (a *queueingAdapter) ProcessSession(ctx context.Context, transcriptPath, sessionID string, actx *hooks.AdapterContext) (*hooks.AdapterResult, error) {
	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")

	queuePath := paths.ConversationQueueFile(actx.SessionsDir, sessionID)
	queued, err := jsonl.ReadAll[processor.Payload](queuePath)
	if err != nil {
		return nil, err
	}
	floor := actx.Watermark
	for _, p := range queued {
		for _, idx := range p.HistoryIndices {
			if idx > floor {
				floor = idx
			}
		}
	}

	count := 0
	for i, line := range lines {
		if i <= floor || line == "" {
			continue
		}
		body, _ := json.Marshal(map[string]interface{}{
			"history": []json.RawMessage{json.RawMessage(line)},
		})
		if err := jsonl.Append(queuePath, processor.Payload{
			Timestamp:      session.NowMillis() + int64(i),
			Status:         processor.PayloadPending,
			Payload:        body,
			HistoryIndices: []int{i},
		}); err != nil {
			return nil, err
		}
		count++
	}

	return &hooks.AdapterResult{
		Success:      true,
		TotalRecords: count,
		Processors: map[string]hooks.AdapterProcessorResult{
			"conversation": {Success: true, RecordsProcessed: count},
		},
	}, nil
}

// backend is a fake sync backend recording what it receives.
type backend struct {
	mu       sync.Mutex
	statuses []api.StatusRequest
	puts     int
	server   *httptest.Server
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/sessions/status":
			var req api.StatusRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			b.statuses = append(b.statuses, req)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/history"):
			b.puts++
			var req api.ConversationRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(api.ConversationResponse{
				ConversationID: "conv-42",
				NewMessages:    len(req.History),
				TotalMessages:  len(req.History),
			})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/metrics"):
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *backend) statusFor(status string) *api.StatusRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.statuses {
		if b.statuses[i].Status == status {
			return &b.statuses[i]
		}
	}
	return nil
}

type routerFixture struct {
	router     *hooks.Router
	store      *session.Store
	backend    *backend
	sessionDir string
	transcript string
}

func newRouterFixture(t *testing.T, plugin hooks.Plugin) *routerFixture {
	t.Helper()

	b := newBackend(t)
	cfg := &config.Config{
		API: config.APIConfig{
			BaseURL:        b.server.URL,
			TimeoutSeconds: 5,
			RetryAttempts:  1,
		},
	}
	client, err := api.NewClient(cfg.API, testLog())
	require.NoError(t, err)

	sessionDir := t.TempDir()
	store := session.NewStore(sessionDir, testLog())
	pipeline := processor.NewPipeline(testLog(),
		processor.NewConversationProcessor(),
		processor.NewMetricsProcessor(),
	)

	transcript := filepath.Join(t.TempDir(), "transcript.jsonl")
	require.NoError(t, os.WriteFile(transcript, []byte(
		`{"role":"user","content":"hello"}`+"\n",
	), 0o644))

	return &routerFixture{
		router:     hooks.NewRouter(cfg, plugin, store, pipeline, client, testLog()),
		store:      store,
		backend:    b,
		sessionDir: sessionDir,
		transcript: transcript,
	}
}

func (f *routerFixture) appendTranscript(t *testing.T, line string) {
	t.Helper()
	file, err := os.OpenFile(f.transcript, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = file.WriteString(line + "\n")
	require.NoError(t, err)
	require.NoError(t, file.Close())
}

func (f *routerFixture) event(name string) hooks.Event {
	return hooks.Event{
		SessionID:      "ext-1",
		HookEventName:  name,
		TranscriptPath: f.transcript,
	}
}

func TestSessionLifecycle(t *testing.T) {
	f := newRouterFixture(t, &testPlugin{adapter: &queueingAdapter{}})
	ctx := context.Background()

	// SessionStart creates an active record correlated with the agent's id.
	require.NoError(t, f.router.ProcessEvent(ctx, f.event(hooks.EventSessionStart)))

	records, err := f.store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	record := records[0]
	assert.Equal(t, session.StatusActive, record.Status)
	assert.Equal(t, "claude", record.AgentName)
	assert.Equal(t, session.CorrelationMatched, record.Correlation.Status)
	assert.Equal(t, "ext-1", record.Correlation.AgentSessionID)
	assert.Equal(t, f.transcript, record.Correlation.AgentSessionFile)
	assert.NotEqual(t, "ext-1", record.SessionID)

	started := f.backend.statusFor("started")
	require.NotNil(t, started)
	assert.Equal(t, record.SessionID, started.SessionID)

	// Stop queues the transcript line and syncs it.
	require.NoError(t, f.router.ProcessEvent(ctx, f.event(hooks.EventStop)))

	queue, err := jsonl.ReadAll[processor.Payload](paths.ConversationQueueFile(f.sessionDir, record.SessionID))
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, processor.PayloadSuccess, queue[0].Status)

	synced, err := f.store.Load(record.SessionID)
	require.NoError(t, err)
	require.NotNil(t, synced.Sync)
	assert.Equal(t, 0, synced.Sync.LastSyncedHistoryIndex)
	assert.Equal(t, "conv-42", synced.Sync.ConversationID)

	// A second Stop with a grown transcript syncs only the new line.
	f.appendTranscript(t, `{"role":"assistant","content":"hi"}`)
	require.NoError(t, f.router.ProcessEvent(ctx, f.event(hooks.EventStop)))

	queue, err = jsonl.ReadAll[processor.Payload](paths.ConversationQueueFile(f.sessionDir, record.SessionID))
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, processor.PayloadSuccess, queue[1].Status)
	assert.Equal(t, []int{1}, queue[1].HistoryIndices)

	// SessionEnd completes, pings, and renames the on-disk files last.
	end := f.event(hooks.EventSessionEnd)
	end.Reason = "exit"
	require.NoError(t, f.router.ProcessEvent(ctx, end))

	_, err = os.Stat(paths.SessionFile(f.sessionDir, record.SessionID))
	assert.True(t, os.IsNotExist(err), "original record file should be renamed")

	data, err := os.ReadFile(paths.CompletedName(paths.SessionFile(f.sessionDir, record.SessionID)))
	require.NoError(t, err)
	var final session.Record
	require.NoError(t, json.Unmarshal(data, &final))
	assert.Equal(t, session.StatusCompleted, final.Status)
	assert.Equal(t, 1, final.Sync.LastSyncedHistoryIndex)

	completed := f.backend.statusFor("completed")
	require.NotNil(t, completed)
	assert.Equal(t, "exit", completed.Reason)
	assert.GreaterOrEqual(t, completed.WallClockMs, int64(0))
}

func TestProcessEventValidation(t *testing.T) {
	f := newRouterFixture(t, &testPlugin{})
	ctx := context.Background()

	err := f.router.ProcessEvent(ctx, hooks.Event{HookEventName: "Stop", TranscriptPath: "/t"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeEventInvalid, errors.GetCode(err))

	err = f.router.ProcessEvent(ctx, hooks.Event{SessionID: "s", TranscriptPath: "/t"})
	require.Error(t, err)

	err = f.router.ProcessEvent(ctx, hooks.Event{SessionID: "s", HookEventName: "Stop"})
	require.Error(t, err)
}

func TestProcessEventIgnoresUnknownNames(t *testing.T) {
	f := newRouterFixture(t, &testPlugin{})
	err := f.router.ProcessEvent(context.Background(), f.event("SomeFutureEvent"))
	require.NoError(t, err)

	records, err := f.store.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestProcessEventNormalizesNames(t *testing.T) {
	f := newRouterFixture(t, &testPlugin{
		names: map[string]string{"session.begin": hooks.EventSessionStart},
	})
	require.NoError(t, f.router.ProcessEvent(context.Background(), f.event("session.begin")))

	records, err := f.store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, session.StatusActive, records[0].Status)
}

func TestTransformerErrorFallsBack(t *testing.T) {
	f := newRouterFixture(t, &testPlugin{
		transformer: func(event hooks.Event) (hooks.Event, error) {
			return hooks.Event{}, fmt.Errorf("boom")
		},
	})
	// The untransformed event still dispatches.
	require.NoError(t, f.router.ProcessEvent(context.Background(), f.event(hooks.EventSessionStart)))

	records, err := f.store.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestTransformerPanicFallsBack(t *testing.T) {
	f := newRouterFixture(t, &testPlugin{
		transformer: func(event hooks.Event) (hooks.Event, error) {
			panic("bad transformer")
		},
	})
	require.NoError(t, f.router.ProcessEvent(context.Background(), f.event(hooks.EventSessionStart)))

	records, err := f.store.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestStopForUnknownSessionIsNoOp(t *testing.T) {
	f := newRouterFixture(t, &testPlugin{adapter: &queueingAdapter{}})
	err := f.router.ProcessEvent(context.Background(), f.event(hooks.EventStop))
	require.NoError(t, err)

	entries, err := os.ReadDir(f.sessionDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubagentStopUsesAgentTranscript(t *testing.T) {
	f := newRouterFixture(t, &testPlugin{adapter: &queueingAdapter{}})
	ctx := context.Background()
	require.NoError(t, f.router.ProcessEvent(ctx, f.event(hooks.EventSessionStart)))

	agentTranscript := filepath.Join(t.TempDir(), "agent.jsonl")
	require.NoError(t, os.WriteFile(agentTranscript, []byte(
		`{"role":"assistant","content":"subagent says hi"}`+"\n",
	), 0o644))

	event := f.event(hooks.EventSubagentStop)
	event.AgentID = "agent-7"
	event.AgentTranscriptPath = agentTranscript
	require.NoError(t, f.router.ProcessEvent(ctx, event))

	records, err := f.store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)

	queue, err := jsonl.ReadAll[processor.Payload](paths.ConversationQueueFile(f.sessionDir, records[0].SessionID))
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Contains(t, string(queue[0].Payload), "subagent says hi")
}

func TestUserPromptSubmitStartsActivity(t *testing.T) {
	f := newRouterFixture(t, &testPlugin{})
	ctx := context.Background()
	require.NoError(t, f.router.ProcessEvent(ctx, f.event(hooks.EventSessionStart)))
	require.NoError(t, f.router.ProcessEvent(ctx, f.event(hooks.EventUserPromptSubmit)))

	records, err := f.store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Greater(t, records[0].ActivityStartedAt, int64(0))
}

func TestSessionEndWithDeadBackendStillFinalizes(t *testing.T) {
	f := newRouterFixture(t, &testPlugin{adapter: &queueingAdapter{}})
	ctx := context.Background()
	require.NoError(t, f.router.ProcessEvent(ctx, f.event(hooks.EventSessionStart)))

	records, err := f.store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	id := records[0].SessionID

	f.backend.server.Close()

	end := f.event(hooks.EventSessionEnd)
	end.Reason = "exit"
	require.NoError(t, f.router.ProcessEvent(ctx, end))

	// Payloads stay pending in the renamed queue for a later manual sync.
	data, err := os.ReadFile(paths.CompletedName(paths.SessionFile(f.sessionDir, id)))
	require.NoError(t, err)
	var final session.Record
	require.NoError(t, json.Unmarshal(data, &final))
	assert.Equal(t, session.StatusCompleted, final.Status)

	queue, err := jsonl.ReadAll[processor.Payload](paths.CompletedName(paths.ConversationQueueFile(f.sessionDir, id)))
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, processor.PayloadPending, queue[0].Status)
}
