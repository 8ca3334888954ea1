package hooks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/relaykit/relay/config"
	"github.com/relaykit/relay/pkg/api"
	"github.com/relaykit/relay/pkg/processor"
	"github.com/relaykit/relay/pkg/session"
	"github.com/sirupsen/logrus"
)

// Router is the single entry point for externally-delivered lifecycle
// events. All collaborators are injected; the router holds no global state.
type Router struct {
	cfg      *config.Config
	plugin   Plugin
	sessions *session.Store
	pipeline *processor.Pipeline
	client   *api.Client
	log      *logrus.Entry
}

// NewRouter wires a router from its collaborators.
func NewRouter(cfg *config.Config, plugin Plugin, sessions *session.Store, pipeline *processor.Pipeline, client *api.Client, log *logrus.Entry) *Router {
	return &Router{
		cfg:      cfg,
		plugin:   plugin,
		sessions: sessions,
		pipeline: pipeline,
		client:   client,
		log:      log,
	}
}

// ProcessEvent validates, transforms, normalizes, and dispatches one event.
// Handler errors are logged with their duration and returned; transformer
// errors are swallowed after logging, falling back to the original event.
func (r *Router) ProcessEvent(ctx context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	event = r.applyTransformer(event)
	name := r.normalize(event.HookEventName)

	log := r.log.WithFields(logrus.Fields{
		"event":   name,
		"session": event.SessionID,
	})

	start := time.Now()
	var err error
	switch name {
	case EventSessionStart:
		err = r.handleSessionStart(ctx, event)
	case EventSessionEnd:
		err = r.handleSessionEnd(ctx, event)
	case EventStop:
		err = r.handleStop(ctx, event, event.TranscriptPath)
	case EventSubagentStop:
		transcript := event.AgentTranscriptPath
		if transcript == "" {
			transcript = event.TranscriptPath
		}
		err = r.handleStop(ctx, event, transcript)
	case EventUserPromptSubmit:
		err = r.handleUserPromptSubmit(event)
	case EventPreCompact, EventPermissionRequest:
		// Explicit extension points, log-only for now
		log.Debug("Pass-through hook event")
	default:
		// Forward compatibility: agents may emit events we don't know
		log.Debug("Ignoring unknown hook event")
		return nil
	}

	log = log.WithField("duration", time.Since(start).Round(time.Millisecond))
	if err != nil {
		log.WithError(err).Error("Hook event handling failed")
		return err
	}
	log.Debug("Hook event handled")
	return nil
}

// applyTransformer runs the plugin's transformer, falling back to the
// untransformed event on error or panic.
func (r *Router) applyTransformer(event Event) Event {
	transformer := r.plugin.Transformer()
	if transformer == nil {
		return event
	}

	transformed, err := func() (out Event, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("transformer panic: %v", rec)
			}
		}()
		return transformer(event)
	}()
	if err != nil {
		r.log.WithError(err).WithField("event", event.HookEventName).
			Warn("Event transformer failed, using untransformed event")
		return event
	}
	return transformed
}

// normalize maps a raw event name through the plugin's table. Unmapped
// names pass through unchanged.
func (r *Router) normalize(name string) string {
	if mapped, ok := r.plugin.EventNames()[name]; ok {
		return mapped
	}
	return name
}

func (r *Router) handleSessionStart(ctx context.Context, event Event) error {
	cwd := event.CWD
	if cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		}
	}

	record := &session.Record{
		SessionID:        session.NewSessionID(),
		AgentName:        r.plugin.Name(),
		Provider:         r.plugin.Name(),
		Project:          r.cfg.Folder,
		StartTime:        session.NowMillis(),
		WorkingDirectory: cwd,
		GitBranch:        gitBranch(cwd),
		Status:           session.StatusActive,
		Correlation: session.Correlation{
			Status:           session.CorrelationMatched,
			AgentSessionID:   event.SessionID,
			AgentSessionFile: event.TranscriptPath,
		},
	}

	if err := r.sessions.Save(record); err != nil {
		return err
	}

	// Best-effort ping; a dead backend must not break session start
	res := r.client.PushSessionStatus(ctx, api.StatusRequest{
		SessionID: record.SessionID,
		Status:    "started",
		AgentName: record.AgentName,
	})
	if !res.Success {
		r.log.WithField("message", res.Message).Warn("Session start ping failed")
	}

	return nil
}

func (r *Router) handleStop(ctx context.Context, event Event, transcriptPath string) error {
	record, err := r.resolve(event.SessionID)
	if err != nil || record == nil {
		return err
	}

	// Best-effort instrumentation; never blocks the sync pass
	if _, err := r.sessions.AccumulateActiveDuration(record.SessionID); err != nil {
		r.log.WithError(err).Warn("Failed to accumulate active duration")
	}

	r.runAdapter(ctx, record, transcriptPath)
	r.runPipeline(ctx, record, transcriptPath)
	return nil
}

func (r *Router) handleSessionEnd(ctx context.Context, event Event) error {
	record, err := r.resolve(event.SessionID)
	if err != nil || record == nil {
		return err
	}

	if _, err := r.sessions.AccumulateActiveDuration(record.SessionID); err != nil {
		r.log.WithError(err).Warn("Failed to accumulate active duration")
	}

	r.runAdapter(ctx, record, event.TranscriptPath)
	r.runPipeline(ctx, record, event.TranscriptPath)

	// Reload for up-to-date duration totals before the final ping
	final, err := r.sessions.Load(record.SessionID)
	if err != nil || final == nil {
		final = record
	}
	res := r.client.PushSessionStatus(ctx, api.StatusRequest{
		SessionID:        final.SessionID,
		Status:           "completed",
		Reason:           event.Reason,
		AgentName:        final.AgentName,
		WallClockMs:      session.NowMillis() - final.StartTime,
		ActiveDurationMs: final.ActiveDurationMs,
		MCPSummary:       final.MCPSummary,
	})
	if !res.Success {
		r.log.WithField("message", res.Message).Warn("Session completed ping failed")
	}

	if err := r.sessions.UpdateStatus(record.SessionID, session.StatusCompleted, event.Reason); err != nil {
		return err
	}

	// Renaming must be the terminal act: every prior step, including a
	// retried processor pass, expects the original filenames
	return r.sessions.FinalizeFiles(record.SessionID)
}

func (r *Router) handleUserPromptSubmit(event Event) error {
	record, err := r.resolve(event.SessionID)
	if err != nil || record == nil {
		return err
	}

	if err := r.sessions.StartActivityTracking(record.SessionID); err != nil {
		// Best-effort: must never block the user's prompt
		r.log.WithError(err).Warn("Failed to start activity tracking")
	}
	return nil
}

// resolve maps the agent's session id to the internal record. A missing
// session is expected when events race external cleanup; it is logged and
// treated as a no-op, not an error.
func (r *Router) resolve(agentSessionID string) (*session.Record, error) {
	record, err := r.sessions.FindByAgentSession(agentSessionID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		r.log.WithField("agent_session", agentSessionID).
			Warn("Event for unknown session, skipping")
		return nil, nil
	}
	return record, nil
}

// runAdapter lets the plugin convert new transcript lines into queued
// payloads. Adapter failure is logged, never fatal: already-queued payloads
// should still sync.
func (r *Router) runAdapter(ctx context.Context, record *session.Record, transcriptPath string) {
	adapter := r.plugin.Adapter()
	if adapter == nil {
		return
	}

	watermark := -1
	if record.Sync != nil {
		watermark = record.Sync.LastSyncedHistoryIndex
	}

	result, err := adapter.ProcessSession(ctx, transcriptPath, record.SessionID, &AdapterContext{
		Config:      r.cfg,
		SessionsDir: r.sessions.Dir(),
		Log:         r.log,
		Watermark:   watermark,
	})
	if err != nil {
		r.log.WithError(err).Warn("Session adapter failed")
		return
	}
	if len(result.FailedProcessors) > 0 {
		r.log.WithField("failed", strings.Join(result.FailedProcessors, ",")).
			Warn("Session adapter reported failed processors")
	}
	if len(result.MCPSummary) > 0 {
		if err := r.sessions.MergeMCPSummary(record.SessionID, result.MCPSummary); err != nil {
			r.log.WithError(err).Debug("Failed to merge MCP summary")
		}
	}
}

// SyncSession runs the sync processors for one session outside the hook
// flow (manual or watch-mode sync). The adapter is not involved: only
// already-queued payloads are drained.
func (r *Router) SyncSession(ctx context.Context, record *session.Record) {
	r.runPipeline(ctx, record, record.Correlation.AgentSessionFile)
}

// runPipeline executes the sync processors and persists any watermarks they
// report.
func (r *Router) runPipeline(ctx context.Context, record *session.Record, transcriptPath string) {
	results := r.pipeline.Run(ctx, record, &processor.Context{
		Config:         r.cfg,
		Store:          r.sessions,
		Client:         r.client,
		Log:            r.log,
		TranscriptPath: transcriptPath,
	})

	for _, named := range results {
		if named.Result.SyncUpdates == nil {
			continue
		}
		if err := r.sessions.ApplySyncUpdates(record.SessionID, *named.Result.SyncUpdates); err != nil {
			r.log.WithError(err).WithField("processor", named.Name).
				Warn("Failed to persist sync updates")
		}
	}
}

// gitBranch returns the checked-out branch of cwd, or empty when cwd is not
// a git worktree.
func gitBranch(cwd string) string {
	if cwd == "" {
		return ""
	}
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = cwd
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
