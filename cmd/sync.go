package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/relaykit/relay/errors"
	"github.com/relaykit/relay/pkg/paths"
	"github.com/relaykit/relay/pkg/session"
)

// watchDebounce suppresses repeat syncs for a session whose queue files are
// being written in quick succession.
const watchDebounce = 2 * time.Second

func NewSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [session-id]",
		Short: "Sync queued session telemetry to the backend",
		Long: `Sync queued session telemetry to the backend.

Without arguments, every active session with pending payloads is synced.
A session id (internal or the agent's own) narrows the run to one session;
--all includes completed sessions whose payloads never made it out.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			if rt.cfg.API.BaseURL == "" && !rt.cfg.API.DryRun {
				return errors.APIConfig("api.base_url is not configured")
			}

			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			includeCompleted, _ := cmd.Flags().GetBool("all")

			if watch, _ := cmd.Flags().GetBool("watch"); watch {
				return watchAndSync(cmd.Context(), rt)
			}

			synced, err := syncSessions(cmd.Context(), rt, target, includeCompleted)
			if err != nil {
				return err
			}
			fmt.Printf("Synced %d session(s)\n", synced)
			return nil
		},
	}

	cmd.Flags().Bool("all", false, "Include completed sessions")
	cmd.Flags().Bool("watch", false, "Watch the sessions directory and sync as payloads arrive")
	return cmd
}

// syncSessions drains the payload queues of every matching session.
func syncSessions(ctx context.Context, rt *runtime, target string, includeCompleted bool) (int, error) {
	records, err := rt.store.List()
	if err != nil {
		return 0, err
	}

	matched := false
	synced := 0
	for _, record := range records {
		if target != "" {
			if record.SessionID != target && record.Correlation.AgentSessionID != target {
				continue
			}
			matched = true
		} else if record.Status == session.StatusCompleted && !includeCompleted {
			continue
		}

		if err := syncOne(ctx, rt, record); err != nil {
			rt.log.WithError(err).WithField("session", record.SessionID).Warn("Session sync failed")
			continue
		}
		synced++
	}

	if target != "" && !matched {
		return 0, errors.SessionNotFound(target)
	}
	return synced, nil
}

func syncOne(ctx context.Context, rt *runtime, record *session.Record) error {
	router, err := rt.router(record.AgentName)
	if err != nil {
		return err
	}
	router.SyncSession(ctx, record)
	return nil
}

// watchAndSync blocks on the sessions directory, syncing a session whenever
// one of its queue files changes. Ctrl-C (context cancellation) ends it.
func watchAndSync(ctx context.Context, rt *runtime) error {
	dir := rt.store.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	rt.log.WithField("dir", dir).Info("Watching for queued payloads")

	lastSync := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			sessionID := sessionIDFromQueueFile(event.Name)
			if sessionID == "" {
				continue
			}
			if time.Since(lastSync[sessionID]) < watchDebounce {
				continue
			}
			lastSync[sessionID] = time.Now()

			record, err := rt.store.Load(sessionID)
			if err != nil || record == nil {
				continue
			}
			if err := syncOne(ctx, rt, record); err != nil {
				rt.log.WithError(err).WithField("session", sessionID).Warn("Watch sync failed")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			rt.log.WithError(err).Warn("Watcher error")
		}
	}
}

// sessionIDFromQueueFile extracts the session id from a queue file path, or
// returns empty for files that are not payload queues.
func sessionIDFromQueueFile(path string) string {
	base := strings.TrimPrefix(filepath.Base(path), paths.CompletedPrefix)
	for _, suffix := range []string{"_metrics.jsonl", "_conversation.jsonl"} {
		if strings.HasSuffix(base, suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	return ""
}
