package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/relaykit/relay/errors"
	"github.com/relaykit/relay/pkg/paths"
	"github.com/sirupsen/logrus"
)

// Store is the single source of truth for session metadata. It serializes
// all read-modify-write sequences per session id; cross-process contention
// is out of scope (the CLI delivers events serially).
type Store struct {
	dir string
	log *logrus.Entry

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// now is a seam for tests; defaults to wall clock epoch ms.
	now func() int64
}

// NewStore creates a store rooted at dir. The directory is created lazily on
// first write.
func NewStore(dir string, log *logrus.Entry) *Store {
	return &Store{
		dir:   dir,
		log:   log,
		locks: make(map[string]*sync.Mutex),
		now:   NowMillis,
	}
}

// Dir returns the directory holding session files. Processors derive their
// queue paths from it.
func (s *Store) Dir() string {
	return s.dir
}

// lockFor returns the mutex serializing access to one session id.
func (s *Store) lockFor(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

// Save creates or fully replaces a session record (last-writer-wins).
func (s *Store) Save(record *Record) error {
	lock := s.lockFor(record.SessionID)
	lock.Lock()
	defer lock.Unlock()

	return s.write(record)
}

// Load reads a session record, finalized ones included. A missing session
// yields (nil, nil).
func (s *Store) Load(sessionID string) (*Record, error) {
	path := paths.SessionFile(s.dir, sessionID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		data, err = os.ReadFile(paths.CompletedName(path))
	}
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeSessionInvalid, "failed to read session record").
			WithDetail("sessionId", sessionID)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSessionInvalid, "failed to parse session record").
			WithDetail("sessionId", sessionID)
	}
	return &record, nil
}

// UpdateStatus transitions a session's status. Transitions are monotonic:
// active → completed only, never backward. A missing session is logged and
// ignored, since an event racing external cleanup is expected.
func (s *Store) UpdateStatus(sessionID string, status Status, reason string) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.Load(sessionID)
	if err != nil {
		return err
	}
	if record == nil {
		s.log.WithFields(logrus.Fields{
			"session": sessionID,
			"status":  status,
		}).Warn("Status update for unknown session, skipping")
		return nil
	}

	if record.Status == StatusCompleted && status != StatusCompleted {
		s.log.WithFields(logrus.Fields{
			"session": sessionID,
			"from":    record.Status,
			"to":      status,
		}).Warn("Refusing status regression")
		return nil
	}
	if record.Status == status {
		return nil
	}

	record.Status = status
	if status == StatusCompleted {
		record.EndTime = s.now()
	}
	s.log.WithFields(logrus.Fields{
		"session": sessionID,
		"status":  status,
		"reason":  reason,
	}).Debug("Session status updated")

	return s.write(record)
}

// StartActivityTracking marks now as the start of an active interval.
// Idempotent: an already-open interval keeps its earlier start so no elapsed
// time is lost.
func (s *Store) StartActivityTracking(sessionID string) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.Load(sessionID)
	if err != nil {
		return err
	}
	if record == nil {
		s.log.WithField("session", sessionID).Warn("Activity tracking for unknown session, skipping")
		return nil
	}

	if record.ActivityStartedAt != 0 {
		return nil
	}

	record.ActivityStartedAt = s.now()
	return s.write(record)
}

// AccumulateActiveDuration closes the open active interval, adds the elapsed
// milliseconds to the record, and returns the delta. With no open interval
// it is a no-op returning 0.
func (s *Store) AccumulateActiveDuration(sessionID string) (int64, error) {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.Load(sessionID)
	if err != nil {
		return 0, err
	}
	if record == nil {
		s.log.WithField("session", sessionID).Warn("Duration accumulation for unknown session, skipping")
		return 0, nil
	}

	if record.ActivityStartedAt == 0 {
		return 0, nil
	}

	delta := s.now() - record.ActivityStartedAt
	if delta < 0 {
		delta = 0
	}
	record.ActiveDurationMs += delta
	record.ActivityStartedAt = 0

	if err := s.write(record); err != nil {
		return 0, err
	}
	return delta, nil
}

// ApplySyncUpdates folds a processor's reported watermark into the record.
// Watermarks never move backward; totals accumulate.
func (s *Store) ApplySyncUpdates(sessionID string, updates SyncUpdates) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.Load(sessionID)
	if err != nil {
		return err
	}
	if record == nil {
		s.log.WithField("session", sessionID).Warn("Sync updates for unknown session, skipping")
		return nil
	}

	if record.Sync == nil {
		record.Sync = &SyncState{}
	}
	if updates.ConversationID != "" {
		record.Sync.ConversationID = updates.ConversationID
	}
	if updates.LastSyncedHistoryIndex > record.Sync.LastSyncedHistoryIndex {
		record.Sync.LastSyncedHistoryIndex = updates.LastSyncedHistoryIndex
	}
	record.Sync.TotalMessagesSynced += updates.MessagesSynced
	record.Sync.TotalSyncAttempts += updates.SyncAttempts
	record.Sync.LastSyncAt = s.now()

	return s.write(record)
}

// MergeMCPSummary accumulates per-server MCP tool-use counts into the
// record. Empty input and unknown sessions are no-ops; this is best-effort
// instrumentation.
func (s *Store) MergeMCPSummary(sessionID string, counts map[string]int) error {
	if len(counts) == 0 {
		return nil
	}

	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.Load(sessionID)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}

	if record.MCPSummary == nil {
		record.MCPSummary = make(map[string]int, len(counts))
	}
	for server, n := range counts {
		record.MCPSummary[server] += n
	}
	return s.write(record)
}

// FinalizeFiles renames the session's record and queue files with the
// completed prefix, marking them closed. Missing queue files are skipped: a
// session that generated no payloads is valid. This must run last in
// SessionEnd handling so every prior step still finds the original names.
func (s *Store) FinalizeFiles(sessionID string) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	files := []string{
		paths.SessionFile(s.dir, sessionID),
		paths.MetricsQueueFile(s.dir, sessionID),
		paths.ConversationQueueFile(s.dir, sessionID),
	}

	for _, path := range files {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrap(err, errors.ErrCodeSessionWrite, "failed to stat session file").
				WithDetail("path", path)
		}
		if err := os.Rename(path, paths.CompletedName(path)); err != nil {
			return errors.Wrap(err, errors.ErrCodeSessionWrite, "failed to finalize session file").
				WithDetail("path", path)
		}
	}

	s.log.WithField("session", sessionID).Debug("Session files finalized")
	return nil
}

// List returns every session record in the store, completed ones included.
func (s *Store) List() ([]*Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Record{}, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeSessionInvalid, "failed to read sessions directory").
			WithDetail("dir", s.dir)
	}

	records := []*Record{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			s.log.WithField("file", name).Debug("Skipping unparseable session file")
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}

// FindByAgentSession resolves the internal record correlated with the
// wrapped agent's own session id. Active sessions win over completed ones;
// ties go to the most recently started.
func (s *Store) FindByAgentSession(agentSessionID string) (*Record, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}

	var best *Record
	for _, record := range records {
		if record.Correlation.AgentSessionID != agentSessionID {
			continue
		}
		if best == nil {
			best = record
			continue
		}
		if best.Status == StatusCompleted && record.Status == StatusActive {
			best = record
			continue
		}
		if best.Status == record.Status && record.StartTime > best.StartTime {
			best = record
		}
	}
	return best, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// write persists a record with the temp-file-then-rename pattern.
func (s *Store) write(record *Record) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.SessionWrite(record.SessionID, err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return errors.SessionWrite(record.SessionID, err)
	}

	// A finalized record keeps its completed name across later updates
	// (a manual sync can still move its watermark).
	path := paths.SessionFile(s.dir, record.SessionID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if completed := paths.CompletedName(path); fileExists(completed) {
			path = completed
		}
	}

	tmp, err := os.CreateTemp(s.dir, record.SessionID+".tmp-*")
	if err != nil {
		return errors.SessionWrite(record.SessionID, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.SessionWrite(record.SessionID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.SessionWrite(record.SessionID, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.SessionWrite(record.SessionID, err)
	}

	return nil
}
