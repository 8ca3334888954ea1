// Package processor implements the priority-ordered sync processors that
// drain payload queues to the Relay backend.
package processor

import (
	"context"
	"sort"
	"time"

	"github.com/relaykit/relay/config"
	"github.com/relaykit/relay/pkg/api"
	"github.com/relaykit/relay/pkg/session"
	"github.com/sirupsen/logrus"
)

// Context carries the collaborators a processor needs for one sync pass.
type Context struct {
	Config *config.Config
	Store  *session.Store
	Client *api.Client
	Log    *logrus.Entry

	// TranscriptPath is the wrapped agent's transcript for this session.
	TranscriptPath string
}

// client returns the shared API client, constructing one from config when the
// caller did not supply it.
func (c *Context) client() (*api.Client, error) {
	if c.Client != nil {
		return c.Client, nil
	}
	return api.NewClient(c.Config.API, c.Log)
}

// Result is the aggregate outcome of one processor pass.
type Result struct {
	Success  bool
	Message  string
	Metadata map[string]interface{}

	// SyncUpdates, when non-nil, is the watermark for the caller to persist
	// into the session record. Processors do not write the record.
	SyncUpdates *session.SyncUpdates
}

// Processor is one pluggable sync unit. Lower priority runs first.
type Processor interface {
	Name() string
	Priority() int

	// ShouldProcess is a cheap pre-check against a session snapshot. It may
	// always return true and let Process no-op.
	ShouldProcess(record *session.Record) bool

	Process(ctx context.Context, record *session.Record, pctx *Context) Result
}

// NamedResult pairs a processor's name with its pass result.
type NamedResult struct {
	Name   string
	Result Result
}

// Pipeline runs processors in priority order. One processor's failure never
// stops the ones after it.
type Pipeline struct {
	processors []Processor
	log        *logrus.Entry
}

// NewPipeline builds a pipeline, sorting processors by ascending priority.
func NewPipeline(log *logrus.Entry, processors ...Processor) *Pipeline {
	sorted := make([]Processor, len(processors))
	copy(sorted, processors)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return &Pipeline{processors: sorted, log: log}
}

// Run executes every applicable processor against the session snapshot.
func (p *Pipeline) Run(ctx context.Context, record *session.Record, pctx *Context) []NamedResult {
	results := make([]NamedResult, 0, len(p.processors))

	for _, proc := range p.processors {
		if !proc.ShouldProcess(record) {
			p.log.WithFields(logrus.Fields{
				"processor": proc.Name(),
				"session":   record.SessionID,
			}).Debug("Processor skipped by pre-check")
			continue
		}

		start := time.Now()
		result := proc.Process(ctx, record, pctx)
		entry := p.log.WithFields(logrus.Fields{
			"processor": proc.Name(),
			"session":   record.SessionID,
			"duration":  time.Since(start).Round(time.Millisecond),
		})
		if result.Success {
			entry.WithField("message", result.Message).Debug("Processor finished")
		} else {
			entry.WithField("message", result.Message).Warn("Processor failed")
		}

		results = append(results, NamedResult{Name: proc.Name(), Result: result})
	}

	return results
}
