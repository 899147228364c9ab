// Package retention evicts idle reviewer sessions.
//
// The janitor runs as a background goroutine and respects context
// cancellation for graceful shutdown. Sessions in the middle of an action
// are never evicted. When purging is enabled the evicted sessions' journal
// entries are deleted as well.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reviewstudio/studio/internal/store"
)

// DefaultIdleTTL is how long an untouched session survives.
const DefaultIdleTTL = 12 * time.Hour

// SessionEvictor is the part of the session store the janitor needs.
type SessionEvictor interface {
	EvictIdle(cutoff time.Time) []string
}

// CycleStats tracks what happened in a single sweep.
type CycleStats struct {
	Evicted      []string
	TracesPurged int
	Errors       []error
}

// Janitor periodically evicts idle sessions.
type Janitor struct {
	sessions SessionEvictor
	journal  store.TraceStore
	ttl      time.Duration
	interval time.Duration
	purge    bool

	now func() time.Time
}

// Options configures a Janitor.
type Options struct {
	IdleTTL  time.Duration
	Interval time.Duration
	// PurgeJournal deletes evicted sessions' traces from the journal.
	PurgeJournal bool
}

// NewJanitor creates a janitor. journal may be nil.
func NewJanitor(sessions SessionEvictor, journal store.TraceStore, opts Options) *Janitor {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.Interval < time.Second {
		opts.Interval = time.Minute
	}
	return &Janitor{
		sessions: sessions,
		journal:  journal,
		ttl:      opts.IdleTTL,
		interval: opts.Interval,
		purge:    opts.PurgeJournal && journal != nil,
		now:      time.Now,
	}
}

// Start runs the janitor until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	log.Info().
		Dur("interval", j.interval).
		Dur("idle_ttl", j.ttl).
		Bool("purge_journal", j.purge).
		Msg("🧹 Session janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Session janitor stopped")
			return
		case <-ticker.C:
			j.RunCycle(ctx)
		}
	}
}

// RunCycle performs one sweep.
func (j *Janitor) RunCycle(ctx context.Context) CycleStats {
	start := j.now()
	stats := CycleStats{Evicted: j.sessions.EvictIdle(start.Add(-j.ttl))}

	if j.purge {
		for _, id := range stats.Evicted {
			if err := j.journal.DeleteSessionTraces(ctx, id); err != nil {
				stats.Errors = append(stats.Errors, err)
				log.Warn().Err(err).Str("session", id).Msg("Failed to purge session traces")
				continue
			}
			stats.TracesPurged++
		}
	}

	if len(stats.Evicted) > 0 || len(stats.Errors) > 0 {
		log.Info().
			Int("evicted", len(stats.Evicted)).
			Int("purged", stats.TracesPurged).
			Int("errors", len(stats.Errors)).
			Dur("duration", j.now().Sub(start)).
			Msg("Session janitor cycle complete")
	}
	return stats
}
