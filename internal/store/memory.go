package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/reviewstudio/studio/pkg/models"
	"github.com/rs/zerolog/log"
)

// MemoryTraceStore keeps the run journal in process memory.
// Entries older than the TTL are evicted in the background.
type MemoryTraceStore struct {
	mu     sync.RWMutex
	traces map[string]*models.Trace

	ttl       time.Duration
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewMemoryTraceStore creates an in-memory journal. A zero ttl disables eviction.
func NewMemoryTraceStore(ttl time.Duration) *MemoryTraceStore {
	m := &MemoryTraceStore{
		traces: make(map[string]*models.Trace),
		ttl:    ttl,
		doneCh: make(chan struct{}),
	}
	if ttl > 0 {
		go m.evictionLoop()
	}
	log.Info().Str("ttl", ttl.String()).Msg("Memory journal configured")
	return m
}

func (m *MemoryTraceStore) evictionLoop() {
	interval := 10 * time.Minute
	if m.ttl < interval {
		interval = m.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.doneCh:
			return
		case <-ticker.C:
			m.evictExpired(time.Now())
		}
	}
}

// evictExpired removes traces created before now-ttl and returns how many went.
func (m *MemoryTraceStore) evictExpired(now time.Time) int {
	cutoff := now.Add(-m.ttl)

	m.mu.Lock()
	var evicted int
	for id, t := range m.traces {
		if t.CreatedAt.Before(cutoff) {
			delete(m.traces, id)
			evicted++
		}
	}
	m.mu.Unlock()

	if evicted > 0 {
		log.Info().Int("evicted", evicted).Str("ttl", m.ttl.String()).Msg("Evicted expired journal entries")
	}
	return evicted
}

func (m *MemoryTraceStore) CreateTrace(_ context.Context, trace *models.Trace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *trace
	m.traces[trace.ID] = &cp
	return nil
}

func (m *MemoryTraceStore) GetTrace(_ context.Context, id string) (*models.Trace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.traces[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "trace", Key: id}
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryTraceStore) ListTraces(_ context.Context, sessionID string, limit int) ([]models.Trace, error) {
	m.mu.RLock()
	result := make([]models.Trace, 0, len(m.traces))
	for _, t := range m.traces {
		if sessionID == "" || t.SessionID == sessionID {
			result = append(result, *t)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryTraceStore) DeleteSessionTraces(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.traces {
		if t.SessionID == sessionID {
			delete(m.traces, id)
		}
	}
	return nil
}

// Close stops the eviction goroutine.
func (m *MemoryTraceStore) Close() error {
	m.closeOnce.Do(func() { close(m.doneCh) })
	return nil
}
