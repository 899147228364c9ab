package sessions

import (
	"sync"
	"time"

	"github.com/reviewstudio/studio/pkg/models"
)

// LogBuffer is a thread-safe ring buffer holding the last N pipeline log
// entries of a session and streaming new ones to subscribers.
type LogBuffer struct {
	mu          sync.RWMutex
	entries     []models.LogEntry
	maxEntries  int
	subscribers map[chan models.LogEntry]struct{}
}

// NewLogBuffer creates a log buffer that retains up to maxEntries entries.
func NewLogBuffer(maxEntries int) *LogBuffer {
	if maxEntries <= 0 {
		maxEntries = 500
	}
	return &LogBuffer{
		entries:     make([]models.LogEntry, 0, maxEntries),
		maxEntries:  maxEntries,
		subscribers: make(map[chan models.LogEntry]struct{}),
	}
}

// Write appends an entry and broadcasts it to all subscribers.
func (lb *LogBuffer) Write(entry models.LogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	lb.mu.Lock()
	if len(lb.entries) >= lb.maxEntries {
		lb.entries = lb.entries[1:]
	}
	lb.entries = append(lb.entries, entry)

	for ch := range lb.subscribers {
		select {
		case ch <- entry:
		default:
			// slow subscriber misses this entry
		}
	}
	lb.mu.Unlock()
}

// Recent returns the last n entries, oldest first. n <= 0 returns all of them.
func (lb *LogBuffer) Recent(n int) []models.LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	total := len(lb.entries)
	if n <= 0 || n > total {
		n = total
	}
	result := make([]models.LogEntry, n)
	copy(result, lb.entries[total-n:])
	return result
}

// Len returns the number of buffered entries.
func (lb *LogBuffer) Len() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return len(lb.entries)
}

// Clear drops all buffered entries. Subscribers stay attached.
func (lb *LogBuffer) Clear() {
	lb.mu.Lock()
	lb.entries = lb.entries[:0]
	lb.mu.Unlock()
}

// Subscribe returns a channel that receives new entries as they arrive.
// Call Unsubscribe when done.
func (lb *LogBuffer) Subscribe() chan models.LogEntry {
	ch := make(chan models.LogEntry, 64)
	lb.mu.Lock()
	lb.subscribers[ch] = struct{}{}
	lb.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (lb *LogBuffer) Unsubscribe(ch chan models.LogEntry) {
	lb.mu.Lock()
	if _, ok := lb.subscribers[ch]; ok {
		delete(lb.subscribers, ch)
		close(ch)
	}
	lb.mu.Unlock()
}
