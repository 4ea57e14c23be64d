package service

import (
	"sync"

	"stackvisor/internal/models"
)

// LogBuffer keeps the most recent captured log entries in memory for the
// status API and dashboard. Process output additionally goes to per-process
// log files; this buffer is only the hot tail.
type LogBuffer struct {
	mu         sync.RWMutex
	entries    []models.LogEntry
	maxEntries int
}

func NewLogBuffer(maxEntries int) *LogBuffer {
	return &LogBuffer{
		entries:    make([]models.LogEntry, 0, maxEntries),
		maxEntries: maxEntries,
	}
}

func (lb *LogBuffer) Add(entry models.LogEntry) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.entries = append(lb.entries, entry)
	if len(lb.entries) > lb.maxEntries {
		lb.entries = lb.entries[len(lb.entries)-lb.maxEntries:]
	}
}

func (lb *LogBuffer) Last(n int) []models.LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	if n <= 0 || len(lb.entries) == 0 {
		return []models.LogEntry{}
	}

	start := 0
	if len(lb.entries) > n {
		start = len(lb.entries) - n
	}

	result := make([]models.LogEntry, len(lb.entries[start:]))
	copy(result, lb.entries[start:])
	return result
}

// LastByRole returns up to n most recent entries attributed to one process.
func (lb *LogBuffer) LastByRole(role models.Role, n int) []models.LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	var filtered []models.LogEntry
	for _, e := range lb.entries {
		if e.Role == role {
			filtered = append(filtered, e)
		}
	}

	if n <= 0 || len(filtered) <= n {
		return filtered
	}
	return filtered[len(filtered)-n:]
}
