package core

import (
	"sort"
	"sync"
	"time"
)

// severityRank orders log states, most urgent first.
var severityRank = map[LogState]int{
	LogFailed:  0,
	LogSkipped: 1,
	LogSuccess: 2,
}

const unknownSeverity = 3

// Severity returns the sort rank of s; unknown states rank last.
func (s LogState) Severity() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return unknownSeverity
}

// OutcomeLog is the append-only record of submission attempts. Append is
// called by one pipeline at a time; readers may call in concurrently.
type OutcomeLog struct {
	mu      sync.RWMutex
	entries []LogEntry
}

// NewOutcomeLog returns an empty log.
func NewOutcomeLog() *OutcomeLog {
	return &OutcomeLog{}
}

// Append records one entry. A zero Timestamp is set to now.
func (l *OutcomeLog) Append(e LogEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

// Entries returns a copy in insertion order.
func (l *OutcomeLog) Entries() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *OutcomeLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Sorted returns a copy ordered by severity (FAILED first unless
// descending), newest first within a severity.
func (l *OutcomeLog) Sorted(descending bool) []LogEntry {
	out := l.Entries()
	SortEntries(out, descending)
	return out
}

// Clear empties the log.
func (l *OutcomeLog) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// SortEntries sorts entries in place by severity, then timestamp descending.
// Only the severity key is reversed by descending. Entries that tie on both
// keys have no defined order.
func SortEntries(entries []LogEntry, descending bool) {
	sort.Slice(entries, func(i, j int) bool {
		ri, rj := entries[i].State.Severity(), entries[j].State.Severity()
		if ri == rj {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		if descending {
			return ri > rj
		}
		return ri < rj
	})
}
