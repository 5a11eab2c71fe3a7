package server

import (
	"sync"

	"skidoodle/watchparty/internal/watch"
)

const activityLimit = 50

// ActivityLog keeps the most recent activity entries, newest first.
type ActivityLog struct {
	mu      sync.RWMutex
	entries []watch.ActivityEntry
}

func NewActivityLog() *ActivityLog {
	return &ActivityLog{}
}

func (l *ActivityLog) Append(e watch.ActivityEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append([]watch.ActivityEntry{e}, l.entries...)
	if len(l.entries) > activityLimit {
		l.entries = l.entries[:activityLimit]
	}
}

// Entries returns a copy of the log.
func (l *ActivityLog) Entries() []watch.ActivityEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]watch.ActivityEntry{}, l.entries...)
}
