package watch

import (
	"bytes"
	"sync"
)

// Snapshot is a client's private record of the last documents it reacted to.
// It is safe for concurrent use.
type Snapshot struct {
	mu         sync.Mutex
	nowPlaying []byte
	queue      []byte
	joined     bool
}

// NewSnapshot returns an empty snapshot; the first observation always counts
// as a change.
func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// ObserveNowPlaying records np and reports whether it differs from the last
// recorded payload.
func (s *Snapshot) ObserveNowPlaying(np NowPlaying) (bool, error) {
	b, err := Canonical(np)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nowPlaying != nil && bytes.Equal(s.nowPlaying, b) {
		return false, nil
	}
	s.nowPlaying = b
	return true, nil
}

// ObserveQueue records queue and reports whether it differs from the last
// recorded payload.
func (s *Snapshot) ObserveQueue(queue []QueueItem) (bool, error) {
	b, err := Canonical(queue)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil && bytes.Equal(s.queue, b) {
		return false, nil
	}
	s.queue = b
	return true, nil
}

// Join marks the explicit local sync action as done.
func (s *Snapshot) Join() {
	s.mu.Lock()
	s.joined = true
	s.mu.Unlock()
}

// Joined reports whether Join was called.
func (s *Snapshot) Joined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}
