package store

import (
	"context"
	"sync"

	"skidoodle/watchparty/internal/watch"
)

// Memory keeps both documents in process. Documents are stored encoded so
// callers never share slices with the store.
type Memory struct {
	mu         sync.Mutex
	queue      []byte
	nowPlaying []byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) ReadQueue(_ context.Context) ([]watch.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return decodeQueue(m.queue)
}

func (m *Memory) WriteQueue(_ context.Context, queue []watch.QueueItem) error {
	b, err := encodeQueue(queue)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.queue = b
	m.mu.Unlock()
	return nil
}

func (m *Memory) ReadNowPlaying(_ context.Context) (watch.NowPlaying, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return decodeNowPlaying(m.nowPlaying)
}

func (m *Memory) WriteNowPlaying(_ context.Context, np watch.NowPlaying) error {
	b, err := encodeNowPlaying(np)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.nowPlaying = b
	m.mu.Unlock()
	return nil
}

// Update runs fn with the store locked.
func (m *Memory) Update(_ context.Context, fn watch.UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs, err := decodeDocuments(m.queue, m.nowPlaying)
	if err != nil {
		return err
	}
	c, err := watch.Apply(docs, fn)
	if err != nil {
		return err
	}
	queue, np, err := encodeChange(c)
	if err != nil {
		return err
	}
	if queue != nil {
		m.queue = queue
	}
	if np != nil {
		m.nowPlaying = np
	}
	return nil
}

func (m *Memory) Close() error { return nil }
