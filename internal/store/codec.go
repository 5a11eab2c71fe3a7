// Package store holds the backends the shared documents can live in.
package store

import (
	"encoding/json"
	"fmt"

	"skidoodle/watchparty/internal/watch"
)

const (
	queueKey      = "queue"
	nowPlayingKey = "now_playing"
)

// Backend is a store that can also update both documents atomically.
type Backend interface {
	watch.Store
	watch.Updater
	Close() error
}

// decodeQueue treats a missing document as an empty queue.
func decodeQueue(b []byte) ([]watch.QueueItem, error) {
	queue := []watch.QueueItem{}
	if len(b) == 0 {
		return queue, nil
	}
	if err := json.Unmarshal(b, &queue); err != nil {
		return nil, fmt.Errorf("decode queue: %w", err)
	}
	if queue == nil {
		queue = []watch.QueueItem{}
	}
	return queue, nil
}

// decodeNowPlaying treats a missing document as idle.
func decodeNowPlaying(b []byte) (watch.NowPlaying, error) {
	var np watch.NowPlaying
	if len(b) == 0 {
		np.Phase = watch.PhaseIdle
		return np, nil
	}
	if err := json.Unmarshal(b, &np); err != nil {
		return watch.NowPlaying{}, fmt.Errorf("decode now playing: %w", err)
	}
	return np, nil
}

func encodeQueue(queue []watch.QueueItem) ([]byte, error) {
	b, err := watch.Canonical(queue)
	if err != nil {
		return nil, fmt.Errorf("encode queue: %w", err)
	}
	return b, nil
}

func encodeNowPlaying(np watch.NowPlaying) ([]byte, error) {
	b, err := watch.Canonical(np)
	if err != nil {
		return nil, fmt.Errorf("encode now playing: %w", err)
	}
	return b, nil
}

// encodeChange encodes the documents an update modified; untouched ones are
// returned as nil.
func encodeChange(c watch.Change) (queue, np []byte, err error) {
	if c.QueueChanged {
		if queue, err = encodeQueue(c.Docs.Queue); err != nil {
			return nil, nil, err
		}
	}
	if c.NowPlayingChanged {
		if np, err = encodeNowPlaying(c.Docs.NowPlaying); err != nil {
			return nil, nil, err
		}
	}
	return queue, np, nil
}

func decodeDocuments(queue, np []byte) (watch.Documents, error) {
	q, err := decodeQueue(queue)
	if err != nil {
		return watch.Documents{}, err
	}
	n, err := decodeNowPlaying(np)
	if err != nil {
		return watch.Documents{}, err
	}
	return watch.Documents{Queue: q, NowPlaying: n}, nil
}
