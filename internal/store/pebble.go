package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"

	"skidoodle/watchparty/internal/watch"
)

// Pebble keeps both documents in an embedded pebble database. Updates are
// serialized in process and committed as one batch.
type Pebble struct {
	db *pebble.DB
	mu sync.Mutex
}

// OpenPebble opens (or creates) the database in dir.
func OpenPebble(dir string) (*Pebble, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return openPebble(filepath.Clean(dir), &pebble.Options{})
}

// OpenPebbleMem opens a database backed by an in-memory filesystem.
func OpenPebbleMem() (*Pebble, error) {
	return openPebble("", &pebble.Options{FS: vfs.NewMem()})
}

func openPebble(dir string, opts *pebble.Options) (*Pebble, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &Pebble{db: db}, nil
}

func (p *Pebble) get(key string) ([]byte, error) {
	val, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = closer.Close() }()
	return append([]byte(nil), val...), nil
}

func (p *Pebble) ReadQueue(_ context.Context) ([]watch.QueueItem, error) {
	b, err := p.get(queueKey)
	if err != nil {
		return nil, err
	}
	return decodeQueue(b)
}

func (p *Pebble) WriteQueue(_ context.Context, queue []watch.QueueItem) error {
	b, err := encodeQueue(queue)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db.Set([]byte(queueKey), b, pebble.Sync)
}

func (p *Pebble) ReadNowPlaying(_ context.Context) (watch.NowPlaying, error) {
	b, err := p.get(nowPlayingKey)
	if err != nil {
		return watch.NowPlaying{}, err
	}
	return decodeNowPlaying(b)
}

func (p *Pebble) WriteNowPlaying(_ context.Context, np watch.NowPlaying) error {
	b, err := encodeNowPlaying(np)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db.Set([]byte(nowPlayingKey), b, pebble.Sync)
}

// Update runs fn under the store lock and writes the result in one batch.
func (p *Pebble) Update(_ context.Context, fn watch.UpdateFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	qb, err := p.get(queueKey)
	if err != nil {
		return err
	}
	nb, err := p.get(nowPlayingKey)
	if err != nil {
		return err
	}
	docs, err := decodeDocuments(qb, nb)
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
	if queue == nil && np == nil {
		return nil
	}

	batch := p.db.NewBatch()
	defer func() { _ = batch.Close() }()
	if queue != nil {
		if err := batch.Set([]byte(queueKey), queue, nil); err != nil {
			return err
		}
	}
	if np != nil {
		if err := batch.Set([]byte(nowPlayingKey), np, nil); err != nil {
			return err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (p *Pebble) Close() error {
	return p.db.Close()
}
