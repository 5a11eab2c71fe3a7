package watch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

// Store is the shared state both documents live in. Implementations only need
// all-or-nothing writes of a single document; there is no locking or
// versioning in this contract.
type Store interface {
	ReadQueue(ctx context.Context) ([]QueueItem, error)
	WriteQueue(ctx context.Context, queue []QueueItem) error
	ReadNowPlaying(ctx context.Context) (NowPlaying, error)
	WriteNowPlaying(ctx context.Context, np NowPlaying) error
}

// Documents is the pair of shared documents handed to an UpdateFunc.
type Documents struct {
	Queue      []QueueItem
	NowPlaying NowPlaying
}

// UpdateFunc mutates docs in place. Returning ErrNoChange (or any error)
// discards the mutation.
type UpdateFunc func(docs *Documents) error

// Updater is implemented by stores that can run a read-modify-write of both
// documents atomically. The advancer prefers it over optimistic rechecks.
type Updater interface {
	Update(ctx context.Context, fn UpdateFunc) error
}

// QueueAdvancer is implemented by stores that run AdvanceFrom's
// compare-and-swap on the caller's behalf, such as a client of a server that
// holds an Updater. user is recorded on the promoted record.
type QueueAdvancer interface {
	AdvanceFrom(ctx context.Context, observed NowPlaying, user string) (bool, error)
}

// Enqueuer is implemented by stores that apply AddItem atomically on the
// caller's behalf. It returns the promoted record, or nil when the item was
// queued.
type Enqueuer interface {
	Enqueue(ctx context.Context, item QueueItem) (*NowPlaying, error)
}

// Change is the outcome of running an UpdateFunc against a snapshot.
type Change struct {
	Docs              Documents
	QueueChanged      bool
	NowPlayingChanged bool
}

// Apply runs fn on a copy of docs and reports which documents it modified.
// Store backends call it inside their transaction.
func Apply(docs Documents, fn UpdateFunc) (Change, error) {
	next := Documents{
		Queue:      append([]QueueItem(nil), docs.Queue...),
		NowPlaying: docs.NowPlaying,
	}
	if err := fn(&next); err != nil {
		return Change{}, err
	}
	qc, err := differs(docs.Queue, next.Queue)
	if err != nil {
		return Change{}, err
	}
	nc, err := differs(docs.NowPlaying, next.NowPlaying)
	if err != nil {
		return Change{}, err
	}
	return Change{Docs: next, QueueChanged: qc, NowPlayingChanged: nc}, nil
}

func differs[T []QueueItem | NowPlaying](a, b T) (bool, error) {
	ab, err := Canonical(a)
	if err != nil {
		return false, err
	}
	bb, err := Canonical(b)
	if err != nil {
		return false, err
	}
	return !bytes.Equal(ab, bb), nil
}

// Mutate runs fn atomically when store implements Updater. Otherwise it reads
// both documents, applies fn and writes what changed, queue first.
// changed reports whether either document differs afterwards; ErrNoChange is
// swallowed and reported as changed == false.
func Mutate(ctx context.Context, store Store, fn UpdateFunc) (changed bool, err error) {
	if u, ok := store.(Updater); ok {
		err := u.Update(ctx, func(docs *Documents) error {
			changed = false
			c, err := Apply(*docs, fn)
			if err != nil {
				return err
			}
			if !c.QueueChanged && !c.NowPlayingChanged {
				return ErrNoChange
			}
			*docs = c.Docs
			changed = true
			return nil
		})
		if errors.Is(err, ErrNoChange) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return changed, nil
	}

	queue, err := store.ReadQueue(ctx)
	if err != nil {
		return false, fmt.Errorf("read queue: %w", err)
	}
	np, err := store.ReadNowPlaying(ctx)
	if err != nil {
		return false, fmt.Errorf("read now playing: %w", err)
	}
	c, err := Apply(Documents{Queue: queue, NowPlaying: np}, fn)
	if errors.Is(err, ErrNoChange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if c.QueueChanged {
		if err := store.WriteQueue(ctx, c.Docs.Queue); err != nil {
			return false, fmt.Errorf("write queue: %w", err)
		}
	}
	if c.NowPlayingChanged {
		if err := store.WriteNowPlaying(ctx, c.Docs.NowPlaying); err != nil {
			return false, fmt.Errorf("write now playing: %w", err)
		}
	}
	return c.QueueChanged || c.NowPlayingChanged, nil
}
