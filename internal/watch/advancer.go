package watch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Advancer promotes the queue head to NowPlaying. Many clients may run it
// for the same transition; only the first one to see its observation still
// current wins, the rest become no-ops.
type Advancer struct {
	store Store
	user  string
	now   func() time.Time
}

// NewAdvancer creates an Advancer that records user as the actor.
func NewAdvancer(store Store, user string, now func() time.Time) *Advancer {
	if user == "" {
		user = SystemUser
	}
	if now == nil {
		now = time.Now
	}
	return &Advancer{store: store, user: user, now: now}
}

// Advance reads NowPlaying and advances from it.
func (a *Advancer) Advance(ctx context.Context) (bool, error) {
	np, err := a.store.ReadNowPlaying(ctx)
	if err != nil {
		return false, fmt.Errorf("read now playing: %w", err)
	}
	return a.AdvanceFrom(ctx, np)
}

// AdvanceFrom promotes the first pending queue item, provided NowPlaying
// still equals observed. It reports whether this call performed the
// promotion. An empty queue is a no-op.
//
// Stores implementing Updater or QueueAdvancer advance atomically; any other
// store gets optimistic rechecks.
func (a *Advancer) AdvanceFrom(ctx context.Context, observed NowPlaying) (bool, error) {
	if qa, ok := a.store.(QueueAdvancer); ok {
		promoted, err := qa.AdvanceFrom(ctx, observed, a.user)
		if err != nil {
			return false, fmt.Errorf("advance queue: %w", err)
		}
		if promoted {
			log.WithField("user", a.user).Info("advanced queue")
		}
		return promoted, nil
	}

	want, err := Canonical(observed)
	if err != nil {
		return false, err
	}

	if u, ok := a.store.(Updater); ok {
		promoted := false
		err := u.Update(ctx, func(docs *Documents) error {
			if !matches(docs.NowPlaying, want) {
				return ErrNoChange
			}
			np, rest, ok := a.promote(docs.Queue)
			if !ok {
				return ErrNoChange
			}
			docs.Queue, docs.NowPlaying = rest, np
			promoted = true
			return nil
		})
		if errors.Is(err, ErrNoChange) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if promoted {
			log.WithField("user", a.user).Info("advanced queue")
		}
		return promoted, nil
	}
	return a.advanceOptimistic(ctx, want)
}

// advanceOptimistic is used for stores without atomic updates. NowPlaying is
// rechecked after reading the queue and written before the shortened queue,
// so a racing advancer either sees the new record and backs off or read the
// same queue and promotes the same item. Items can be promoted twice but are
// never dropped.
func (a *Advancer) advanceOptimistic(ctx context.Context, want []byte) (bool, error) {
	current, err := a.store.ReadNowPlaying(ctx)
	if err != nil {
		return false, fmt.Errorf("read now playing: %w", err)
	}
	if !matches(current, want) {
		return false, nil
	}
	queue, err := a.store.ReadQueue(ctx)
	if err != nil {
		return false, fmt.Errorf("read queue: %w", err)
	}
	np, rest, ok := a.promote(queue)
	if !ok {
		return false, nil
	}

	current, err = a.store.ReadNowPlaying(ctx)
	if err != nil {
		return false, fmt.Errorf("read now playing: %w", err)
	}
	if !matches(current, want) {
		log.Debug("now playing moved while advancing, backing off")
		return false, nil
	}
	if err := a.store.WriteNowPlaying(ctx, np); err != nil {
		return false, fmt.Errorf("write now playing: %w", err)
	}
	if err := a.store.WriteQueue(ctx, rest); err != nil {
		return false, fmt.Errorf("write queue: %w", err)
	}
	log.WithField("user", a.user).Info("advanced queue")
	return true, nil
}

// promote pops the first real item off queue, dropping any placeholders in
// front of it.
func (a *Advancer) promote(queue []QueueItem) (NowPlaying, []QueueItem, bool) {
	for i, it := range queue {
		if it.Placeholder() {
			continue
		}
		status := PlaybackStatus{
			Action:    ActionPlay,
			User:      a.user,
			Position:  0,
			Timestamp: a.now(),
			Details:   it.Label(),
		}
		rest := append([]QueueItem{}, queue[i+1:]...)
		return Promote(it, status), rest, true
	}
	return NowPlaying{}, nil, false
}

func matches(np NowPlaying, want []byte) bool {
	got, err := Canonical(np)
	return err == nil && bytes.Equal(got, want)
}
