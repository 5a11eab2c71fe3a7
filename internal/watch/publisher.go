package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Publisher writes local player transitions into NowPlaying.
type Publisher struct {
	store Store
	user  string
	now   func() time.Time
}

// NewPublisher creates a Publisher that records user as the actor.
func NewPublisher(store Store, user string, now func() time.Time) *Publisher {
	if user == "" {
		user = SystemUser
	}
	if now == nil {
		now = time.Now
	}
	return &Publisher{store: store, user: user, now: now}
}

// Publish records action at position. A nil position uses the reconciled
// position of the current record. Details defaults to the current title.
//
// Nothing is written when the current action already equals action, or when
// Play or Pause is requested with nothing current. The returned record is
// only meaningful when ok is true.
func (p *Publisher) Publish(ctx context.Context, action Action, position *float64, details string) (np NowPlaying, ok bool, err error) {
	decide := func(cur NowPlaying) (NowPlaying, bool) {
		if cur.Status.Action == action {
			return NowPlaying{}, false
		}
		if action != ActionNext && cur.phase() != PhasePlaying {
			return NowPlaying{}, false
		}
		now := p.now()
		status := PlaybackStatus{
			Action:    action,
			User:      p.user,
			Position:  Reconcile(cur.Status, now),
			Timestamp: now,
			Details:   details,
		}
		if position != nil {
			status.Position = *position
		}
		if status.Details == "" {
			status.Details = cur.Label()
		}
		if action == ActionNext {
			status.Position = 0
			return Transition(status), true
		}
		next := cur
		next.Phase = PhasePlaying
		next.Status = status
		return next, true
	}

	if u, isUpdater := p.store.(Updater); isUpdater {
		err = u.Update(ctx, func(docs *Documents) error {
			next, write := decide(docs.NowPlaying)
			if !write {
				return ErrNoChange
			}
			docs.NowPlaying = next
			np, ok = next, true
			return nil
		})
		if errors.Is(err, ErrNoChange) {
			return NowPlaying{}, false, nil
		}
		if err != nil {
			return NowPlaying{}, false, err
		}
	} else {
		cur, err := p.store.ReadNowPlaying(ctx)
		if err != nil {
			return NowPlaying{}, false, fmt.Errorf("read now playing: %w", err)
		}
		next, write := decide(cur)
		if !write {
			return NowPlaying{}, false, nil
		}
		if err := p.store.WriteNowPlaying(ctx, next); err != nil {
			return NowPlaying{}, false, fmt.Errorf("write now playing: %w", err)
		}
		np, ok = next, true
	}

	if ok {
		log.WithFields(log.Fields{
			"action":   np.Status.Action,
			"user":     np.Status.User,
			"position": np.Status.Position,
		}).Info("published playback status")
	}
	return np, ok, nil
}
