package server

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"skidoodle/watchparty/internal/watch"
)

// Watcher polls the store, broadcasts changes to the hub and records
// activity. Writes may come from this server, other replicas sharing the
// backend, or anything else with access to it.
type Watcher struct {
	store    watch.Store
	hub      *Hub
	activity *ActivityLog
	interval time.Duration
	now      func() time.Time
	trigger  chan struct{}

	mu            sync.RWMutex
	nowPlaying    []byte
	status        []byte
	queue         []byte
	lastNP        watch.NowPlaying
	lastQueue     []watch.QueueItem
	queueModified time.Time
}

// NewWatcher creates a new Watcher.
func NewWatcher(store watch.Store, hub *Hub, activity *ActivityLog, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Watcher{
		store:    store,
		hub:      hub,
		activity: activity,
		interval: interval,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
	}
}

// Run starts the polling loop. It must be run in a separate goroutine.
func (w *Watcher) Run(ctx context.Context) {
	log.WithField("interval", w.interval).Info("watcher started")
	defer log.Info("watcher stopped")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.UpdateState(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.UpdateState(ctx)
		case <-w.trigger:
			w.UpdateState(ctx)
		}
	}
}

// Trigger requests an immediate check, used after writes through the API.
func (w *Watcher) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// UpdateState reads both documents, compares them with the last seen
// payloads and broadcasts what changed.
func (w *Watcher) UpdateState(ctx context.Context) {
	if np, err := w.store.ReadNowPlaying(ctx); err != nil {
		storeErrors.WithLabelValues("read_now_playing").Inc()
		log.WithError(err).Warn("failed to read now playing")
	} else {
		w.updateNowPlaying(np)
	}

	if queue, err := w.store.ReadQueue(ctx); err != nil {
		storeErrors.WithLabelValues("read_queue").Inc()
		log.WithError(err).Warn("failed to read queue")
	} else {
		w.updateQueue(queue)
	}
}

func (w *Watcher) updateNowPlaying(np watch.NowPlaying) {
	b, err := watch.Canonical(np)
	if err != nil {
		log.WithError(err).Warn("failed to encode now playing")
		return
	}
	status, err := json.Marshal(np.Status)
	if err != nil {
		log.WithError(err).Warn("failed to encode playback status")
		return
	}

	w.mu.Lock()
	first := w.nowPlaying == nil
	changed := !bytes.Equal(w.nowPlaying, b)
	statusChanged := !first && !bytes.Equal(w.status, status)
	if changed {
		w.nowPlaying, w.status, w.lastNP = b, status, np
	}
	w.mu.Unlock()

	if !changed {
		return
	}
	if statusChanged && np.Status.Action != "" {
		w.activity.Append(activityFor(np.Status, w.now()))
	}
	log.WithFields(log.Fields{
		"videoId": np.VideoID,
		"action":  np.Status.Action,
		"user":    np.Status.User,
	}).Info("now playing changed, broadcasting update")
	w.hub.Broadcast(Message{Type: MessageNowPlaying, Payload: np})
}

func (w *Watcher) updateQueue(queue []watch.QueueItem) {
	b, err := watch.Canonical(queue)
	if err != nil {
		log.WithError(err).Warn("failed to encode queue")
		return
	}

	w.mu.Lock()
	changed := !bytes.Equal(w.queue, b)
	if changed {
		w.queue, w.lastQueue, w.queueModified = b, queue, w.now()
	}
	w.mu.Unlock()

	if !changed {
		return
	}
	log.WithField("length", len(queue)).Debug("queue changed, broadcasting update")
	w.hub.Broadcast(Message{Type: MessageQueue, Payload: queue})
}

// LastModified is when the watcher last saw the queue change.
func (w *Watcher) LastModified() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.queueModified
}

// SendLastState queues the cached documents for a single new client.
func (w *Watcher) SendLastState(c *Client) {
	w.mu.RLock()
	var msgs []Message
	if w.nowPlaying != nil {
		msgs = append(msgs, Message{Type: MessageNowPlaying, Payload: w.lastNP})
	}
	if w.queue != nil {
		msgs = append(msgs, Message{Type: MessageQueue, Payload: w.lastQueue})
	}
	w.mu.RUnlock()

	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			log.WithError(err).Warn("failed to encode initial state")
			continue
		}
		select {
		case c.send <- b:
		default:
			log.WithField("remoteAddr", c.conn.RemoteAddr()).Warn("failed to send initial state to client")
		}
	}
}

func activityFor(s watch.PlaybackStatus, now time.Time) watch.ActivityEntry {
	ts := s.Timestamp
	if ts.IsZero() {
		ts = now
	}
	user := s.User
	if user == "" {
		user = watch.SystemUser
	}
	return watch.ActivityEntry{Timestamp: ts, User: user, Action: s.Action, Details: s.Details}
}
