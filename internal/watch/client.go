package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Listener is notified of what a Client sees. Calls may arrive from the poll
// goroutine and from callers of the Client's methods, and must not call back
// into the Client.
type Listener interface {
	OnQueueChanged(queue []QueueItem)
	OnNowPlayingChanged(np NowPlaying)
	OnNotice(msg string)
}

// Options configures a Client.
type Options struct {
	// User is the display name recorded on writes. Defaults to SystemUser.
	User         string
	PollInterval time.Duration
	Now          func() time.Time
	Listener     Listener
}

// Client is one participant in a watch session: it polls the store, drives
// its player and publishes its own transitions.
type Client struct {
	id       string
	user     string
	store    Store
	player   Player
	now      func() time.Time
	listener Listener

	snapshot  *Snapshot
	driver    *Driver
	advancer  *Advancer
	publisher *Publisher
	poller    *Poller
	log       *log.Entry

	mu      sync.Mutex
	current NowPlaying
}

// NewClient wires a Client around store and player.
func NewClient(store Store, player Player, opts Options) *Client {
	if opts.User == "" {
		opts.User = SystemUser
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Client{
		id:       uuid.NewString(),
		user:     opts.User,
		store:    store,
		player:   player,
		now:      opts.Now,
		listener: opts.Listener,
		snapshot: NewSnapshot(),
	}
	c.log = log.WithFields(log.Fields{"client": c.id, "user": c.user})
	c.driver = NewDriver(player, c.snapshot, c.now, c.notice)
	c.advancer = NewAdvancer(store, c.user, c.now)
	c.publisher = NewPublisher(store, c.user, c.now)
	c.poller = NewPoller(store, c.snapshot, c, opts.PollInterval)
	return c
}

// ID returns the client's session id.
func (c *Client) ID() string { return c.id }

// Run polls the store until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	c.log.Info("client started")
	c.poller.Run(ctx)
	c.log.Info("client stopped")
}

// Poll runs a single poll synchronously.
func (c *Client) Poll(ctx context.Context) { c.poller.Tick(ctx) }

// Nudge requests an immediate poll, e.g. after a push notification.
func (c *Client) Nudge() { c.poller.Trigger() }

// Joined reports whether Join was called.
func (c *Client) Joined() bool { return c.snapshot.Joined() }

// Current returns the last NowPlaying record the client applied.
func (c *Client) Current() NowPlaying {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Join is the explicit sync action. It loads and starts the current video at
// the reconciled position. Calling it again re-applies the record.
func (c *Client) Join(ctx context.Context) error {
	c.snapshot.Join()
	np, err := c.store.ReadNowPlaying(ctx)
	if err != nil {
		return fmt.Errorf("read now playing: %w", err)
	}
	if _, err := c.snapshot.ObserveNowPlaying(np); err != nil {
		return err
	}
	c.mu.Lock()
	c.driver.Reset()
	c.mu.Unlock()
	c.log.Info("joined session")
	if c.ApplyNowPlaying(ctx, np) {
		if _, err := c.AdvanceFrom(ctx, np); err != nil {
			return err
		}
	}
	return nil
}

// ApplyNowPlaying implements Handler.
func (c *Client) ApplyNowPlaying(_ context.Context, np NowPlaying) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = np
	if c.listener != nil {
		c.listener.OnNowPlayingChanged(np)
	}
	return c.driver.Apply(np)
}

// ApplyQueue implements Handler.
func (c *Client) ApplyQueue(queue []QueueItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener != nil {
		c.listener.OnQueueChanged(queue)
	}
}

// AdvanceFrom implements Handler.
func (c *Client) AdvanceFrom(ctx context.Context, observed NowPlaying) (bool, error) {
	promoted, err := c.advancer.AdvanceFrom(ctx, observed)
	if err != nil || !promoted {
		return promoted, err
	}
	c.Nudge()
	return true, nil
}

// Publish records a local transition. On success the snapshot is updated
// and the new record applied locally without waiting for the next poll.
func (c *Client) Publish(ctx context.Context, action Action, position *float64, details string) (bool, error) {
	np, ok, err := c.publisher.Publish(ctx, action, position, details)
	if err != nil {
		c.log.WithError(err).WithField("action", action).Warn("failed to publish playback status")
		return false, err
	}
	if !ok {
		return false, nil
	}
	c.observeLocal(ctx, np)
	return true, nil
}

// Play publishes Play at the player's position.
func (c *Client) Play(ctx context.Context) error {
	pos := c.player.Position()
	_, err := c.Publish(ctx, ActionPlay, &pos, "")
	return err
}

// Pause publishes Pause at the player's position.
func (c *Client) Pause(ctx context.Context) error {
	pos := c.player.Position()
	_, err := c.Publish(ctx, ActionPause, &pos, "")
	return err
}

// Skip ends the current video for everyone. It does nothing when no item is
// pending.
func (c *Client) Skip(ctx context.Context) error {
	queue, err := c.store.ReadQueue(ctx)
	if err != nil {
		return fmt.Errorf("read queue: %w", err)
	}
	if len(Pending(queue)) == 0 {
		c.notice("The queue is empty.")
		return nil
	}
	ok, err := c.Publish(ctx, ActionNext, nil, "")
	if err != nil || ok {
		return err
	}
	np, err := c.store.ReadNowPlaying(ctx)
	if err != nil {
		return fmt.Errorf("read now playing: %w", err)
	}
	if np.Transitioning() {
		_, err = c.AdvanceFrom(ctx, np)
	}
	return err
}

// OnEnded is called by the player when the video finished on its own.
func (c *Client) OnEnded(ctx context.Context) error {
	_, err := c.Publish(ctx, ActionNext, nil, c.Current().Label())
	return err
}

// OnPlaying is called by the player when playback starts. A viewer starting
// a video nobody has played yet records the first Play.
func (c *Client) OnPlaying(ctx context.Context, position float64) error {
	cur := c.Current()
	if cur.phase() != PhasePlaying || cur.Status.Position != 0 || cur.Status.Action == ActionPlay {
		return nil
	}
	_, err := c.Publish(ctx, ActionPlay, &position, "")
	return err
}

// OnPlayerError reports a player failure. Code 5 is transient and reloads
// the video.
func (c *Client) OnPlayerError(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.WithField("code", code).Warn("player error")
	c.notice(PlayerErrorMessage(code))
	if code == 5 {
		c.driver.Reload()
	}
}

// AddVideo queues the video referenced by rawURL. When nothing is current
// it starts playing immediately.
func (c *Client) AddVideo(ctx context.Context, rawURL, title string) error {
	id, err := ExtractVideoID(rawURL)
	if err != nil {
		c.notice("Invalid video link.")
		return err
	}
	link := rawURL
	if ValidVideoID(link) {
		link = WatchURL(id)
	}
	now := c.now()
	item := QueueItem{
		VideoID:   id,
		Title:     title,
		URL:       link,
		Thumbnail: ThumbnailURL(id),
		AddedBy:   c.user,
		AddedAt:   &now,
	}
	item.Status = &PlaybackStatus{Action: ActionAdd, User: c.user, Timestamp: now, Details: item.Label()}

	promoted, err := c.enqueue(ctx, item, now)
	switch {
	case errors.Is(err, ErrAlreadyPlaying):
		c.notice("This video is already playing.")
		return err
	case errors.Is(err, ErrAlreadyQueued):
		c.notice("This video is already in the queue.")
		return err
	case err != nil:
		c.log.WithError(err).Warn("failed to add video")
		return err
	}

	c.log.WithField("videoId", id).Info("added video")
	if promoted != nil {
		c.observeLocal(ctx, *promoted)
	}
	c.Nudge()
	return nil
}

// enqueue adds item through the store's own atomic add when it has one.
func (c *Client) enqueue(ctx context.Context, item QueueItem, now time.Time) (*NowPlaying, error) {
	if e, ok := c.store.(Enqueuer); ok {
		return e.Enqueue(ctx, item)
	}
	var promoted *NowPlaying
	_, err := Mutate(ctx, c.store, func(docs *Documents) error {
		np, err := AddItem(docs, item, c.user, now)
		promoted = np
		return err
	})
	return promoted, err
}

// observeLocal applies a record this client wrote itself.
func (c *Client) observeLocal(ctx context.Context, np NowPlaying) {
	if _, err := c.snapshot.ObserveNowPlaying(np); err != nil {
		c.log.WithError(err).Warn("failed to record now playing")
	}
	if c.ApplyNowPlaying(ctx, np) && c.snapshot.Joined() {
		if _, err := c.AdvanceFrom(ctx, np); err != nil {
			c.log.WithError(err).Warn("failed to advance queue")
		}
	}
}

func (c *Client) notice(msg string) {
	if c.listener != nil {
		c.listener.OnNotice(msg)
	}
}
