package watch

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultPollInterval = 3 * time.Second
	MinPollInterval     = time.Second
	MaxPollInterval     = 5 * time.Second
)

// Handler receives the changes a Poller detects.
type Handler interface {
	// ApplyNowPlaying applies a changed record and reports whether the queue
	// should be advanced.
	ApplyNowPlaying(ctx context.Context, np NowPlaying) bool
	ApplyQueue(queue []QueueItem)
	// AdvanceFrom attempts to advance from the observed record.
	AdvanceFrom(ctx context.Context, observed NowPlaying) (bool, error)
}

// Poller periodically reads both documents and hands changes to a Handler.
type Poller struct {
	store    Store
	snapshot *Snapshot
	handler  Handler
	interval time.Duration
	trigger  chan struct{}

	mu    sync.Mutex
	retry bool
}

// NewPoller creates a Poller. The interval is clamped to
// [MinPollInterval, MaxPollInterval]; zero selects DefaultPollInterval.
func NewPoller(store Store, snapshot *Snapshot, handler Handler, interval time.Duration) *Poller {
	switch {
	case interval == 0:
		interval = DefaultPollInterval
	case interval < MinPollInterval:
		interval = MinPollInterval
	case interval > MaxPollInterval:
		interval = MaxPollInterval
	}
	return &Poller{
		store:    store,
		snapshot: snapshot,
		handler:  handler,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// Interval returns the effective poll interval.
func (p *Poller) Interval() time.Duration { return p.interval }

// Run polls until ctx is cancelled. The first tick happens immediately.
func (p *Poller) Run(ctx context.Context) {
	log.WithField("interval", p.interval).Info("poller started")
	defer log.Info("poller stopped")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		case <-p.trigger:
			p.Tick(ctx)
		}
	}
}

// Trigger asks Run for an extra tick without waiting for the ticker.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Tick performs one poll. Read failures are logged and retried on the next
// tick. The snapshot is updated before the handler acts on a change.
func (p *Poller) Tick(ctx context.Context) {
	np, err := p.store.ReadNowPlaying(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to read now playing")
		return
	}
	advance := false
	changed, err := p.snapshot.ObserveNowPlaying(np)
	if err != nil {
		log.WithError(err).Warn("failed to encode now playing")
		return
	}
	if changed {
		log.WithField("phase", np.phase()).Debug("now playing changed")
		advance = p.handler.ApplyNowPlaying(ctx, np)
	}

	queue, err := p.store.ReadQueue(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to read queue")
	} else {
		changed, err := p.snapshot.ObserveQueue(queue)
		if err != nil {
			log.WithError(err).Warn("failed to encode queue")
		} else if changed {
			log.WithField("length", len(queue)).Debug("queue changed")
			p.handler.ApplyQueue(queue)
			if np.Transitioning() {
				advance = true
			}
		}
	}

	if p.takeRetry() && np.Transitioning() {
		advance = true
	}
	if !advance || !p.snapshot.Joined() {
		return
	}
	if _, err := p.handler.AdvanceFrom(ctx, np); err != nil {
		log.WithError(err).Warn("failed to advance queue, retrying next tick")
		p.mu.Lock()
		p.retry = true
		p.mu.Unlock()
	}
}

func (p *Poller) takeRetry() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.retry
	p.retry = false
	return r
}
