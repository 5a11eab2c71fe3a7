package watch_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"skidoodle/watchparty/internal/watch"
)

type fakePlayer struct {
	mu       sync.Mutex
	videoID  string
	state    watch.PlayerState
	position float64
	calls    []string
}

func (p *fakePlayer) record(format string, args ...any) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *fakePlayer) Load(id string, start float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("load %s %.0f", id, start)
	p.videoID, p.state, p.position = id, watch.PlayerPlaying, start
}

func (p *fakePlayer) Cue(id string, start float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("cue %s %.0f", id, start)
	p.videoID, p.state, p.position = id, watch.PlayerCued, start
}

func (p *fakePlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("play")
	p.state = watch.PlayerPlaying
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("pause")
	p.state = watch.PlayerPaused
}

func (p *fakePlayer) Seek(pos float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("seek %.0f", pos)
	p.position = pos
}

func (p *fakePlayer) VideoID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.videoID
}

func (p *fakePlayer) State() watch.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *fakePlayer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePlayer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

// plainStore hides the Updater of the wrapped store and counts writes.
type plainStore struct {
	watch.Store

	mu          sync.Mutex
	writes      int
	onReadQueue func()
	beforeWrite func(doc string)
}

func (s *plainStore) ReadQueue(ctx context.Context) ([]watch.QueueItem, error) {
	if s.onReadQueue != nil {
		s.onReadQueue()
	}
	return s.Store.ReadQueue(ctx)
}

func (s *plainStore) WriteQueue(ctx context.Context, q []watch.QueueItem) error {
	if s.beforeWrite != nil {
		s.beforeWrite("queue")
	}
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return s.Store.WriteQueue(ctx, q)
}

func (s *plainStore) WriteNowPlaying(ctx context.Context, np watch.NowPlaying) error {
	if s.beforeWrite != nil {
		s.beforeWrite("now_playing")
	}
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return s.Store.WriteNowPlaying(ctx, np)
}

func (s *plainStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingListener struct {
	mu      sync.Mutex
	notices []string
	queues  int
	records []watch.NowPlaying
}

func (l *recordingListener) OnQueueChanged([]watch.QueueItem) {
	l.mu.Lock()
	l.queues++
	l.mu.Unlock()
}

func (l *recordingListener) OnNowPlayingChanged(np watch.NowPlaying) {
	l.mu.Lock()
	l.records = append(l.records, np)
	l.mu.Unlock()
}

func (l *recordingListener) OnNotice(msg string) {
	l.mu.Lock()
	l.notices = append(l.notices, msg)
	l.mu.Unlock()
}

func (l *recordingListener) Notices() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.notices...)
}

func queued(id, title string) watch.QueueItem {
	return watch.QueueItem{VideoID: id, Title: title, URL: watch.WatchURL(id)}
}

func playing(id string, action watch.Action, pos float64, ts time.Time) watch.NowPlaying {
	return watch.Promote(queued(id, "Video "+id), watch.PlaybackStatus{
		Action: action, User: "ana", Position: pos, Timestamp: ts, Details: "Video " + id,
	})
}
