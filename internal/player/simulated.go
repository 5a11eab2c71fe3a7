// Package player provides a headless stand-in for the embedded video player,
// used by the command line client.
package player

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"skidoodle/watchparty/internal/watch"
)

// Events are the callbacks a Simulated player fires. They run on their own
// goroutine so they may call back into whoever drives the player.
type Events struct {
	OnPlaying func(position float64)
	OnEnded   func()
}

var _ watch.Player = (*Simulated)(nil)

// Simulated tracks position against a clock instead of decoding video.
// Every video is assumed to last Duration; zero means it never ends.
type Simulated struct {
	mu       sync.Mutex
	now      func() time.Time
	duration time.Duration
	events   Events

	videoID string
	state   watch.PlayerState
	base    float64
	since   time.Time
	timer   *time.Timer
}

// NewSimulated creates an idle player.
func NewSimulated(duration time.Duration, now func() time.Time) *Simulated {
	if now == nil {
		now = time.Now
	}
	return &Simulated{now: now, duration: duration}
}

// SetEvents installs the callbacks.
func (s *Simulated) SetEvents(e Events) {
	s.mu.Lock()
	s.events = e
	s.mu.Unlock()
}

func (s *Simulated) Load(videoID string, start float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.WithFields(log.Fields{"videoId": videoID, "position": start}).Info("player: loading video")
	s.videoID = videoID
	s.base = start
	s.start()
}

func (s *Simulated) Cue(videoID string, start float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.WithFields(log.Fields{"videoId": videoID, "position": start}).Info("player: cueing video")
	s.stopTimer()
	s.videoID = videoID
	s.base = start
	s.state = watch.PlayerCued
}

func (s *Simulated) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.videoID == "" || s.state == watch.PlayerPlaying {
		return
	}
	log.WithField("position", s.base).Info("player: playing")
	s.start()
}

func (s *Simulated) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != watch.PlayerPlaying {
		return
	}
	s.base = s.position()
	s.stopTimer()
	s.state = watch.PlayerPaused
	log.WithField("position", s.base).Info("player: paused")
}

func (s *Simulated) Seek(position float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = position
	s.since = s.now()
	if s.state == watch.PlayerPlaying {
		s.schedule()
	}
}

func (s *Simulated) VideoID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoID
}

func (s *Simulated) State() watch.PlayerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Simulated) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position()
}

// Stop releases the end-of-video timer.
func (s *Simulated) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimer()
}

// position must be called with s.mu held.
func (s *Simulated) position() float64 {
	if s.state != watch.PlayerPlaying {
		return s.base
	}
	return s.base + s.now().Sub(s.since).Seconds()
}

// start must be called with s.mu held.
func (s *Simulated) start() {
	s.state = watch.PlayerPlaying
	s.since = s.now()
	s.schedule()
	if cb := s.events.OnPlaying; cb != nil {
		go cb(s.base)
	}
}

// schedule must be called with s.mu held.
func (s *Simulated) schedule() {
	s.stopTimer()
	if s.duration <= 0 {
		return
	}
	remaining := s.duration - time.Duration(s.base*float64(time.Second))
	if remaining < 0 {
		remaining = 0
	}
	videoID := s.videoID
	s.timer = time.AfterFunc(remaining, func() { s.ended(videoID) })
}

func (s *Simulated) ended(videoID string) {
	s.mu.Lock()
	if s.videoID != videoID || s.state != watch.PlayerPlaying {
		s.mu.Unlock()
		return
	}
	s.base = s.duration.Seconds()
	s.state = watch.PlayerEnded
	s.timer = nil
	cb := s.events.OnEnded
	s.mu.Unlock()

	log.WithField("videoId", videoID).Info("player: video ended")
	if cb != nil {
		go cb()
	}
}

// stopTimer must be called with s.mu held.
func (s *Simulated) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
