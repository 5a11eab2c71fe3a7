package watch

import (
	"math"
	"time"

	log "github.com/sirupsen/logrus"
)

// driftTolerance is how far, in seconds, a paused player may sit from the
// shared position before it is corrected.
const driftTolerance = 2.0

// Driver turns NowPlaying records into player commands. It remembers the last
// record it applied so a repeated payload produces no second command.
// A Driver is not safe for concurrent use; Client serializes calls.
type Driver struct {
	player   Player
	snapshot *Snapshot
	now      func() time.Time
	notice   func(string)
	applied  string
}

// NewDriver creates a Driver for player. notice may be nil.
func NewDriver(player Player, snapshot *Snapshot, now func() time.Time, notice func(string)) *Driver {
	if now == nil {
		now = time.Now
	}
	if notice == nil {
		notice = func(string) {}
	}
	return &Driver{player: player, snapshot: snapshot, now: now, notice: notice}
}

// Reset forgets the last applied record so the next Apply acts again.
func (d *Driver) Reset() {
	d.applied = ""
}

// Apply brings the player in line with np. It reports whether np asks for the
// queue to be advanced; the driver itself never loads a missing video.
func (d *Driver) Apply(np NowPlaying) (advance bool) {
	if np.Transitioning() {
		return true
	}

	key, err := Canonical(np)
	if err != nil {
		log.WithError(err).Warn("failed to encode now playing record")
		return false
	}
	if string(key) == d.applied {
		return false
	}
	d.applied = string(key)

	if np.Idle() {
		return false
	}
	if !ValidVideoID(np.VideoID) {
		log.WithField("videoId", np.VideoID).Warn("refusing to load invalid video id")
		d.notice("Error playing video. Invalid video ID or parameters.")
		return false
	}

	pos := Reconcile(np.Status, d.now())
	fields := log.Fields{"videoId": np.VideoID, "action": np.Status.Action, "position": pos}

	if !d.snapshot.Joined() {
		if d.player.VideoID() != np.VideoID || d.player.State() == PlayerIdle {
			log.WithFields(fields).Debug("cueing video until joined")
			d.player.Cue(np.VideoID, pos)
		}
		return false
	}

	switch np.Status.Action {
	case ActionPlay, ActionAdd:
		if d.player.VideoID() != np.VideoID {
			log.WithFields(fields).Info("loading video")
			d.player.Load(np.VideoID, pos)
			return false
		}
		if d.player.State() != PlayerPlaying {
			log.WithFields(fields).Info("resuming video")
			d.player.Seek(pos)
			d.player.Play()
		}
	case ActionPause:
		if d.player.VideoID() != np.VideoID {
			log.WithFields(fields).Info("cueing paused video")
			d.player.Cue(np.VideoID, np.Status.Position)
			return false
		}
		if st := d.player.State(); st == PlayerPlaying {
			d.player.Pause()
		}
		if math.Abs(d.player.Position()-np.Status.Position) > driftTolerance {
			log.WithFields(fields).Debug("correcting paused position")
			d.player.Seek(np.Status.Position)
		}
	default:
		if d.player.VideoID() != np.VideoID {
			d.player.Cue(np.VideoID, pos)
		}
	}
	return false
}

// Reload cues the loaded video again at its current position, used after a
// transient player error.
func (d *Driver) Reload() {
	id := d.player.VideoID()
	if id == "" {
		return
	}
	d.player.Cue(id, d.player.Position())
}
