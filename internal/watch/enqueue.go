package watch

import "time"

// AddItem applies the add rules to docs. A video that is playing or already
// pending is rejected. The item starts playing at once when nothing is
// current, or when the session waits for a next item and none is pending;
// otherwise it is appended. The returned record is nil when the item was
// queued.
func AddItem(docs *Documents, item QueueItem, user string, now time.Time) (*NowPlaying, error) {
	if user == "" {
		user = SystemUser
	}
	cur := docs.NowPlaying
	if cur.phase() == PhasePlaying && cur.VideoID == item.VideoID {
		return nil, ErrAlreadyPlaying
	}
	pending := Pending(docs.Queue)
	for _, it := range pending {
		if it.VideoID == item.VideoID {
			return nil, ErrAlreadyQueued
		}
	}
	if cur.Idle() || (cur.Transitioning() && len(pending) == 0) {
		np := Promote(item, PlaybackStatus{
			Action:    ActionPlay,
			User:      user,
			Timestamp: now,
			Details:   item.Label(),
		})
		docs.NowPlaying = np
		return &np, nil
	}
	docs.Queue = append(docs.Queue, item)
	return nil, nil
}
