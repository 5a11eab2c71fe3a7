package watch

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Action is the transition recorded in a PlaybackStatus.
type Action string

const (
	ActionPlay  Action = "Play"
	ActionPause Action = "Pause"
	ActionNext  Action = "Next"
	ActionAdd   Action = "Add"
)

// SystemUser is recorded as the actor when no display name is known.
const SystemUser = "System"

// PlaybackStatus describes the transition that produced the current record.
// Position is the playback position at Timestamp, not the position now.
type PlaybackStatus struct {
	Action    Action    `json:"action"`
	User      string    `json:"user"`
	Position  float64   `json:"position"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details"`
}

// MarshalJSON writes the timestamp as an RFC 3339 UTC instant, or an empty
// string when it was never set.
func (s PlaybackStatus) MarshalJSON() ([]byte, error) {
	ts := ""
	if !s.Timestamp.IsZero() {
		ts = s.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(struct {
		Action    Action  `json:"action"`
		User      string  `json:"user"`
		Position  float64 `json:"position"`
		Timestamp string  `json:"timestamp"`
		Details   string  `json:"details"`
	}{s.Action, s.User, s.Position, ts, s.Details})
}

// UnmarshalJSON decodes leniently: an unparsable timestamp becomes the zero
// time and a non-numeric position becomes 0.
func (s *PlaybackStatus) UnmarshalJSON(data []byte) error {
	var raw struct {
		Action    Action          `json:"action"`
		User      string          `json:"user"`
		Position  json.RawMessage `json:"position"`
		Timestamp json.RawMessage `json:"timestamp"`
		Details   string          `json:"details"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = PlaybackStatus{
		Action:    raw.Action,
		User:      raw.User,
		Position:  parsePosition(raw.Position),
		Timestamp: parseTimestamp(raw.Timestamp),
		Details:   raw.Details,
	}
	return nil
}

func parsePosition(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	return 0
}

func parseTimestamp(raw json.RawMessage) time.Time {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// QueueItem is an entry waiting to play.
type QueueItem struct {
	VideoID   string          `json:"videoId"`
	Title     string          `json:"title,omitempty"`
	URL       string          `json:"url,omitempty"`
	Thumbnail string          `json:"thumbnail,omitempty"`
	AddedBy   string          `json:"addedBy,omitempty"`
	AddedAt   *time.Time      `json:"addedAt,omitempty"`
	Status    *PlaybackStatus `json:"status,omitempty"`
}

// Placeholder reports whether the item is a legacy "advancing" marker written
// by older clients. Placeholders are never promoted.
func (it QueueItem) Placeholder() bool {
	return it.VideoID == "" || (it.Status != nil && it.Status.Action == ActionNext)
}

// Label returns the best human readable name for the item.
func (it QueueItem) Label() string {
	if it.Title != "" {
		return it.Title
	}
	if it.URL != "" {
		return it.URL
	}
	return it.VideoID
}

// Pending returns the queue without legacy placeholders.
func Pending(queue []QueueItem) []QueueItem {
	out := make([]QueueItem, 0, len(queue))
	for _, it := range queue {
		if !it.Placeholder() {
			out = append(out, it)
		}
	}
	return out
}

// Phase tags the NowPlaying record.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhasePlaying       Phase = "playing"
	PhaseTransitioning Phase = "transitioning"
)

// NowPlaying is the singleton "currently playing" record.
type NowPlaying struct {
	Phase     Phase          `json:"phase"`
	VideoID   string         `json:"videoId"`
	Title     string         `json:"title"`
	URL       string         `json:"url"`
	Thumbnail string         `json:"thumbnail,omitempty"`
	Status    PlaybackStatus `json:"status"`
}

// UnmarshalJSON accepts documents written before the phase tag existed,
// including a null videoId.
func (np *NowPlaying) UnmarshalJSON(data []byte) error {
	type plain NowPlaying
	var raw struct {
		plain
		VideoID *string `json:"videoId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*np = NowPlaying(raw.plain)
	np.VideoID = ""
	if raw.VideoID != nil {
		np.VideoID = *raw.VideoID
	}
	np.Phase = np.phase()
	return nil
}

func (np NowPlaying) phase() Phase {
	switch np.Phase {
	case PhaseIdle, PhasePlaying, PhaseTransitioning:
		return np.Phase
	}
	switch {
	case np.VideoID == "" && np.Status.Action == ActionNext:
		return PhaseTransitioning
	case np.VideoID != "":
		return PhasePlaying
	default:
		return PhaseIdle
	}
}

// Transitioning reports whether the system is advancing to the next item.
func (np NowPlaying) Transitioning() bool { return np.phase() == PhaseTransitioning }

// Idle reports whether nothing is playing and nothing is pending.
func (np NowPlaying) Idle() bool { return np.phase() == PhaseIdle }

// Item returns the current video as a queue item.
func (np NowPlaying) Item() QueueItem {
	return QueueItem{VideoID: np.VideoID, Title: np.Title, URL: np.URL, Thumbnail: np.Thumbnail}
}

// Label returns the best human readable name for the current record.
func (np NowPlaying) Label() string {
	if np.Transitioning() {
		return np.Status.Details
	}
	return np.Item().Label()
}

// Promote builds the NowPlaying record for an item that starts playing.
func Promote(it QueueItem, status PlaybackStatus) NowPlaying {
	return NowPlaying{
		Phase:     PhasePlaying,
		VideoID:   it.VideoID,
		Title:     it.Title,
		URL:       it.URL,
		Thumbnail: it.Thumbnail,
		Status:    status,
	}
}

// Transition builds the record that asks every client to advance the queue.
func Transition(status PlaybackStatus) NowPlaying {
	status.Action = ActionNext
	return NowPlaying{Phase: PhaseTransitioning, Status: status}
}

// Canonical returns the serialization used to detect changes between reads.
func Canonical(v any) ([]byte, error) {
	switch d := v.(type) {
	case NowPlaying:
		d.Phase = d.phase()
		v = d
	case []QueueItem:
		if d == nil {
			v = []QueueItem{}
		}
	}
	return json.Marshal(v)
}

// ActivityEntry is one line of the shared activity log.
type ActivityEntry struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Action    Action    `json:"action"`
	Details   string    `json:"details"`
}
