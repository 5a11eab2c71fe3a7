package watch

import (
	"math"
	"time"
)

// Reconcile returns the position, in seconds, a client should seek to for the
// given status at instant now. Only Play extrapolates; elapsed time is never
// negative, so a clock ahead of the writer's cannot move playback backwards.
// A zero timestamp counts as "just updated".
func Reconcile(status PlaybackStatus, now time.Time) float64 {
	if status.Action != ActionPlay {
		return status.Position
	}
	ts := status.Timestamp
	if ts.IsZero() {
		ts = now
	}
	elapsed := now.Sub(ts).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return math.Round(status.Position + elapsed)
}
