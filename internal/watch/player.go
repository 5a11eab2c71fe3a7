package watch

// PlayerState is the local player's state as seen by the driver.
type PlayerState int

const (
	PlayerIdle PlayerState = iota
	PlayerCued
	PlayerPlaying
	PlayerPaused
	PlayerEnded
)

func (s PlayerState) String() string {
	switch s {
	case PlayerCued:
		return "cued"
	case PlayerPlaying:
		return "playing"
	case PlayerPaused:
		return "paused"
	case PlayerEnded:
		return "ended"
	default:
		return "idle"
	}
}

// Player is the embedded video player a client drives. Commands are fire and
// forget, like the browser player API they model.
type Player interface {
	// Load loads a video and starts playing it at start seconds.
	Load(videoID string, start float64)
	// Cue loads a video at start seconds without playing it.
	Cue(videoID string, start float64)
	Play()
	Pause()
	Seek(position float64)

	VideoID() string
	State() PlayerState
	Position() float64
}

// PlayerErrorMessage maps an embedded player error code to a user notice.
func PlayerErrorMessage(code int) string {
	msg := "Error playing video. "
	switch code {
	case 2:
		return msg + "Invalid video ID or parameters."
	case 5:
		return msg + "HTML5 player error."
	case 100:
		return msg + "Video not found or removed."
	case 101, 150:
		return msg + "Video not allowed to be played in embedded players."
	default:
		return msg + "Please try again."
	}
}
