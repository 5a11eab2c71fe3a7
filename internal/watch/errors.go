package watch

import "errors"

var (
	// ErrInvalidVideoID is returned when a URL or record carries no usable video id.
	ErrInvalidVideoID = errors.New("invalid video id")
	// ErrAlreadyPlaying is returned when adding the video that is currently playing.
	ErrAlreadyPlaying = errors.New("video is currently playing")
	// ErrAlreadyQueued is returned when adding a video that is already in the queue.
	ErrAlreadyQueued = errors.New("video is already in the queue")
	// ErrNoChange aborts an Update without writing anything.
	ErrNoChange = errors.New("no change")
)
