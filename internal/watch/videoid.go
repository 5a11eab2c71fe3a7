package watch

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	videoURLPattern = regexp.MustCompile(`(?:https?://)?(?:www\.|m\.)?(?:youtube\.com/(?:watch\?(?:.*&)?v=|embed/|shorts/)|youtu\.be/)([\w-]{11})`)
	videoIDPattern  = regexp.MustCompile(`^[\w-]{11}$`)
)

// ValidVideoID reports whether id has the shape of a catalog video id.
func ValidVideoID(id string) bool {
	return videoIDPattern.MatchString(id)
}

// ExtractVideoID returns the video id referenced by a watch, embed or short
// link. A bare id is accepted as is.
func ExtractVideoID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if ValidVideoID(raw) {
		return raw, nil
	}
	m := videoURLPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidVideoID, raw)
	}
	return m[1], nil
}

// ThumbnailURL is the catalog's default thumbnail for a video.
func ThumbnailURL(id string) string {
	return "https://img.youtube.com/vi/" + id + "/3.jpg"
}

// WatchURL is the canonical link for a video.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
