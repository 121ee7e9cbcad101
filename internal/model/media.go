package model

import "fmt"

type MediaKind string

const (
	MediaKindImage = MediaKind("image")
	MediaKindVideo = MediaKind("video")
	MediaKindAudio = MediaKind("audio")
)

// ParseMediaKind accepts the attachment kinds plus "music", which produces audio.
func ParseMediaKind(s string) (MediaKind, error) {
	switch s {
	case "image":
		return MediaKindImage, nil
	case "video":
		return MediaKindVideo, nil
	case "audio", "music":
		return MediaKindAudio, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMediaKind, s)
	}
}

type MediaRequest struct {
	Kind     MediaKind
	Prompt   string
	Genre    string
	Mood     string
	Duration int
}

type MediaResult struct {
	URL    string
	IsDemo bool
}
