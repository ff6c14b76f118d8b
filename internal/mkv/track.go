package mkv

import (
	"fmt"
	"strings"
)

// SubtitleTrack is a subtitle stream inside a Matroska file.
type SubtitleTrack struct {
	ID       int
	Codec    string
	Language string
	Name     string
	Default  bool
	Forced   bool
}

// Extension returns the file extension mkvextract writes for the codec.
func (t SubtitleTrack) Extension() string {
	codec := strings.ToLower(t.Codec)
	switch {
	case strings.Contains(codec, "subrip"), strings.Contains(codec, "srt"):
		return ".srt"
	case strings.Contains(codec, "substation"),
		strings.Contains(codec, "ass"),
		strings.Contains(codec, "ssa"):
		return ".ass"
	case strings.Contains(codec, "webvtt"), strings.Contains(codec, "vtt"):
		return ".vtt"
	case strings.Contains(codec, "vobsub"):
		return ".sub"
	case strings.Contains(codec, "pgs"), strings.Contains(codec, "hdmv"):
		return ".sup"
	default:
		return ".srt"
	}
}

// Text reports whether the track holds text that can be translated.
// Image based tracks (PGS, VobSub) cannot.
func (t SubtitleTrack) Text() bool {
	codec := strings.ToLower(t.Codec)
	for _, known := range textCodecs {
		if strings.Contains(codec, known) {
			return true
		}
	}
	return false
}

var textCodecs = []string{"subrip", "srt", "substation", "ass", "ssa", "webvtt", "vtt"}

func (t SubtitleTrack) DisplayName() string {
	parts := []string{fmt.Sprintf("Track %d", t.ID)}
	if t.Name != "" {
		parts = append(parts, "- "+t.Name)
	}
	if t.Language != "" && t.Language != "und" {
		parts = append(parts, "("+t.Language+")")
	}
	if t.Codec != "" {
		parts = append(parts, "["+t.Codec+"]")
	}
	if t.Default {
		parts = append(parts, "*default*")
	}
	return strings.Join(parts, " ")
}
