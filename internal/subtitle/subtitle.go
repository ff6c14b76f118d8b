package subtitle

import (
	"time"
)

// Entry is one cue. Timings are read from the source and never written
// back from these fields, so only Text can change in a round trip.
type Entry struct {
	Index     int
	StartTime time.Duration
	EndTime   time.Duration
	Text      string
	// ASS style name, empty for SRT and VTT
	Style string
}

// represents complete subtitle track
type Subtitle struct {
	Entries []Entry
	Format  string
}

// represents supported subtitle formats
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
	FormatASS Format = "ass"
)
