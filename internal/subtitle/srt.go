package subtitle

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var srtTiming = regexp.MustCompile(
	`^\s*(\d+:\d{1,2}:\d{1,2}[,.]\d{1,3})\s*-->\s*(\d+:\d{1,2}:\d{1,2}[,.]\d{1,3})`,
)

// srtCue keeps the index and timing lines exactly as read.
type srtCue struct {
	id     string
	timing string
	start  time.Duration
	end    time.Duration
	lines  []string
}

// SRTFile is a SubRip file. Cues without text are kept as empty entries.
type SRTFile struct {
	layout
	cues []srtCue
}

func parseSRT(data []byte) (*SRTFile, error) {
	lines, l := splitLines(data)
	f := &SRTFile{layout: l}

	var cur *srtCue
	var pendingID string
	for n, line := range lines {
		m := srtTiming.FindStringSubmatch(line)
		if m == nil {
			switch {
			case cur != nil:
				cur.lines = append(cur.lines, line)
			case strings.TrimSpace(line) != "":
				pendingID = strings.TrimSpace(line)
			}
			continue
		}

		id := pendingID
		pendingID = ""
		if cur != nil {
			// the line right above a timing line is the next cue's index
			if k := len(cur.lines); k > 0 && isCueNumber(cur.lines[k-1]) {
				id = strings.TrimSpace(cur.lines[k-1])
				cur.lines = cur.lines[:k-1]
			}
			f.cues = append(f.cues, cur.trimmed())
		}

		start, err := parseClock(m[1])
		if err != nil {
			return nil, fmt.Errorf("invalid start timestamp at line %d: %w", n+1, err)
		}
		end, err := parseClock(m[2])
		if err != nil {
			return nil, fmt.Errorf("invalid end timestamp at line %d: %w", n+1, err)
		}
		cur = &srtCue{id: id, timing: line, start: start, end: end}
	}
	if cur != nil {
		f.cues = append(f.cues, cur.trimmed())
	}
	return f, nil
}

func isCueNumber(line string) bool {
	_, err := strconv.Atoi(strings.TrimSpace(line))
	return err == nil
}

func (c *srtCue) trimmed() srtCue {
	out := *c
	out.lines = cueLines(strings.Join(c.lines, "\n"))
	return out
}

func (f *SRTFile) Format() Format {
	return FormatSRT
}

func (f *SRTFile) Subtitle() *Subtitle {
	entries := make([]Entry, len(f.cues))
	for i, c := range f.cues {
		index, err := strconv.Atoi(c.id)
		if err != nil {
			index = i + 1
		}
		entries[i] = Entry{
			Index:     index,
			StartTime: c.start,
			EndTime:   c.end,
			Text:      strings.Join(c.lines, "\n"),
		}
	}
	return &Subtitle{Entries: entries, Format: string(FormatSRT)}
}

func (f *SRTFile) SetText(index int, text string) error {
	if index < 0 || index >= len(f.cues) {
		return outOfRange(index, len(f.cues))
	}
	f.cues[index].lines = cueLines(text)
	return nil
}

func (f *SRTFile) Write(path string) error {
	var out []string
	for i, c := range f.cues {
		id := c.id
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		out = append(out, id, c.timing)
		out = append(out, c.lines...)
		out = append(out, "")
	}
	return writeFileAtomic(path, f.join(out))
}
