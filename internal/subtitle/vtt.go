package subtitle

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var vttTiming = regexp.MustCompile(
	`^\s*((?:\d+:)?\d{2}:\d{2}\.\d{3})\s*-->\s*((?:\d+:)?\d{2}:\d{2}\.\d{3})`,
)

// vttBlock is either a cue or a block written back verbatim (NOTE,
// STYLE, REGION).
type vttBlock struct {
	raw []string
	cue int
}

// vttCue keeps the identifier and the timing line with its settings.
type vttCue struct {
	id     string
	timing string
	start  time.Duration
	end    time.Duration
	lines  []string
}

// VTTFile is a WebVTT file. Header, comments, styles and cue settings
// survive a round trip.
type VTTFile struct {
	layout
	header []string
	blocks []vttBlock
	cues   []vttCue
}

func parseVTT(data []byte) (*VTTFile, error) {
	lines, l := splitLines(data)
	f := &VTTFile{layout: l}

	blocks := splitBlocks(lines)
	if len(blocks) > 0 && strings.HasPrefix(strings.TrimSpace(blocks[0].lines[0]), "WEBVTT") {
		f.header = blocks[0].lines
		blocks = blocks[1:]
	}

	for _, b := range blocks {
		timingAt := -1
		for i := 0; i < len(b.lines) && i < 2; i++ {
			if vttTiming.MatchString(b.lines[i]) {
				timingAt = i
				break
			}
		}
		if timingAt < 0 {
			f.blocks = append(f.blocks, vttBlock{raw: b.lines, cue: -1})
			continue
		}

		m := vttTiming.FindStringSubmatch(b.lines[timingAt])
		start, err := parseClock(m[1])
		if err != nil {
			return nil, fmt.Errorf("invalid start timestamp at line %d: %w", b.first+timingAt, err)
		}
		end, err := parseClock(m[2])
		if err != nil {
			return nil, fmt.Errorf("invalid end timestamp at line %d: %w", b.first+timingAt, err)
		}
		c := vttCue{timing: b.lines[timingAt], start: start, end: end, lines: b.lines[timingAt+1:]}
		if timingAt == 1 {
			c.id = b.lines[0]
		}
		f.blocks = append(f.blocks, vttBlock{cue: len(f.cues)})
		f.cues = append(f.cues, c)
	}
	return f, nil
}

type lineBlock struct {
	// first is the 1-based line number of lines[0]
	first int
	lines []string
}

// splitBlocks groups lines separated by blank lines.
func splitBlocks(lines []string) []lineBlock {
	var blocks []lineBlock
	var cur *lineBlock
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			cur = nil
			continue
		}
		if cur == nil {
			blocks = append(blocks, lineBlock{first: i + 1})
			cur = &blocks[len(blocks)-1]
		}
		cur.lines = append(cur.lines, line)
	}
	return blocks
}

func (f *VTTFile) Format() Format {
	return FormatVTT
}

func (f *VTTFile) Subtitle() *Subtitle {
	entries := make([]Entry, len(f.cues))
	for i, c := range f.cues {
		index, err := strconv.Atoi(strings.TrimSpace(c.id))
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
	return &Subtitle{Entries: entries, Format: string(FormatVTT)}
}

func (f *VTTFile) SetText(index int, text string) error {
	if index < 0 || index >= len(f.cues) {
		return outOfRange(index, len(f.cues))
	}
	f.cues[index].lines = cueLines(text)
	return nil
}

func (f *VTTFile) Write(path string) error {
	header := f.header
	if len(header) == 0 {
		header = []string{"WEBVTT"}
	}
	out := append(append([]string{}, header...), "")
	for _, b := range f.blocks {
		if b.cue < 0 {
			out = append(out, b.raw...)
		} else {
			c := f.cues[b.cue]
			if c.id != "" {
				out = append(out, c.id)
			}
			out = append(out, c.timing)
			out = append(out, c.lines...)
		}
		out = append(out, "")
	}
	return writeFileAtomic(path, f.join(out))
}
