package subtitle

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ASSDialogue is one Dialogue line split into its Format columns.
type ASSDialogue struct {
	// Fields holds the columns before Text
	Fields          []string
	Text            string
	LeadingTags     string
	TextWithoutTags string
	// original is the line as read, written back while Text is unchanged
	original string
	origText string
}

// assLine is a source line in file order. Lines other than dialogues are
// written back verbatim.
type assLine struct {
	raw      string
	dialogue int
}

// ASSFile is an ASS/SSA script. Everything but dialogue text is kept as
// read, including section order, comments and Aegisub extradata.
type ASSFile struct {
	layout
	lines     []assLine
	columns   []string
	textCol   int
	dialogues []ASSDialogue
}

func parseASS(data []byte) (*ASSFile, error) {
	lines, l := splitLines(data)
	f := &ASSFile{layout: l, textCol: -1}

	inEvents := false
	for n, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			inEvents = strings.EqualFold(trimmed, "[Events]")
			f.lines = append(f.lines, assLine{raw: line, dialogue: -1})
			continue
		}

		if inEvents && strings.HasPrefix(trimmed, "Format:") {
			if err := f.setColumns(trimmed); err != nil {
				return nil, err
			}
			f.lines = append(f.lines, assLine{raw: line, dialogue: -1})
			continue
		}

		if inEvents && strings.HasPrefix(trimmed, "Dialogue:") {
			d, err := f.parseDialogue(line)
			if err != nil {
				return nil, fmt.Errorf("failed to parse Dialogue at line %d: %w", n+1, err)
			}
			f.lines = append(f.lines, assLine{dialogue: len(f.dialogues)})
			f.dialogues = append(f.dialogues, d)
			continue
		}

		f.lines = append(f.lines, assLine{raw: line, dialogue: -1})
	}

	if f.textCol < 0 {
		return nil, fmt.Errorf("ASS file missing Format line in [Events] section")
	}
	return f, nil
}

func (f *ASSFile) setColumns(formatLine string) error {
	columns := strings.Split(strings.TrimPrefix(formatLine, "Format:"), ",")
	for i, col := range columns {
		columns[i] = strings.TrimSpace(col)
	}
	f.columns = columns
	f.textCol = f.columnIndex("text")
	if f.textCol < 0 {
		return fmt.Errorf("ASS file missing Text column in Format line")
	}
	return nil
}

func (f *ASSFile) parseDialogue(line string) (ASSDialogue, error) {
	if len(f.columns) == 0 {
		return ASSDialogue{}, errors.New("dialogue line before Format line")
	}
	content := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "Dialogue:"))

	// Text is the last column and may itself contain commas
	parts := strings.SplitN(content, ",", len(f.columns))
	if len(parts) < len(f.columns) {
		return ASSDialogue{}, fmt.Errorf("expected %d fields, got %d", len(f.columns), len(parts))
	}

	text := parts[f.textCol]
	lead, rest := extractLeadingTags(text)
	return ASSDialogue{
		Fields:          parts[:f.textCol],
		Text:            text,
		LeadingTags:     lead,
		TextWithoutTags: rest,
		original:        line,
		origText:        text,
	}, nil
}

var leadingTagsRegex = regexp.MustCompile(`^(\{[^}]*\})+`)

func extractLeadingTags(text string) (string, string) {
	match := leadingTagsRegex.FindString(text)
	if match == "" {
		return "", text
	}
	return match, text[len(match):]
}

// decodeASSText turns hard and soft line breaks into newlines.
func decodeASSText(text string) string {
	text = strings.ReplaceAll(text, `\N`, "\n")
	return strings.ReplaceAll(text, `\n`, "\n")
}

func (f *ASSFile) Format() Format {
	return FormatASS
}

func (f *ASSFile) Subtitle() *Subtitle {
	entries := make([]Entry, len(f.dialogues))
	styleCol := f.columnIndex("style")
	startCol := f.columnIndex("start")
	endCol := f.columnIndex("end")

	for i, d := range f.dialogues {
		entries[i] = Entry{
			Index:     i + 1,
			StartTime: d.clock(startCol),
			EndTime:   d.clock(endCol),
			Text:      decodeASSText(d.Text),
			Style:     d.field(styleCol),
		}
	}
	return &Subtitle{Entries: entries, Format: string(FormatASS)}
}

func (d ASSDialogue) field(col int) string {
	if col < 0 || col >= len(d.Fields) {
		return ""
	}
	return strings.TrimSpace(d.Fields[col])
}

func (d ASSDialogue) clock(col int) time.Duration {
	ts, err := parseClock(d.field(col))
	if err != nil {
		return 0
	}
	return ts
}

// position of a named Format column, -1 when absent
func (f *ASSFile) columnIndex(name string) int {
	for i, col := range f.columns {
		if strings.EqualFold(col, name) {
			return i
		}
	}
	return -1
}

// SetText replaces the text of a dialogue. Text equal to the decoded
// original leaves the line as read, soft breaks included.
func (f *ASSFile) SetText(index int, text string) error {
	if index < 0 || index >= len(f.dialogues) {
		return outOfRange(index, len(f.dialogues))
	}
	d := &f.dialogues[index]
	if text == decodeASSText(d.origText) {
		d.Text = d.origText
		d.LeadingTags, d.TextWithoutTags = extractLeadingTags(d.origText)
		return nil
	}

	assText := strings.ReplaceAll(text, "\n", `\N`)
	// restored translations already carry the leading tags
	if d.LeadingTags != "" && strings.HasPrefix(assText, d.LeadingTags) {
		assText = strings.TrimPrefix(assText, d.LeadingTags)
	}
	d.Text = d.LeadingTags + assText
	d.TextWithoutTags = assText
	return nil
}

func (f *ASSFile) Write(path string) error {
	out := make([]string, 0, len(f.lines))
	for _, l := range f.lines {
		if l.dialogue < 0 {
			out = append(out, l.raw)
			continue
		}
		out = append(out, f.dialogueLine(f.dialogues[l.dialogue]))
	}
	return writeFileAtomic(path, f.join(out))
}

func (f *ASSFile) dialogueLine(d ASSDialogue) string {
	if d.Text == d.origText {
		return d.original
	}
	fields := make([]string, 0, len(f.columns))
	fields = append(fields, d.Fields...)
	fields = append(fields, d.Text)
	return "Dialogue: " + strings.Join(fields, ",")
}
