package subtitle

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const bom = "\ufeff"

// layout is the byte-level shape of a parsed file, restored on write.
type layout struct {
	bom  bool
	crlf bool
}

func splitLines(data []byte) ([]string, layout) {
	var l layout
	text := string(data)
	if strings.HasPrefix(text, bom) {
		l.bom = true
		text = text[len(bom):]
	}
	l.crlf = strings.Contains(text, "\r\n")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil, l
	}
	return strings.Split(text, "\n"), l
}

func (l layout) join(lines []string) []byte {
	nl := "\n"
	if l.crlf {
		nl = "\r\n"
	}
	var b strings.Builder
	if l.bom {
		b.WriteString(bom)
	}
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString(nl)
	}
	return []byte(b.String())
}

// cueLines splits text for a line based cue. Blank lines would end the
// cue early, so they are dropped.
func cueLines(text string) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// parseClock reads [h:]mm:ss[.,]fff. The fraction may have one to three
// digits: ASS centiseconds "05.50" are 550ms.
func parseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	whole, frac := s, ""
	if i := strings.LastIndexAny(s, ".,"); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	parts := strings.Split(whole, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	if len(parts) == 2 {
		parts = append([]string{"0"}, parts...)
	}
	var fields [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		fields[i] = n
	}
	if len(frac) > 3 {
		frac = frac[:3]
	}
	millis := 0
	if frac != "" {
		n, err := strconv.Atoi(frac + strings.Repeat("0", 3-len(frac)))
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		millis = n
	}
	return time.Duration(fields[0])*time.Hour +
		time.Duration(fields[1])*time.Minute +
		time.Duration(fields[2])*time.Second +
		time.Duration(millis)*time.Millisecond, nil
}

func outOfRange(index, n int) error {
	return fmt.Errorf("index %d out of range (0-%d)", index, n-1)
}

// writes data next to path and renames it into place so a crash never
// leaves a half written subtitle behind
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write subtitle: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync subtitle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to write subtitle: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to move subtitle into place: %w", err)
	}
	return nil
}
