package subtitle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// parsed subtitle file that preserves format specific metadata
type File interface {
	Format() Format
	Subtitle() *Subtitle
	SetText(index int, text string) error
	Write(path string) error
}

// FormatOf maps a file extension to its format.
func FormatOf(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".srt":
		return FormatSRT, nil
	case ".vtt":
		return FormatVTT, nil
	case ".ass", ".ssa":
		return FormatASS, nil
	default:
		return "", fmt.Errorf("unsupported subtitle format: %s", ext)
	}
}

func Open(path string) (File, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open subtitle: %w", err)
	}
	return Parse(format, data)
}

// Parse reads subtitle data of the given format.
func Parse(format Format, data []byte) (File, error) {
	var (
		f   File
		err error
	)
	switch format {
	case FormatSRT:
		f, err = parseSRT(data)
	case FormatVTT:
		f, err = parseVTT(data)
	case FormatASS:
		f, err = parseASS(data)
	default:
		return nil, fmt.Errorf("unsupported subtitle format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", format, err)
	}
	return f, nil
}
