package subtitle

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Apply replaces the text of every entry with its translation. Timings and
// format metadata are left untouched.
func Apply(f File, translations []string) error {
	entries := f.Subtitle().Entries
	if len(translations) != len(entries) {
		return fmt.Errorf(
			"translation count mismatch: have %d entries, got %d translations",
			len(entries),
			len(translations),
		)
	}

	for i, text := range translations {
		if err := f.SetText(i, text); err != nil {
			return fmt.Errorf("failed to set entry %d: %w", i+1, err)
		}
	}
	return nil
}

// TranslatedPath names the translated copy of a subtitle file,
// e.g. episode.ass -> episode.ind.ass
func TranslatedPath(path, targetLang string) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	lang := strings.ToLower(strings.TrimSpace(targetLang))
	if lang == "" {
		return stem + ".translated" + ext
	}
	return stem + "." + lang + ext
}
