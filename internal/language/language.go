package language

import (
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// English words accepted in place of codes. Everything else goes through
// BCP 47 parsing.
var words = map[string]string{
	"english":    "en",
	"indonesian": "id",
	"malay":      "ms",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"russian":    "ru",
	"arabic":     "ar",
	"hindi":      "hi",
	"dutch":      "nl",
	"polish":     "pl",
	"swedish":    "sv",
	"danish":     "da",
	"norwegian":  "no",
	"finnish":    "fi",
	"thai":       "th",
	"vietnamese": "vi",
	"turkish":    "tr",
	"tagalog":    "tl",
	"filipino":   "fil",
}

// Parse resolves a language code (ISO 639-1/2/3, BCP 47) or English name.
func Parse(s string) (language.Tag, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "und" {
		return language.Und, false
	}
	if code, ok := words[s]; ok {
		s = code
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und, false
	}
	return tag, true
}

// ToISO3 returns the ISO 639-2 code mkvmerge expects, or "und".
func ToISO3(s string) string {
	tag, ok := Parse(s)
	if !ok {
		return "und"
	}
	base, _ := tag.Base()
	iso3 := base.ISO3()
	if iso3 == "" {
		return "und"
	}
	return iso3
}

// ToISO2 returns the two letter code when one exists, else the shortest
// canonical base code. Empty for unknown input.
func ToISO2(s string) string {
	tag, ok := Parse(s)
	if !ok {
		return ""
	}
	base, _ := tag.Base()
	return base.String()
}

// DisplayName returns the English name used in prompts and track names.
// Unknown input is returned as given.
func DisplayName(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "Unknown"
	}
	tag, ok := Parse(trimmed)
	if !ok {
		return trimmed
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return trimmed
	}
	return name
}

// Equal reports whether two inputs name the same base language.
func Equal(a, b string) bool {
	ta, okA := Parse(a)
	tb, okB := Parse(b)
	if !okA || !okB {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	ba, _ := ta.Base()
	bb, _ := tb.Base()
	return ba == bb
}

// Detect votes over the given texts and returns the ISO 639-1 code of the
// most frequent reliable detection, or "" when nothing is reliable.
func Detect(texts []string) string {
	votes := make(map[string]int)
	for _, text := range texts {
		if len([]rune(strings.TrimSpace(text))) < 8 {
			continue
		}
		info := whatlanggo.Detect(text)
		if !info.IsReliable() {
			continue
		}
		code := info.Lang.Iso6391()
		if code == "" {
			continue
		}
		votes[code]++
	}

	var best string
	var bestCount int
	for code, count := range votes {
		if count > bestCount || (count == bestCount && code < best) {
			best = code
			bestCount = count
		}
	}
	return best
}
