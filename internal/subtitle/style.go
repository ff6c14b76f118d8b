package subtitle

import (
	"fmt"
	"regexp"
	"strings"
)

// style names whose lines are signs, songs or titles and stay untranslated
var skipStyles = map[string]bool{
	"sign":     true,
	"signs":    true,
	"op":       true,
	"ed":       true,
	"opening":  true,
	"ending":   true,
	"title":    true,
	"card":     true,
	"note":     true,
	"notes":    true,
	"karaoke":  true,
	"song":     true,
	"songs":    true,
	"lyrics":   true,
	"kara":     true,
	"insert":   true,
	"typeset":  true,
	"typesets": true,
}

var (
	positioningRegex = regexp.MustCompile(`\\(pos|move|org|i?clip)\(`)
	inlineTagRegex   = regexp.MustCompile(`\{\\[^}]*\}`)
	placeholderRegex = regexp.MustCompile(`<<STYLE_(\d+)>>`)
)

// Protected is a subtitle line prepared for the model. Override tags are
// lifted out of Text and put back by Restore.
type Protected struct {
	// Text is what the model sees
	Text string
	// Skip lines keep their original text
	Skip bool

	original string
	prefix   string
	tags     []string
}

// SkipTranslation reports whether a line is a sign or song that should keep
// its original text.
func SkipTranslation(style, text string) bool {
	name := strings.ToLower(strings.TrimSpace(style))
	if skipStyles[name] {
		return true
	}
	for _, word := range strings.FieldsFunc(name, isStyleSeparator) {
		if skipStyles[word] {
			return true
		}
	}
	return positioningRegex.MatchString(text)
}

func isStyleSeparator(r rune) bool {
	return r == '-' || r == '_' || r == ' ' || r == '.' || r == '/'
}

// Protect strips leading override tags and swaps inline ones for numbered
// placeholders.
func Protect(text, style string) Protected {
	if SkipTranslation(style, text) {
		return Protected{Text: text, Skip: true, original: text}
	}

	prefix, rest := extractLeadingTags(text)
	p := Protected{original: text, prefix: prefix}

	p.Text = inlineTagRegex.ReplaceAllStringFunc(rest, func(tag string) string {
		p.tags = append(p.tags, tag)
		return placeholder(len(p.tags) - 1)
	})

	return p
}

// Restore puts the lifted tags back into a translated line.
func (p Protected) Restore(translated string) string {
	if p.Skip {
		return p.original
	}

	used := make([]bool, len(p.tags))
	out := placeholderRegex.ReplaceAllStringFunc(translated, func(m string) string {
		var n int
		if _, err := fmt.Sscanf(m, "<<STYLE_%d>>", &n); err != nil ||
			n < 0 || n >= len(p.tags) {
			return ""
		}
		used[n] = true
		return p.tags[n]
	})

	// dropped placeholders go to the end so overrides stay balanced
	for i, tag := range p.tags {
		if !used[i] {
			out += tag
		}
	}

	return p.prefix + out
}

// HasTags reports whether Protect lifted any tags out of the line.
func (p Protected) HasTags() bool {
	return p.prefix != "" || len(p.tags) > 0
}

func placeholder(n int) string {
	return fmt.Sprintf("<<STYLE_%d>>", n)
}
