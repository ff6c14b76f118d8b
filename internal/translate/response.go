package translate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var jsonBlockRegex = regexp.MustCompile("```(?:json)?\\s*")

// parses a raw model reply into results ordered like items
func parseReply(reply string, items []TranslationItem) ([]TranslationResult, error) {
	if strings.TrimSpace(reply) == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}

	cleaned := cleanJSONResponse(reply)

	results, err := extractTranslationResults(cleaned)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: %v (response: %s)",
			ErrMalformedResponse,
			err,
			truncateString(cleaned, 200),
		)
	}

	aligned, err := alignResults(items, results)
	if err != nil {
		return nil, err
	}
	for i := range aligned {
		aligned[i].Text = strings.ReplaceAll(aligned[i].Text, "\\N", "\n")
	}
	return aligned, nil
}

// alignResults checks that every input index comes back exactly once and
// returns the results in input order.
func alignResults(
	items []TranslationItem,
	results []TranslationResult,
) ([]TranslationResult, error) {
	want := make(map[int]bool, len(items))
	for _, item := range items {
		want[item.Index] = true
	}

	got := make(map[int]string, len(results))
	for _, r := range results {
		if !want[r.Index] {
			return nil, fmt.Errorf("%w: unexpected index %d", ErrMalformedResponse, r.Index)
		}
		if _, dup := got[r.Index]; dup {
			return nil, fmt.Errorf("%w: duplicate index %d", ErrMalformedResponse, r.Index)
		}
		got[r.Index] = r.Text
	}

	var missing []int
	for _, item := range items {
		if _, ok := got[item.Index]; !ok {
			missing = append(missing, item.Index)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf(
			"%w: expected %d results, got %d (missing %v)",
			ErrMalformedResponse,
			len(items),
			len(results),
			missing,
		)
	}

	aligned := make([]TranslationResult, len(items))
	for i, item := range items {
		aligned[i] = TranslationResult{Index: item.Index, Text: got[item.Index]}
	}
	return aligned, nil
}

func cleanJSONResponse(s string) string {
	s = strings.TrimSpace(s)

	s = jsonBlockRegex.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "```", "")

	s = strings.TrimSpace(s)

	return s
}

// fixes invalid JSON escape sequences like \N (ASS newline).
// It replaces \N with \\N so JSON can parse it, preserving the literal \N in the output.
func fixInvalidEscapes(s string) string {
	var result strings.Builder
	result.Grow(len(s))

	i := 0
	for i < len(s) {
		if i < len(s)-1 && s[i] == '\\' {
			next := s[i+1]
			// Valid JSON escape sequences: ", \, /, b, f, n, r, t, u
			switch next {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				result.WriteByte(s[i])
				result.WriteByte(s[i+1])
				i += 2
			default:
				result.WriteString("\\\\")
				result.WriteByte(next)
				i += 2
			}
		} else {
			result.WriteByte(s[i])
			i++
		}
	}

	return result.String()
}

func extractTranslationResults(text string) ([]TranslationResult, error) {
	text = fixInvalidEscapes(text)

	for i := 0; i < len(text); i++ {
		if text[i] != '[' && text[i] != '{' {
			continue
		}
		decoder := json.NewDecoder(strings.NewReader(text[i:]))
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			continue
		}
		if results, ok := tryExtractResults(raw); ok && len(results) > 0 {
			return results, nil
		}
	}
	return nil, fmt.Errorf("no valid translation JSON found in response")
}

func tryExtractResults(raw json.RawMessage) ([]TranslationResult, bool) {
	var results []TranslationResult
	if err := json.Unmarshal(
		raw,
		&results,
	); err == nil &&
		validateResults(results) {
		return results, true
	}

	wrapperKeys := []string{"results", "translations", "data", "items"}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, false
	}

	for _, key := range wrapperKeys {
		if fieldRaw, exists := wrapper[key]; exists {
			var fieldResults []TranslationResult
			if err := json.Unmarshal(
				fieldRaw,
				&fieldResults,
			); err == nil && validateResults(fieldResults) {
				return fieldResults, true
			}
		}
	}

	for _, fieldRaw := range wrapper {
		var fieldResults []TranslationResult
		if err := json.Unmarshal(
			fieldRaw,
			&fieldResults,
		); err == nil && validateResults(fieldResults) {
			return fieldResults, true
		}
	}

	return nil, false
}

func validateResults(results []TranslationResult) bool {
	for _, r := range results {
		if r.Text != "" {
			return true
		}
	}
	return false
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
