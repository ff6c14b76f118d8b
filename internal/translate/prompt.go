package translate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Preset selects the tone rules sent with every batch.
type Preset string

const (
	PresetStandard Preset = "standard"
	PresetAnime    Preset = "anime"
	PresetFormal   Preset = "formal"
)

// Placeholders a custom rule may use.
const (
	PlaceholderSource = "{source_lang}"
	PlaceholderTarget = "{target_lang}"
)

var presetRules = map[Preset][]string{
	PresetStandard: {
		"Use natural, spoken language suitable for subtitles.",
		"Prioritize meaning, tone and emotion over literal translation.",
		"Do not force-translate commonly used loanwords.",
		"Keep names and proper nouns unchanged.",
		"If a line is already in the target language or is a non-dialogue cue, keep it as-is.",
		"Keep translations concise and subtitle-friendly.",
	},
	PresetAnime: {
		"Use natural, spoken language suitable for anime subtitles.",
		"Prioritize meaning, tone and emotion over literal translation.",
		"Keep names, proper nouns and Japanese honorifics (-san, -kun, -chan, -sama, -senpai) unchanged.",
		"Keep Japanese terms common in anime culture, such as bento or sensei.",
		"Keep attack and technique names in the original Japanese.",
		"Match each character's speech pattern, formal or casual.",
		"Keep translations concise and subtitle-friendly.",
	},
	PresetFormal: {
		"Use formal, professional language.",
		"Keep technical terms and proper nouns precise.",
		"Use complete sentences with proper grammar.",
		"Avoid colloquialisms and slang.",
		"Keep a respectful tone throughout.",
	},
}

// Presets lists the known presets.
func Presets() []Preset {
	out := make([]Preset, 0, len(presetRules))
	for p := range presetRules {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PresetRules returns the style rules of a built-in preset, nil for
// unknown names.
func PresetRules(p Preset) []string {
	rules, ok := presetRules[p]
	if !ok {
		return nil
	}
	return append([]string(nil), rules...)
}

// BuildPrompt creates the translation prompt for LLM providers
func BuildPrompt(opts Options, req Request) string {
	var sb strings.Builder

	if req.SourceLanguage != "" {
		sb.WriteString(fmt.Sprintf(
			"Translate the following %s subtitle texts to %s.\n\n",
			req.SourceLanguage,
			req.TargetLanguage,
		))
	} else {
		sb.WriteString(fmt.Sprintf(
			"Translate the following subtitle texts to %s.\n\n",
			req.TargetLanguage,
		))
	}

	sb.WriteString("STYLE RULES:\n")
	for i, rule := range styleRules(opts, req) {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, rule))
	}
	sb.WriteString("\n")

	sb.WriteString("IMPORTANT INSTRUCTIONS:\n")
	sb.WriteString(
		"1. Translate ONLY the text content, preserving the meaning.\n",
	)
	sb.WriteString(
		"2. Keep any formatting tags (like {\\pos}, {\\an}, etc.) and placeholders (like <<STYLE_0>>) unchanged.\n",
	)
	sb.WriteString("3. Preserve line breaks (\\N) in the same positions.\n")
	sb.WriteString("4. Return ONLY a JSON array with the same structure.\n")
	sb.WriteString("5. Each object must have 'index' and 'text' fields.\n")
	sb.WriteString(
		"6. The 'index' values must match the input indices exactly.\n",
	)
	sb.WriteString("7. Do not add any explanation or markdown formatting.\n\n")

	if opts.Prompt != "" {
		sb.WriteString(
			fmt.Sprintf("Additional instructions: %s\n\n", opts.Prompt),
		)
	}

	if len(req.Context) > 0 {
		sb.WriteString("Previous lines, for context only. Do not translate them:\n")
		for _, line := range req.Context {
			sb.WriteString("[PREV] ")
			sb.WriteString(strings.ReplaceAll(line, "\n", "\\N"))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Input JSON:\n")

	inputJSON, _ := json.MarshalIndent(req.Items, "", "  ")
	sb.Write(inputJSON)

	sb.WriteString("\n\nOutput the translated JSON array only:")

	return sb.String()
}

// styleRules picks custom rules over the preset and fills in the language
// placeholders.
func styleRules(opts Options, req Request) []string {
	rules := opts.Rules
	if len(rules) == 0 {
		var ok bool
		if rules, ok = presetRules[opts.Preset]; !ok {
			rules = presetRules[PresetStandard]
		}
	}

	source := req.SourceLanguage
	if source == "" {
		source = "the source language"
	}
	r := strings.NewReplacer(
		PlaceholderSource, source,
		PlaceholderTarget, req.TargetLanguage,
	)
	out := make([]string, len(rules))
	for i, rule := range rules {
		out[i] = r.Replace(rule)
	}
	return out
}
