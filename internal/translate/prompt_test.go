package translate

import (
	"strings"
	"testing"
)

func TestBuildPrompt(t *testing.T) {
	req := Request{
		SourceLanguage: "English",
		TargetLanguage: "Japanese",
		Items: []TranslationItem{
			{Index: 0, Text: "Hello world"},
			{Index: 1, Text: "Goodbye"},
		},
	}

	prompt := BuildPrompt(Options{}, req)

	if !strings.Contains(prompt, "English subtitle texts") {
		t.Error("prompt should contain input language")
	}
	if !strings.Contains(prompt, "to Japanese") {
		t.Error("prompt should contain target language")
	}
	if !strings.Contains(prompt, "Hello world") {
		t.Error("prompt should contain input text")
	}
	if !strings.Contains(prompt, `"index": 0`) {
		t.Error("prompt should contain index")
	}
	if strings.Contains(prompt, "[PREV]") {
		t.Error("prompt should have no context section without context")
	}
}

func TestBuildPromptWithoutInputLanguage(t *testing.T) {
	req := Request{
		TargetLanguage: "Spanish",
		Items:          []TranslationItem{{Index: 0, Text: "Hello"}},
	}

	prompt := BuildPrompt(Options{}, req)

	if strings.Contains(prompt, "English") || strings.Contains(prompt, "from ") {
		t.Error("prompt should not contain input language when not specified")
	}
	if !strings.Contains(prompt, "to Spanish") {
		t.Error("prompt should contain target language")
	}
}

func TestBuildPromptContextAndPreset(t *testing.T) {
	req := Request{
		TargetLanguage: "Indonesian",
		Context:        []string{"Where were we?", "At the station.\nNear the gate."},
		Items:          []TranslationItem{{Index: 12, Text: "Let's go."}},
	}

	prompt := BuildPrompt(Options{Preset: PresetAnime, Prompt: "Use casual speech."}, req)

	if !strings.Contains(prompt, "[PREV] Where were we?") {
		t.Error("prompt should carry context lines")
	}
	if !strings.Contains(prompt, `[PREV] At the station.\NNear the gate.`) {
		t.Error("context line breaks should be escaped")
	}
	if !strings.Contains(prompt, "honorifics") {
		t.Error("anime preset rules missing")
	}
	if !strings.Contains(prompt, "Additional instructions: Use casual speech.") {
		t.Error("custom instructions missing")
	}
}

func TestBuildPromptCustomRules(t *testing.T) {
	req := Request{
		SourceLanguage: "Japanese",
		TargetLanguage: "Indonesian",
		Items:          []TranslationItem{{Index: 0, Text: "Ikuzo!"}},
	}
	opts := Options{
		Preset: "kids",
		Rules:  []string{"Use simple {target_lang} words.", "Explain {source_lang} puns briefly."},
	}

	prompt := BuildPrompt(opts, req)

	if !strings.Contains(prompt, "1. Use simple Indonesian words.") {
		t.Errorf("custom rule missing or not filled in:\n%s", prompt)
	}
	if !strings.Contains(prompt, "2. Explain Japanese puns briefly.") {
		t.Errorf("source placeholder not filled in:\n%s", prompt)
	}
	if strings.Contains(prompt, "spoken language suitable for subtitles") {
		t.Error("custom rules should replace the preset rules")
	}
}

func TestPresetRulesReturnsCopy(t *testing.T) {
	rules := PresetRules(PresetFormal)
	if len(rules) == 0 {
		t.Fatal("formal preset has no rules")
	}
	rules[0] = "changed"
	if PresetRules(PresetFormal)[0] == "changed" {
		t.Error("PresetRules exposed the shared slice")
	}
	if got := len(Presets()); got != 3 {
		t.Errorf("expected 3 presets, got %d", got)
	}
	if PresetRules("pirate") != nil {
		t.Error("unknown preset should have no rules")
	}
}
