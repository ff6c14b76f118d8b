// Package prompts keeps the library of translation style prompts: the
// built-in presets plus prompts the user saved to a TOML file.
package prompts

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mgpai22/subauto/internal/translate"
)

// MaxLength bounds the rules text of a prompt, in bytes.
const MaxLength = 10000

var (
	ErrNotFound = errors.New("prompt not found")
	ErrLocked   = errors.New("built-in prompts cannot be changed")
	ErrExists   = errors.New("prompt already exists")
	ErrInvalid  = errors.New("invalid prompt")
)

// Prompt is a named set of style rules. Rules hold one rule per line and
// may use {source_lang} and {target_lang}.
type Prompt struct {
	Name        string    `toml:"name"`
	Description string    `toml:"description,omitempty"`
	Rules       string    `toml:"rules,multiline"`
	Locked      bool      `toml:"locked,omitempty"`
	CreatedAt   time.Time `toml:"created_at"`
	UpdatedAt   time.Time `toml:"updated_at"`
}

var (
	nameRegex        = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,39}$`)
	placeholderRegex = regexp.MustCompile(`\{[a-z_]+\}`)
	listMarkerRegex  = regexp.MustCompile(`^(\d+[.)]|[-*•])\s+`)
)

// patterns that have no business in a style rule
var forbidden = []string{
	"```",
	"import os",
	"import sys",
	"exec(",
	"eval(",
}

// NormalizeName lowercases and trims a prompt name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CheckName reports whether name can be used for a prompt.
func CheckName(name string) error {
	if !nameRegex.MatchString(NormalizeName(name)) {
		return fmt.Errorf(
			"%w: name %q must be 1-40 letters, digits, '-' or '_'",
			ErrInvalid, name,
		)
	}
	return nil
}

// RuleList splits Rules into single rules. Blank lines and list markers
// such as "1." or "-" are dropped.
func (p Prompt) RuleList() []string {
	var rules []string
	for _, line := range strings.Split(p.Rules, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(listMarkerRegex.ReplaceAllString(line, ""))
		if line != "" {
			rules = append(rules, line)
		}
	}
	return rules
}

// Validate returns every problem with the prompt, joined.
func (p Prompt) Validate() error {
	var errs []error
	if err := CheckName(p.Name); err != nil {
		errs = append(errs, err)
	}
	if len(p.RuleList()) == 0 {
		errs = append(errs, errors.New("prompt has no rules"))
	}
	if len(p.Rules) > MaxLength {
		errs = append(errs, fmt.Errorf("rules exceed %d characters", MaxLength))
	}
	for _, ph := range placeholderRegex.FindAllString(p.Rules, -1) {
		if ph != translate.PlaceholderSource && ph != translate.PlaceholderTarget {
			errs = append(errs, fmt.Errorf("unknown placeholder %s", ph))
		}
	}
	lower := strings.ToLower(p.Rules)
	for _, pattern := range forbidden {
		if strings.Contains(lower, pattern) {
			errs = append(errs, fmt.Errorf("forbidden pattern %q", pattern))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w %q: %w", ErrInvalid, p.Name, errors.Join(errs...))
}

// Builtins returns the shipped presets as locked prompts.
func Builtins(now time.Time) []Prompt {
	presets := translate.Presets()
	out := make([]Prompt, 0, len(presets))
	for _, preset := range presets {
		out = append(out, builtin(preset, now))
	}
	return out
}

func builtin(preset translate.Preset, now time.Time) Prompt {
	return Prompt{
		Name:        string(preset),
		Description: fmt.Sprintf("Built-in %s style", preset),
		Rules:       strings.Join(translate.PresetRules(preset), "\n"),
		Locked:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func isBuiltin(name string) bool {
	return translate.PresetRules(translate.Preset(name)) != nil
}
