package translate

import (
	"context"
	"fmt"
	"strings"
)

// single text item to translate
type TranslationItem struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// translated text item
type TranslationResult struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Request is one batch sent to a provider. Context lines are shown to the
// model as preceding dialogue and are never translated.
type Request struct {
	Items          []TranslationItem
	Context        []string
	SourceLanguage string
	TargetLanguage string
}

// Response holds results aligned one-to-one with Request.Items.
type Response struct {
	Results []TranslationResult
	Usage   Usage
	Model   string
}

// interface for batch text translation
type Translator interface {
	TranslateBatch(ctx context.Context, req Request) (Response, error)
}

// translation service provider
type Provider string

const (
	ProviderGemini     Provider = "gemini"
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderOpenRouter Provider = "openrouter"
	ProviderGroq       Provider = "groq"
	ProviderOllama     Provider = "ollama"
)

// Providers lists every supported provider in display order.
func Providers() []Provider {
	return []Provider{
		ProviderGemini,
		ProviderOpenAI,
		ProviderAnthropic,
		ProviderOpenRouter,
		ProviderGroq,
		ProviderOllama,
	}
}

// ParseProvider normalises a provider name.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Providers() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unsupported translation provider: %s", s)
}

// RequiresKey reports whether the provider needs an API key.
func (p Provider) RequiresKey() bool {
	return p != ProviderOllama
}

// DefaultModel is used when no model is configured.
func (p Provider) DefaultModel() string {
	switch p {
	case ProviderGemini:
		return "gemini-2.5-flash"
	case ProviderOpenAI:
		return "gpt-5-mini"
	case ProviderAnthropic:
		return "claude-haiku-4-5"
	case ProviderOpenRouter:
		return "openai/gpt-4o-mini"
	case ProviderGroq:
		return "llama-3.3-70b-versatile"
	case ProviderOllama:
		return "llama3.2"
	default:
		return ""
	}
}

type Options struct {
	Model string
	// extra instructions appended to the preset
	Prompt string
	Preset Preset
	// Rules replace the preset's style rules when set
	Rules []string
	// overrides the provider endpoint, e.g. the ollama host
	BaseURL   string
	MaxTokens int
}

func (o Options) model(p Provider) string {
	if o.Model != "" {
		return o.Model
	}
	return p.DefaultModel()
}

// creates Translator based on provider
func Factory(
	ctx context.Context,
	provider Provider,
	apiKey string,
	opts Options,
) (Translator, error) {
	if provider.RequiresKey() && apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required for %s", ErrAuthentication, provider)
	}

	switch provider {
	case ProviderGemini:
		return NewGeminiTranslator(ctx, apiKey, opts)
	case ProviderOpenAI, ProviderOpenRouter, ProviderGroq, ProviderOllama:
		return NewOpenAICompatibleTranslator(provider, apiKey, opts)
	case ProviderAnthropic:
		return NewAnthropicTranslator(ctx, apiKey, opts)
	default:
		return nil, fmt.Errorf("unsupported translation provider: %s", provider)
	}
}
