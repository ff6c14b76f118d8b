// Package config loads the subauto settings file. Values come from the TOML
// file, then a .env file, then the process environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/mgpai22/subauto/internal/estimate"
	"github.com/mgpai22/subauto/internal/job"
	"github.com/mgpai22/subauto/internal/prompts"
	"github.com/mgpai22/subauto/internal/translate"
)

const defaultConfigPath = "~/.config/subauto/config.toml"

// LLM selects the provider, model and prompt.
type LLM struct {
	Provider      string `toml:"provider"`
	Model         string `toml:"model"`
	FallbackModel string `toml:"fallback_model"`
	// Preset names a built-in or saved prompt. Empty uses the prompt
	// selected with `subauto prompts use`.
	Preset string `toml:"preset"`
	// Prompt is appended to the preset instructions
	Prompt    string `toml:"prompt"`
	BaseURL   string `toml:"base_url"`
	MaxTokens int    `toml:"max_tokens"`
}

type Keys struct {
	Gemini     string `toml:"gemini"`
	OpenAI     string `toml:"openai"`
	Anthropic  string `toml:"anthropic"`
	OpenRouter string `toml:"openrouter"`
	Groq       string `toml:"groq"`
}

type Ollama struct {
	Host string `toml:"host"`
}

type Translation struct {
	SourceLanguage string `toml:"source_language"`
	TargetLanguage string `toml:"target_language"`
	BatchSize      int    `toml:"batch_size"`
	Concurrency    int    `toml:"concurrency"`
	ContextLines   int    `toml:"context_lines"`
	MaxRetries     int    `toml:"max_retries"`
}

type Output struct {
	// Mode is new_file or replace
	Mode          string `toml:"mode"`
	StripExisting bool   `toml:"strip_existing"`
	DefaultTrack  bool   `toml:"default_track"`
	// TrackName defaults to the target language name
	TrackName    string `toml:"track_name"`
	KeepSubtitle bool   `toml:"keep_subtitle"`
}

type Paths struct {
	MKVToolNix  string `toml:"mkvtoolnix_path"`
	StateDir    string `toml:"state_dir"`
	WorkDir     string `toml:"work_dir"`
	HistoryFile string `toml:"history_file"`
	PromptsFile string `toml:"prompts_file"`
}

type Watch struct {
	DebounceSeconds int `toml:"debounce_seconds"`
}

type Config struct {
	LLM         LLM         `toml:"llm"`
	Keys        Keys        `toml:"api_keys"`
	Ollama      Ollama      `toml:"ollama"`
	Translation Translation `toml:"translation"`
	Output      Output      `toml:"output"`
	Paths       Paths       `toml:"paths"`
	Watch       Watch       `toml:"watch"`
	// Prices are keyed by model id
	Prices map[string]estimate.Prices `toml:"prices"`
}

const (
	OutputNewFile = "new_file"
	OutputReplace = "replace"
)

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LLM: LLM{
			Provider: string(translate.ProviderGemini),
		},
		Ollama: Ollama{Host: "http://localhost:11434"},
		Translation: Translation{
			TargetLanguage: "id",
			BatchSize:      25,
			Concurrency:    1,
			ContextLines:   3,
			MaxRetries:     5,
		},
		Output: Output{
			Mode:         OutputNewFile,
			DefaultTrack: true,
		},
		Paths: Paths{
			StateDir:    "~/.local/state/subauto/jobs",
			WorkDir:     "~/.cache/subauto",
			HistoryFile: "~/.local/share/subauto/history.db",
			PromptsFile: "~/.config/subauto/prompts.toml",
		},
		Watch:  Watch{DebounceSeconds: 5},
		Prices: map[string]estimate.Prices{},
	}
}

// DefaultPath returns the absolute path of the default settings file.
func DefaultPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load reads the settings file at path, or the default location when path
// is empty. A missing file yields the defaults. It returns the resolved path
// and whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolvePath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	loadDotEnv(filepath.Dir(resolved))
	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

// Save writes cfg as TOML, creating the parent directory.
func Save(path string, cfg *Config) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, bool, error) {
	if path == "" {
		path = defaultConfigPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

// loadDotEnv reads .env from the working directory and from the config
// directory. Variables already set win.
func loadDotEnv(configDir string) {
	for _, path := range []string{".env", filepath.Join(configDir, ".env")} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}

func (c *Config) applyEnv() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"GEMINI_API_KEY", &c.Keys.Gemini},
		{"OPENAI_API_KEY", &c.Keys.OpenAI},
		{"ANTHROPIC_API_KEY", &c.Keys.Anthropic},
		{"OPENROUTER_API_KEY", &c.Keys.OpenRouter},
		{"GROQ_API_KEY", &c.Keys.Groq},
		{"OLLAMA_HOST", &c.Ollama.Host},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok && strings.TrimSpace(v) != "" {
			*o.target = strings.TrimSpace(v)
		}
	}
	if c.Keys.Gemini == "" {
		if v := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")); v != "" {
			c.Keys.Gemini = v
		}
	}
}

func (c *Config) normalize() error {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.LLM.Preset = strings.ToLower(strings.TrimSpace(c.LLM.Preset))
	c.Output.Mode = strings.ToLower(strings.TrimSpace(c.Output.Mode))
	if c.Output.Mode == "" {
		c.Output.Mode = OutputNewFile
	}

	def := Default()
	if c.Translation.BatchSize <= 0 {
		c.Translation.BatchSize = def.Translation.BatchSize
	}
	if c.Translation.Concurrency <= 0 {
		c.Translation.Concurrency = 1
	}
	if c.Translation.ContextLines < 0 {
		c.Translation.ContextLines = 0
	}
	if c.Translation.MaxRetries < 0 {
		c.Translation.MaxRetries = 0
	}
	if c.Watch.DebounceSeconds <= 0 {
		c.Watch.DebounceSeconds = def.Watch.DebounceSeconds
	}
	if c.Prices == nil {
		c.Prices = map[string]estimate.Prices{}
	}

	paths := []struct {
		name  string
		value *string
	}{
		{"paths.mkvtoolnix_path", &c.Paths.MKVToolNix},
		{"paths.state_dir", &c.Paths.StateDir},
		{"paths.work_dir", &c.Paths.WorkDir},
		{"paths.history_file", &c.Paths.HistoryFile},
		{"paths.prompts_file", &c.Paths.PromptsFile},
	}
	for _, p := range paths {
		expanded, err := expandPath(*p.value)
		if err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
		*p.value = expanded
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := translate.ParseProvider(c.LLM.Provider); err != nil {
		return fmt.Errorf("llm.provider: %w", err)
	}
	if c.LLM.Preset != "" {
		if err := prompts.CheckName(c.LLM.Preset); err != nil {
			return fmt.Errorf("llm.preset: %w", err)
		}
	}
	switch c.Output.Mode {
	case OutputNewFile, OutputReplace:
	default:
		return fmt.Errorf("output.mode: must be %q or %q, got %q",
			OutputNewFile, OutputReplace, c.Output.Mode)
	}
	if c.Translation.BatchSize > 500 {
		return fmt.Errorf("translation.batch_size: %d is too large", c.Translation.BatchSize)
	}
	if c.Translation.Concurrency > 16 {
		return fmt.Errorf("translation.concurrency: %d is too large", c.Translation.Concurrency)
	}
	return nil
}

// Provider returns the configured provider.
func (c *Config) Provider() translate.Provider {
	return translate.Provider(c.LLM.Provider)
}

// APIKey returns the key for provider, empty for providers without one.
func (c *Config) APIKey(p translate.Provider) string {
	switch p {
	case translate.ProviderGemini:
		return c.Keys.Gemini
	case translate.ProviderOpenAI:
		return c.Keys.OpenAI
	case translate.ProviderAnthropic:
		return c.Keys.Anthropic
	case translate.ProviderOpenRouter:
		return c.Keys.OpenRouter
	case translate.ProviderGroq:
		return c.Keys.Groq
	default:
		return ""
	}
}

// TranslateOptions builds adapter options for provider.
func (c *Config) TranslateOptions(p translate.Provider) translate.Options {
	opts := translate.Options{
		Model:     c.LLM.Model,
		Prompt:    c.LLM.Prompt,
		Preset:    translate.Preset(c.LLM.Preset),
		BaseURL:   c.LLM.BaseURL,
		MaxTokens: c.LLM.MaxTokens,
	}
	if p == translate.ProviderOllama && opts.BaseURL == "" {
		opts.BaseURL = c.Ollama.Host
	}
	return opts
}

// RetryPolicy returns the default policy with the configured retry count.
func (c *Config) RetryPolicy() translate.RetryPolicy {
	policy := translate.DefaultRetryPolicy()
	policy.MaxRetries = c.Translation.MaxRetries
	return policy
}

// JobOptions maps the translation settings onto batch translator options.
// A context_lines of zero disables context.
func (c *Config) JobOptions() job.Options {
	contextLines := c.Translation.ContextLines
	if contextLines == 0 {
		contextLines = -1
	}
	return job.Options{
		BatchSize:    c.Translation.BatchSize,
		Concurrency:  c.Translation.Concurrency,
		ContextLines: contextLines,
	}
}

// EstimateOptions returns estimator options matching what a run would send.
func (c *Config) EstimateOptions(p translate.Provider, model string) estimate.Options {
	jobOpts := c.JobOptions()
	return estimate.Options{
		Translate:    c.TranslateOptions(p),
		BatchSize:    jobOpts.BatchSize,
		ContextLines: jobOpts.ContextLines,
		Prices:       c.PricesFor(model),
	}
}

// PricesFor returns the configured prices for model, zero when unknown.
func (c *Config) PricesFor(model string) estimate.Prices {
	return c.Prices[model]
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
