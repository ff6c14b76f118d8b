package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/mgpai22/subauto/internal/estimate"
	"github.com/mgpai22/subauto/internal/history"
	"github.com/mgpai22/subauto/internal/job"
	"github.com/mgpai22/subauto/internal/language"
	"github.com/mgpai22/subauto/internal/pipeline"
	"github.com/mgpai22/subauto/internal/translate"
)

// addTranslationFlags registers the flags shared by every command that
// talks to a provider. Unset flags fall back to the config file.
func addTranslationFlags(cmd *cobra.Command) {
	cmd.Flags().
		StringP("target-language", "t", "", "Target language (e.g. id, es, japanese)")
	cmd.Flags().
		StringP("source-language", "s", "", "Source language (detected when unset)")
	cmd.Flags().
		String("provider", "", "Provider: "+providerList())
	cmd.Flags().
		String("model", "", "Model to use (provider default when unset)")
	cmd.Flags().
		String("fallback-model", "", "Model retried once when a batch is refused")
	cmd.Flags().
		String("preset", "", "Prompt preset: standard, anime, formal or a saved prompt")
	cmd.Flags().
		String("prompt", "", "Extra instructions appended to the prompt")
	cmd.Flags().
		Int("batch-size", 0, "Subtitle entries per request")
	cmd.Flags().
		Int("concurrency", 0, "Batches in flight at once")
}

func providerList() string {
	names := make([]string, 0, len(translate.Providers()))
	for _, p := range translate.Providers() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}

// settings is the merged view of flags over config.
type settings struct {
	provider       translate.Provider
	model          string
	fallbackModel  string
	preset         translate.Preset
	sourceLanguage string
	targetLanguage string
	opts           translate.Options
	jobOpts        job.Options
	prices         estimate.Prices
}

func resolveSettings(cmd *cobra.Command) (settings, error) {
	flags := cmd.Flags()
	var s settings

	providerStr := cfg.LLM.Provider
	if v, _ := flags.GetString("provider"); v != "" {
		providerStr = v
	}
	provider, err := translate.ParseProvider(providerStr)
	if err != nil {
		return s, err
	}
	s.provider = provider
	s.opts = cfg.TranslateOptions(provider)

	if v, _ := flags.GetString("model"); v != "" {
		s.opts.Model = v
	}
	if s.opts.Model == "" {
		s.opts.Model = provider.DefaultModel()
	}
	s.model = s.opts.Model

	s.fallbackModel = cfg.LLM.FallbackModel
	if v, _ := flags.GetString("fallback-model"); v != "" {
		s.fallbackModel = v
	}

	presetStr := cfg.LLM.Preset
	if v, _ := flags.GetString("preset"); v != "" {
		presetStr = v
	}
	prompt, err := resolvePrompt(presetStr)
	if err != nil {
		return s, err
	}
	s.preset = translate.Preset(prompt.Name)
	s.opts.Preset = s.preset
	s.opts.Rules = prompt.RuleList()
	if v, _ := flags.GetString("prompt"); v != "" {
		s.opts.Prompt = v
	}

	s.sourceLanguage = cfg.Translation.SourceLanguage
	if v, _ := flags.GetString("source-language"); v != "" {
		s.sourceLanguage = v
	}
	s.targetLanguage = cfg.Translation.TargetLanguage
	if v, _ := flags.GetString("target-language"); v != "" {
		s.targetLanguage = v
	}
	if strings.TrimSpace(s.targetLanguage) == "" {
		return s, fmt.Errorf("target language is required: use --target-language or set translation.target_language")
	}
	if s.sourceLanguage != "" && language.Equal(s.sourceLanguage, s.targetLanguage) {
		return s, fmt.Errorf(
			"source language %q and target language %q cannot be the same",
			s.sourceLanguage, s.targetLanguage,
		)
	}

	s.jobOpts = cfg.JobOptions()
	if v, _ := flags.GetInt("batch-size"); v != 0 {
		if v < 0 {
			return s, fmt.Errorf("batch-size must be positive, got %d", v)
		}
		s.jobOpts.BatchSize = v
	}
	if v, _ := flags.GetInt("concurrency"); v != 0 {
		if v < 0 {
			return s, fmt.Errorf("concurrency must be positive, got %d", v)
		}
		s.jobOpts.Concurrency = v
	}
	s.prices = cfg.PricesFor(s.model)
	return s, nil
}

// newTranslator builds the provider adapter wrapped with retries and the
// optional fallback model.
func newTranslator(ctx context.Context, s settings) (translate.Translator, error) {
	key := cfg.APIKey(s.provider)
	primary, err := translate.Factory(ctx, s.provider, key, s.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create translator: %w", err)
	}
	policy := cfg.RetryPolicy()
	var t translate.Translator = translate.Retrying(primary, policy, logger)

	if s.fallbackModel != "" && s.fallbackModel != s.model {
		fbOpts := s.opts
		fbOpts.Model = s.fallbackModel
		fallback, err := translate.Factory(ctx, s.provider, key, fbOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to create fallback translator: %w", err)
		}
		t = translate.WithFallback(t, translate.Retrying(fallback, policy, logger), logger)
	}
	return t, nil
}

func openJobStore() (*job.Store, error) {
	return job.NewStore(cfg.Paths.StateDir)
}

func openHistory() *history.Store {
	store, err := history.Open(cfg.Paths.HistoryFile)
	if err != nil {
		logger.Warnw("history disabled", "error", err)
		return nil
	}
	return store
}

// baseRequest fills a pipeline request from settings and output config.
func baseRequest(s settings) pipeline.Request {
	mode, _ := pipeline.ParseOutputMode(cfg.Output.Mode)
	return pipeline.Request{
		TrackID:        pipeline.TrackAuto,
		SourceLanguage: s.sourceLanguage,
		TargetLanguage: s.targetLanguage,
		Provider:       string(s.provider),
		Model:          s.model,
		Preset:         string(s.preset),
		Job:            s.jobOpts,
		Prices:         s.prices,
		OutputMode:     mode,
		WorkDir:        cfg.Paths.WorkDir,
		StripExisting:  cfg.Output.StripExisting,
		DefaultTrack:   cfg.Output.DefaultTrack,
		TrackName:      cfg.Output.TrackName,
		KeepSubtitle:   cfg.Output.KeepSubtitle,
	}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// progressReporter draws a bar on a terminal and logs batches otherwise.
type progressReporter struct {
	bar   *progressbar.ProgressBar
	label string
}

func newProgress(label string) *progressReporter {
	return &progressReporter{label: label}
}

func (p *progressReporter) update(done, total int, usage translate.Usage) {
	if !isTerminal(os.Stderr) {
		logger.Infow("progress",
			"file", p.label,
			"done", done,
			"total", total,
			"tokens", usage.Total(),
		)
		return
	}
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription(p.label),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionSetElapsedTime(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionFullWidth(),
			progressbar.OptionClearOnFinish(),
		)
	}
	p.bar.Describe(fmt.Sprintf("%s (%s tokens)", p.label, formatCount(usage.Total())))
	_ = p.bar.Set(done)
}

func (p *progressReporter) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func formatCount(n int) string {
	return humanize.Comma(int64(n))
}

func formatCost(cost *float64) string {
	if cost == nil {
		return "-"
	}
	return fmt.Sprintf("$%.4f", *cost)
}
