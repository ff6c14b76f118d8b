// Package estimate forecasts the tokens and cost of translating a job
// before any provider is called.
package estimate

import (
	"encoding/json"

	"github.com/mgpai22/subauto/internal/job"
	"github.com/mgpai22/subauto/internal/translate"
)

// Prices are in currency units per million tokens.
type Prices struct {
	InputPerMillion  float64 `toml:"input_per_million"`
	OutputPerMillion float64 `toml:"output_per_million"`
}

func (p Prices) IsZero() bool {
	return p.InputPerMillion == 0 && p.OutputPerMillion == 0
}

type Options struct {
	Translate    translate.Options
	BatchSize    int
	ContextLines int
	Prices       Prices
}

type Estimate struct {
	Entries int
	// Sent excludes signs, songs and empty lines
	Sent             int
	Batches          int
	PromptTokens     int
	CompletionTokens int
	// Cost is zero when no prices are configured
	Cost    float64
	HasCost bool
}

func (e Estimate) TotalTokens() int {
	return e.PromptTokens + e.CompletionTokens
}

func (e Estimate) Usage() translate.Usage {
	return translate.Usage{
		PromptTokens:     e.PromptTokens,
		CompletionTokens: e.CompletionTokens,
		Estimated:        true,
	}
}

// ForJob builds the prompts a run of j would send from its marker on and
// counts them at translate.CharsPerToken. Replies are assumed to be about
// the size of the JSON-encoded source items.
func ForJob(j *job.Job, opts Options) Estimate {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = job.DefaultBatchSize
	}
	contextLines := opts.ContextLines
	if contextLines == 0 {
		contextLines = job.DefaultContextLines
	}

	est := Estimate{Entries: len(j.Entries) - j.Progress}
	for _, req := range job.Requests(j, batchSize, contextLines) {
		est.Batches++
		est.Sent += len(req.Items)
		est.PromptTokens += translate.EstimateTokens(translate.BuildPrompt(opts.Translate, req))
		est.CompletionTokens += completionTokens(req.Items)
	}

	if !opts.Prices.IsZero() {
		est.HasCost = true
		est.Cost = Cost(est.Usage(), opts.Prices)
	}
	return est
}

// ForEntries estimates a fresh job over entries.
func ForEntries(entries []job.Entry, sourceLang, targetLang string, opts Options) Estimate {
	j := &job.Job{
		Entries:        entries,
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
	}
	return ForJob(j, opts)
}

// Cost prices a usage.
func Cost(u translate.Usage, p Prices) float64 {
	return float64(u.PromptTokens)/1e6*p.InputPerMillion +
		float64(u.CompletionTokens)/1e6*p.OutputPerMillion
}

func completionTokens(items []translate.TranslationItem) int {
	results := make([]translate.TranslationResult, len(items))
	for i, item := range items {
		results[i] = translate.TranslationResult(item)
	}
	data, err := json.Marshal(results)
	if err != nil {
		return 0
	}
	return translate.EstimateTokens(string(data))
}
