package estimate

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgpai22/subauto/internal/job"
	"github.com/mgpai22/subauto/internal/translate"
)

func entries(n int) []job.Entry {
	out := make([]job.Entry, n)
	for i := range out {
		out[i] = job.Entry{Index: i + 1, Text: fmt.Sprintf("this is line number %d", i+1)}
	}
	return out
}

func TestForEntriesCountsBatches(t *testing.T) {
	est := ForEntries(entries(60), "en", "id", Options{BatchSize: 25})

	assert.Equal(t, 60, est.Entries)
	assert.Equal(t, 60, est.Sent)
	assert.Equal(t, 3, est.Batches)
	assert.Positive(t, est.PromptTokens)
	assert.Positive(t, est.CompletionTokens)
	assert.Greater(t, est.PromptTokens, est.CompletionTokens, "prompts carry instructions")
	assert.False(t, est.HasCost)
	assert.True(t, est.Usage().Estimated)
}

func TestPromptTokensFollowBuiltPrompts(t *testing.T) {
	es := entries(3)
	est := ForEntries(es, "", "fr", Options{BatchSize: 10})

	req := translate.Request{TargetLanguage: "French"}
	for i, e := range es {
		req.Items = append(req.Items, translate.TranslationItem{Index: i, Text: e.Text})
	}
	want := translate.EstimateTokens(translate.BuildPrompt(translate.Options{}, req))
	assert.Equal(t, want, est.PromptTokens)
}

func TestSmallerBatchesCostMorePromptTokens(t *testing.T) {
	small := ForEntries(entries(50), "en", "id", Options{BatchSize: 5})
	large := ForEntries(entries(50), "en", "id", Options{BatchSize: 50})

	assert.Equal(t, 10, small.Batches)
	assert.Equal(t, 1, large.Batches)
	assert.Greater(t, small.PromptTokens, large.PromptTokens)
}

func TestSignsAreNotCounted(t *testing.T) {
	es := entries(4)
	for i := range es {
		es[i].Style = "OP"
	}
	est := ForEntries(es, "ja", "en", Options{})
	assert.Zero(t, est.Batches)
	assert.Zero(t, est.Sent)
	assert.Zero(t, est.TotalTokens())
}

func TestForJobStartsAtMarker(t *testing.T) {
	j := &job.Job{Entries: entries(30), TargetLanguage: "id", Progress: 25}
	j.Translations = make([]string, 25)

	est := ForJob(j, Options{})
	assert.Equal(t, 5, est.Entries)
	assert.Equal(t, 1, est.Batches)
}

func TestCost(t *testing.T) {
	u := translate.Usage{PromptTokens: 2_000_000, CompletionTokens: 500_000}
	assert.InDelta(t, 0.6+2.0, Cost(u, Prices{InputPerMillion: 0.3, OutputPerMillion: 4}), 1e-9)

	est := ForEntries(entries(10), "en", "id", Options{Prices: Prices{InputPerMillion: 1}})
	require.True(t, est.HasCost)
	assert.InDelta(t, float64(est.PromptTokens)/1e6, est.Cost, 1e-12)
}

func TestPresetChangesPrompt(t *testing.T) {
	base := ForEntries(entries(5), "en", "id", Options{})
	extra := ForEntries(entries(5), "en", "id", Options{
		Translate: translate.Options{Prompt: strings.Repeat("keep honorifics. ", 20)},
	})
	assert.Greater(t, extra.PromptTokens, base.PromptTokens)
}
