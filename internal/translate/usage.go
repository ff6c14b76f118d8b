package translate

import "unicode/utf8"

// Usage counts tokens spent on a batch or a whole job.
type Usage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	Estimated        bool `json:"estimated,omitempty"`
}

func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// Add sums two usages. The result is estimated if either side was.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		Estimated:        u.Estimated || o.Estimated,
	}
}

// CharsPerToken is the rough ratio used when a provider reports no usage.
const CharsPerToken = 4

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / CharsPerToken
}

// fills in usage from the prompt and reply when the provider sent none
func usageOrEstimate(u Usage, prompt, reply string) Usage {
	if u.PromptTokens > 0 || u.CompletionTokens > 0 {
		return u
	}
	return Usage{
		PromptTokens:     EstimateTokens(prompt),
		CompletionTokens: EstimateTokens(reply),
		Estimated:        true,
	}
}
