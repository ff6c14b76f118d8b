package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	groqBaseURL       = "https://api.groq.com/openai/v1"
	ollamaBaseURL     = "http://localhost:11434"
)

// implements Translator using OpenAI Chat Completions. OpenRouter, Groq and
// Ollama speak the same protocol and share this client.
type OpenAITranslator struct {
	client   openai.Client
	provider Provider
	model    string
	options  Options
}

func NewOpenAITranslator(
	ctx context.Context,
	apiKey string,
	opts Options,
) (*OpenAITranslator, error) {
	return NewOpenAICompatibleTranslator(ProviderOpenAI, apiKey, opts)
}

func NewOpenAICompatibleTranslator(
	provider Provider,
	apiKey string,
	opts Options,
) (*OpenAITranslator, error) {
	if provider.RequiresKey() && apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrAuthentication)
	}

	var reqOpts []option.RequestOption
	switch provider {
	case ProviderOpenAI:
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
		if opts.BaseURL != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
		}
	case ProviderOpenRouter:
		reqOpts = append(reqOpts,
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURLOr(opts.BaseURL, openRouterBaseURL)),
			option.WithHeader("HTTP-Referer", "https://github.com/mgpai22/subauto"),
			option.WithHeader("X-Title", "subauto"),
		)
	case ProviderGroq:
		reqOpts = append(reqOpts,
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURLOr(opts.BaseURL, groqBaseURL)),
		)
	case ProviderOllama:
		if apiKey == "" {
			apiKey = "ollama"
		}
		reqOpts = append(reqOpts,
			option.WithAPIKey(apiKey),
			option.WithBaseURL(OllamaAPIURL(opts.BaseURL)),
		)
	default:
		return nil, fmt.Errorf("provider %s is not OpenAI compatible", provider)
	}

	return &OpenAITranslator{
		client:   openai.NewClient(reqOpts...),
		provider: provider,
		model:    opts.model(provider),
		options:  opts,
	}, nil
}

// OllamaAPIURL turns an ollama host into its OpenAI compatible endpoint.
func OllamaAPIURL(host string) string {
	host = strings.TrimRight(baseURLOr(host, ollamaBaseURL), "/")
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	if strings.HasSuffix(host, "/v1") {
		return host + "/"
	}
	return host + "/v1/"
}

func baseURLOr(url, fallback string) string {
	if strings.TrimSpace(url) == "" {
		return fallback
	}
	return strings.TrimSpace(url)
}

func (t *OpenAITranslator) Provider() Provider {
	return t.provider
}

func (t *OpenAITranslator) TranslateBatch(
	ctx context.Context,
	req Request,
) (Response, error) {
	if len(req.Items) == 0 {
		return Response{Model: t.model}, nil
	}

	prompt := BuildPrompt(t.options, req)

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: t.model,
	}
	if t.options.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(t.options.MaxTokens))
	}

	completion, err := t.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf(
			"translation failed: %w",
			classifyError(t.provider, err),
		)
	}

	if completion == nil || len(completion.Choices) == 0 {
		return Response{}, fmt.Errorf(
			"%w: empty response from %s",
			ErrMalformedResponse,
			t.provider,
		)
	}

	choice := completion.Choices[0]
	if choice.Message.Refusal != "" {
		return Response{}, policyError(t.provider, choice.Message.Refusal)
	}
	if choice.FinishReason == "content_filter" {
		return Response{}, policyError(t.provider, "response filtered")
	}

	reply := choice.Message.Content
	results, err := parseReply(reply, req.Items)
	if err != nil {
		return Response{}, err
	}

	usage := Usage{
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
	}

	return Response{
		Results: results,
		Usage:   usageOrEstimate(usage, prompt, reply),
		Model:   t.model,
	}, nil
}

// ListModels returns the models the endpoint serves.
func (t *OpenAITranslator) ListModels(ctx context.Context) ([]ModelInfo, error) {
	pager := t.client.Models.ListAutoPaging(ctx)

	var models []ModelInfo
	for pager.Next() {
		m := pager.Current()
		models = append(models, ModelInfo{
			ID:       m.ID,
			Provider: t.provider,
		})
	}
	if err := pager.Err(); err != nil {
		return nil, classifyError(t.provider, err)
	}
	return models, nil
}

func (t *OpenAITranslator) Close() error {
	return nil
}
