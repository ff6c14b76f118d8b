package translate

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 4096

// implements Translator using Anthropic Claude
type AnthropicTranslator struct {
	client  anthropic.Client
	model   anthropic.Model
	options Options
}

func NewAnthropicTranslator(
	ctx context.Context,
	apiKey string,
	opts Options,
) (*AnthropicTranslator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrAuthentication)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &AnthropicTranslator{
		client:  anthropic.NewClient(reqOpts...),
		model:   anthropic.Model(opts.model(ProviderAnthropic)),
		options: opts,
	}, nil
}

func (t *AnthropicTranslator) TranslateBatch(
	ctx context.Context,
	req Request,
) (Response, error) {
	if len(req.Items) == 0 {
		return Response{Model: string(t.model)}, nil
	}

	prompt := BuildPrompt(t.options, req)

	maxTokens := int64(defaultAnthropicMaxTokens)
	if t.options.MaxTokens > 0 {
		maxTokens = int64(t.options.MaxTokens)
	}

	message, err := t.client.Messages.New(
		ctx,
		anthropic.MessageNewParams{
			Model:     t.model,
			MaxTokens: maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(
					anthropic.NewTextBlock(prompt),
				),
			},
		},
	)
	if err != nil {
		return Response{}, fmt.Errorf(
			"translation failed: %w",
			classifyError(ProviderAnthropic, err),
		)
	}

	if message == nil || len(message.Content) == 0 {
		return Response{}, fmt.Errorf("%w: empty response from Anthropic", ErrMalformedResponse)
	}
	if message.StopReason == anthropic.StopReasonRefusal {
		return Response{}, policyError(ProviderAnthropic, "model refused the request")
	}

	var reply string
	for _, block := range message.Content {
		if block.Type == "text" {
			reply += block.Text
		}
	}

	results, err := parseReply(reply, req.Items)
	if err != nil {
		return Response{}, err
	}

	usage := Usage{
		PromptTokens:     int(message.Usage.InputTokens),
		CompletionTokens: int(message.Usage.OutputTokens),
	}

	return Response{
		Results: results,
		Usage:   usageOrEstimate(usage, prompt, reply),
		Model:   string(t.model),
	}, nil
}

// ListModels returns the Claude models available to the key.
func (t *AnthropicTranslator) ListModels(ctx context.Context) ([]ModelInfo, error) {
	pager := t.client.Models.ListAutoPaging(ctx, anthropic.ModelListParams{})

	var models []ModelInfo
	for pager.Next() {
		m := pager.Current()
		models = append(models, ModelInfo{
			ID:          m.ID,
			DisplayName: m.DisplayName,
			Provider:    ProviderAnthropic,
		})
	}
	if err := pager.Err(); err != nil {
		return nil, classifyError(ProviderAnthropic, err)
	}
	return models, nil
}

func (t *AnthropicTranslator) Close() error {
	return nil
}
