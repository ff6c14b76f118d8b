package translate

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// implements Translator using Google Gemini
type GeminiTranslator struct {
	client  *genai.Client
	model   string
	options Options
}

func NewGeminiTranslator(
	ctx context.Context,
	apiKey string,
	opts Options,
) (*GeminiTranslator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrAuthentication)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiTranslator{
		client:  client,
		model:   opts.model(ProviderGemini),
		options: opts,
	}, nil
}

func (t *GeminiTranslator) TranslateBatch(
	ctx context.Context,
	req Request,
) (Response, error) {
	if len(req.Items) == 0 {
		return Response{Model: t.model}, nil
	}

	prompt := BuildPrompt(t.options, req)

	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := t.client.Models.GenerateContent(ctx, t.model, contents, nil)
	if err != nil {
		return Response{}, fmt.Errorf(
			"translation failed: %w",
			classifyError(ProviderGemini, err),
		)
	}

	reply, err := geminiReplyText(result)
	if err != nil {
		return Response{}, err
	}

	results, err := parseReply(reply, req.Items)
	if err != nil {
		return Response{}, err
	}

	var usage Usage
	if result.UsageMetadata != nil {
		usage = Usage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}

	return Response{
		Results: results,
		Usage:   usageOrEstimate(usage, prompt, reply),
		Model:   t.model,
	}, nil
}

func geminiReplyText(result *genai.GenerateContentResponse) (string, error) {
	if result == nil {
		return "", fmt.Errorf("%w: empty response from Gemini", ErrMalformedResponse)
	}
	if fb := result.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return "", policyError(
			ProviderGemini,
			fmt.Sprintf("prompt blocked: %s", fb.BlockReason),
		)
	}
	if len(result.Candidates) == 0 {
		return "", fmt.Errorf("%w: empty response from Gemini", ErrMalformedResponse)
	}

	var responseText string
	for _, candidate := range result.Candidates {
		switch candidate.FinishReason {
		case genai.FinishReasonSafety,
			genai.FinishReasonProhibitedContent,
			genai.FinishReasonBlocklist:
			return "", policyError(
				ProviderGemini,
				fmt.Sprintf("response blocked: %s", candidate.FinishReason),
			)
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				responseText += part.Text
			}
		}
		if responseText != "" {
			break
		}
	}

	if responseText == "" {
		return "", fmt.Errorf("%w: no text in Gemini response", ErrMalformedResponse)
	}
	return responseText, nil
}

// ListModels returns the models that can generate content.
func (t *GeminiTranslator) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var models []ModelInfo
	for m, err := range t.client.Models.All(ctx) {
		if err != nil {
			return nil, classifyError(ProviderGemini, err)
		}
		if !supportsGenerate(m.SupportedActions) {
			continue
		}
		models = append(models, ModelInfo{
			ID:               strings.TrimPrefix(m.Name, "models/"),
			DisplayName:      m.DisplayName,
			Provider:         ProviderGemini,
			InputTokenLimit:  int(m.InputTokenLimit),
			OutputTokenLimit: int(m.OutputTokenLimit),
		})
	}
	return models, nil
}

func supportsGenerate(actions []string) bool {
	if len(actions) == 0 {
		return true
	}
	for _, a := range actions {
		if a == "generateContent" {
			return true
		}
	}
	return false
}

func (t *GeminiTranslator) Close() error {
	return nil
}
