package translate

import (
	"context"
	"fmt"
	"sort"
)

// ModelInfo describes a model a provider can serve.
type ModelInfo struct {
	ID               string
	DisplayName      string
	Provider         Provider
	InputTokenLimit  int
	OutputTokenLimit int
}

// ModelLister is implemented by translators that can enumerate models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// ListModels returns the models of t sorted by id.
func ListModels(ctx context.Context, t Translator) ([]ModelInfo, error) {
	lister, ok := unwrap(t).(ModelLister)
	if !ok {
		return nil, fmt.Errorf("translator %T cannot list models", t)
	}
	models, err := lister.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// Validate checks the connection and credentials of t by listing its models.
// When model is set it must be among them.
func Validate(ctx context.Context, t Translator, model string) error {
	models, err := ListModels(ctx, t)
	if err != nil {
		return fmt.Errorf("connection check failed: %w", err)
	}
	if model == "" {
		return nil
	}
	for _, m := range models {
		if m.ID == model {
			return nil
		}
	}
	return fmt.Errorf("model %q is not offered by the provider", model)
}

// wrapper is implemented by translators that decorate another one.
type wrapper interface {
	Unwrap() Translator
}

func unwrap(t Translator) Translator {
	for {
		w, ok := t.(wrapper)
		if !ok {
			return t
		}
		t = w.Unwrap()
	}
}
