package translate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithFallbackOnPolicyViolation(t *testing.T) {
	primary := translatorFunc(func(ctx context.Context, req Request) (Response, error) {
		return Response{}, policyError(ProviderOpenRouter, "flagged")
	})
	fallback := translatorFunc(func(ctx context.Context, req Request) (Response, error) {
		return Response{Model: "backup"}, nil
	})

	resp, err := WithFallback(primary, fallback, nil).TranslateBatch(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "backup", resp.Model)
}

func TestWithFallbackIgnoresOtherErrors(t *testing.T) {
	primary := translatorFunc(func(ctx context.Context, req Request) (Response, error) {
		return Response{}, ErrRateLimited
	})
	fallback := translatorFunc(func(ctx context.Context, req Request) (Response, error) {
		t.Fatal("fallback must not be called")
		return Response{}, nil
	})

	_, err := WithFallback(primary, fallback, nil).TranslateBatch(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestWithFallbackNil(t *testing.T) {
	primary := translatorFunc(func(ctx context.Context, req Request) (Response, error) {
		return Response{}, errors.New("boom")
	})
	got := WithFallback(primary, nil, nil)
	_, isFallback := got.(*FallbackTranslator)
	assert.False(t, isFallback)
}

func TestListModelsUnwrapsDecorators(t *testing.T) {
	inner := translatorFunc(func(ctx context.Context, req Request) (Response, error) {
		return Response{}, nil
	})
	_, err := ListModels(context.Background(), Retrying(inner, DefaultRetryPolicy(), nil))
	assert.Error(t, err, "plain func translator cannot list models")
}
