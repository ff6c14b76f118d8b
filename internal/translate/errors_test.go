package translate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func openAIError(status int, header http.Header) error {
	return &openai.Error{
		StatusCode: status,
		Request: &http.Request{
			Method: http.MethodPost,
			URL:    &url.URL{Scheme: "https", Host: "api.example.com", Path: "/v1/chat/completions"},
		},
		Response: &http.Response{StatusCode: status, Header: header},
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"openai unauthorized", openAIError(http.StatusUnauthorized, nil), ErrAuthentication},
		{"openai forbidden", openAIError(http.StatusForbidden, nil), ErrAuthentication},
		{"openai rate limited", openAIError(http.StatusTooManyRequests, nil), ErrRateLimited},
		{"openai server error", openAIError(http.StatusBadGateway, nil), ErrUnavailable},
		{"gemini overloaded", genai.APIError{Code: 503, Message: "model overloaded"}, ErrUnavailable},
		{"gemini safety", genai.APIError{Code: 400, Message: "blocked by safety settings"}, ErrPolicyViolation},
		{"wrapped gemini", fmt.Errorf("call: %w", genai.APIError{Code: 429, Message: "quota"}), ErrRateLimited},
		{"network", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(ProviderOpenAI, tt.err)
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestClassifyErrorKeepsOriginal(t *testing.T) {
	orig := openAIError(http.StatusTooManyRequests, nil)
	got := classifyError(ProviderOpenAI, fmt.Errorf("request: %w", orig))

	var oaErr *openai.Error
	require.ErrorAs(t, got, &oaErr)
	assert.Equal(t, http.StatusTooManyRequests, oaErr.StatusCode)
}

func TestClassifyErrorUnclassified(t *testing.T) {
	got := classifyError(ProviderOpenAI, openAIError(http.StatusBadRequest, nil))
	for _, sentinel := range []error{ErrAuthentication, ErrRateLimited, ErrUnavailable, ErrPolicyViolation} {
		assert.NotErrorIs(t, got, sentinel)
	}
	assert.False(t, IsRetryable(got))
}

func TestClassifyErrorKeepsContextErrors(t *testing.T) {
	assert.Equal(t, context.Canceled, classifyError(ProviderGroq, context.Canceled))
	assert.Nil(t, classifyError(ProviderGroq, nil))
}

func TestClassifyErrorRetryAfterHeader(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "3")
	got := classifyError(ProviderGroq, openAIError(http.StatusTooManyRequests, header))

	var pe *ProviderError
	require.ErrorAs(t, got, &pe)
	assert.Equal(t, 3*time.Second, pe.RetryAfter)
	assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
	assert.Contains(t, pe.Error(), "groq (HTTP 429)")
}
