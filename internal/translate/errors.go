package translate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

var (
	ErrAuthentication    = errors.New("authentication failed")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnavailable       = errors.New("provider unavailable")
	ErrPolicyViolation   = errors.New("content policy violation")
	ErrMalformedResponse = errors.New("malformed response")
)

// ProviderError is a classified failure from a provider call. Kind is one
// of the sentinel errors above, or nil when the failure is unclassified.
type ProviderError struct {
	Provider   Provider
	StatusCode int
	Kind       error
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Provider))
	if e.StatusCode != 0 {
		sb.WriteString(fmt.Sprintf(" (HTTP %d)", e.StatusCode))
	}
	if e.Kind != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ProviderError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

var policyKeywords = []string{
	"content policy",
	"content_policy",
	"content_filter",
	"content management policy",
	"safety",
	"moderation",
	"flagged",
	"prohibited",
	"responsible ai",
}

var networkKeywords = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
	"tls handshake",
	"unexpected eof",
	"broken pipe",
}

// classifyError maps an SDK error onto the package sentinels.
func classifyError(provider Provider, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	pe := &ProviderError{Provider: provider, Err: err}

	var oaErr *openai.Error
	var anErr *anthropic.Error
	var gErr genai.APIError
	switch {
	case errors.As(err, &oaErr):
		pe.StatusCode = oaErr.StatusCode
		pe.RetryAfter = retryAfterHeader(oaErr.Response)
	case errors.As(err, &anErr):
		pe.StatusCode = anErr.StatusCode
		pe.RetryAfter = retryAfterHeader(anErr.Response)
	case errors.As(err, &gErr):
		pe.StatusCode = gErr.Code
	}

	pe.Kind = kindFor(pe.StatusCode, err)
	return pe
}

func kindFor(status int, err error) error {
	msg := strings.ToLower(err.Error())

	if containsAny(msg, policyKeywords) && status != http.StatusTooManyRequests {
		return ErrPolicyViolation
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuthentication
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusRequestTimeout || status >= 500:
		return ErrUnavailable
	case status != 0:
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) || containsAny(msg, networkKeywords) {
		return ErrUnavailable
	}
	if containsAny(msg, []string{"rate limit", "too many requests", "quota"}) {
		return ErrRateLimited
	}
	return nil
}

func retryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// policyError reports a reply the provider refused or filtered.
func policyError(provider Provider, reason string) error {
	return &ProviderError{
		Provider: provider,
		Kind:     ErrPolicyViolation,
		Err:      errors.New(reason),
	}
}
