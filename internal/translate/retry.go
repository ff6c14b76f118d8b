package translate

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mgpai22/subauto/internal/logging"
)

// RetryPolicy controls exponential backoff between attempts.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// fraction of the delay added or removed at random
	Jitter float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   5,
		InitialDelay: time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2,
		Jitter:       0.25,
	}
}

const (
	minRetryDelay    = 100 * time.Millisecond
	retryAfterBuffer = 1.1
)

var retryHintRegex = regexp.MustCompile(
	`(?i)(?:try again in|retry after)\s+([\d.]+)\s*(ms|s)\b`,
)

// Delay returns how long to wait before retry number attempt (0-based).
// A delay suggested by the provider wins over the backoff schedule.
func (p RetryPolicy) Delay(attempt int, err error) time.Duration {
	return p.delay(attempt, err, rand.Float64)
}

func (p RetryPolicy) delay(attempt int, err error, random func() float64) time.Duration {
	if hint := suggestedDelay(err); hint > 0 {
		return max(time.Duration(float64(hint)*retryAfterBuffer), minRetryDelay)
	}

	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		spread := d * p.Jitter
		d += (random()*2 - 1) * spread
	}

	return max(time.Duration(d), minRetryDelay)
}

func suggestedDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	var pe *ProviderError
	if errors.As(err, &pe) && pe.RetryAfter > 0 {
		return pe.RetryAfter
	}

	m := retryHintRegex.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	v, perr := strconv.ParseFloat(m[1], 64)
	if perr != nil || v <= 0 {
		return 0
	}
	if strings.EqualFold(m[2], "ms") {
		return time.Duration(v * float64(time.Millisecond))
	}
	return time.Duration(v * float64(time.Second))
}

// IsRetryable reports whether another attempt may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrAuthentication) || errors.Is(err, ErrPolicyViolation) {
		return false
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrMalformedResponse)
}

// RetryingTranslator retries transient failures of the wrapped translator.
type RetryingTranslator struct {
	next    Translator
	policy  RetryPolicy
	logger  *logging.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	OnRetry func(attempt int, delay time.Duration, err error)
}

func Retrying(t Translator, policy RetryPolicy, logger *logging.Logger) *RetryingTranslator {
	return &RetryingTranslator{
		next:   t,
		policy: policy,
		logger: logging.OrNop(logger).Named("retry"),
		sleep:  sleepContext,
	}
}

func (r *RetryingTranslator) Unwrap() Translator {
	return r.next
}

func (r *RetryingTranslator) TranslateBatch(
	ctx context.Context,
	req Request,
) (Response, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := r.next.TranslateBatch(ctx, req)
		if err == nil {
			if attempt > 0 {
				r.logger.Infow("batch succeeded after retry", "attempts", attempt+1)
			}
			return resp, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt >= r.policy.MaxRetries {
			return Response{}, lastErr
		}

		delay := r.policy.Delay(attempt, err)
		r.logger.Warnw("retrying batch",
			"attempt", attempt+1,
			"max_retries", r.policy.MaxRetries,
			"delay", delay.Round(10*time.Millisecond),
			"error", err,
		)
		if r.OnRetry != nil {
			r.OnRetry(attempt+1, delay, err)
		}

		if err := r.sleep(ctx, delay); err != nil {
			return Response{}, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
