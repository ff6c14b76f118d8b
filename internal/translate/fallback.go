package translate

import (
	"context"
	"errors"
	"fmt"

	"github.com/mgpai22/subauto/internal/logging"
)

// FallbackTranslator re-sends a batch to a second model when the primary
// refuses it on content policy grounds.
type FallbackTranslator struct {
	primary  Translator
	fallback Translator
	logger   *logging.Logger
}

// WithFallback returns primary unchanged when fallback is nil.
func WithFallback(primary, fallback Translator, logger *logging.Logger) Translator {
	if fallback == nil {
		return primary
	}
	return &FallbackTranslator{
		primary:  primary,
		fallback: fallback,
		logger:   logging.OrNop(logger).Named("fallback"),
	}
}

func (f *FallbackTranslator) Unwrap() Translator {
	return f.primary
}

func (f *FallbackTranslator) TranslateBatch(
	ctx context.Context,
	req Request,
) (Response, error) {
	resp, err := f.primary.TranslateBatch(ctx, req)
	if err == nil || !errors.Is(err, ErrPolicyViolation) {
		return resp, err
	}

	f.logger.Warnw("policy violation, switching to fallback model",
		"items", len(req.Items),
		"error", err,
	)

	resp, ferr := f.fallback.TranslateBatch(ctx, req)
	if ferr != nil {
		return Response{}, fmt.Errorf("fallback model failed: %w", ferr)
	}
	return resp, nil
}
