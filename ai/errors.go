package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/advisor/core"
	"github.com/tmc/langchaingo/llms"
)

// Classify maps a backend error onto the core backend taxonomy.
// Context cancellation and already-classified errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, core.ErrBackendTransient) ||
		errors.Is(err, core.ErrBackendQuota) ||
		errors.Is(err, core.ErrBackendPermanent) ||
		errors.Is(err, core.ErrBackendExhausted) {
		return err
	}

	wrapped := llms.OpenAIErrorMapper().WrapError(err)
	var llmErr *llms.Error
	if !errors.As(wrapped, &llmErr) {
		return fmt.Errorf("%w: %w", core.ErrBackendTransient, err)
	}

	switch llmErr.Code {
	case llms.ErrCodeQuotaExceeded:
		return fmt.Errorf("%w: %w", core.ErrBackendQuota, err)
	case llms.ErrCodeRateLimit, llms.ErrCodeTimeout, llms.ErrCodeProviderUnavailable, llms.ErrCodeUnknown:
		return fmt.Errorf("%w: %w", core.ErrBackendTransient, err)
	case llms.ErrCodeCanceled:
		return err
	default:
		return fmt.Errorf("%w: %w", core.ErrBackendPermanent, err)
	}
}

// IsRetryable reports whether a classified error may succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, core.ErrBackendTransient) || errors.Is(err, core.ErrBackendQuota)
}

// IsQuota reports whether a classified error signals quota exhaustion.
func IsQuota(err error) bool {
	return errors.Is(err, core.ErrBackendQuota)
}
