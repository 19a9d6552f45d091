package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Strategy selects how retry delays grow between attempts.
type Strategy string

const (
	// StrategyNone disables retries regardless of MaxRetries.
	StrategyNone Strategy = "none"
	// StrategyFixed uses BaseDelay for every retry.
	StrategyFixed Strategy = "fixed"
	// StrategyLinear grows the delay linearly with the attempt number.
	StrategyLinear Strategy = "linear"
	// StrategyExponential doubles the delay after each attempt.
	StrategyExponential Strategy = "exponential"
)

// NetworkQuality describes the observed connection quality. Worse
// quality stretches retry delays to avoid hammering a struggling link.
type NetworkQuality string

const (
	QualityExcellent NetworkQuality = "excellent"
	QualityGood      NetworkQuality = "good"
	QualityFair      NetworkQuality = "fair"
	QualityPoor      NetworkQuality = "poor"
)

// Multiplier returns the delay scaling factor for the quality level.
func (q NetworkQuality) Multiplier() float64 {
	switch q {
	case QualityGood:
		return 1.2
	case QualityFair:
		return 1.5
	case QualityPoor:
		return 2.0
	default:
		return 1.0
	}
}

// DefaultRetryableStatuses are the HTTP status codes retried by default.
var DefaultRetryableStatuses = []int{408, 429, 500, 502, 503, 504}

// DefaultRetryableErrors are message fragments that mark a transport
// error as transient. Matched case-insensitively.
var DefaultRetryableErrors = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"timeout",
	"timed out",
	"econnreset",
	"eof",
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay before jitter and quality scaling.
	MaxDelay time.Duration
	// Strategy selects delay growth. Defaults to StrategyExponential.
	Strategy Strategy
	// Jitter applies a random ±10% factor to each delay.
	Jitter bool
	// QualityMultiplier scales the final delay for degraded networks.
	// Zero means 1.0.
	QualityMultiplier float64
	// Budget is a wall-clock cap across all attempts and waits.
	// Zero means no budget.
	Budget time.Duration
	// RetryableStatuses overrides DefaultRetryableStatuses.
	RetryableStatuses []int
	// RetryableErrors overrides DefaultRetryableErrors.
	RetryableErrors []string
	// RetryIf can veto a retry that the default logic would allow.
	RetryIf func(error) bool
	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
	// Now supplies the clock for budget accounting. Defaults to time.Now.
	Now func() time.Time
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Strategy:   StrategyExponential,
		Jitter:     true,
	}
}

// applyDefaults fills zero values in place.
func (cfg *RetryConfig) applyDefaults() {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyExponential
	}
	if cfg.QualityMultiplier <= 0 {
		cfg.QualityMultiplier = 1.0
	}
	if cfg.RetryableStatuses == nil {
		cfg.RetryableStatuses = DefaultRetryableStatuses
	}
	if cfg.RetryableErrors == nil {
		cfg.RetryableErrors = DefaultRetryableErrors
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
}

// Retry executes fn until it succeeds, retries are exhausted, the retry
// budget runs out, or the error is not retryable. Returns the result of
// the successful call or the last error.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	cfg.applyDefaults()
	start := cfg.Now()

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if cfg.Strategy == StrategyNone {
			return zero, err
		}
		if !cfg.retryable(err) {
			return zero, err
		}
		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return zero, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := cfg.Delay(attempt)

		// A retry that cannot finish inside the budget is not started.
		if cfg.Budget > 0 && cfg.Now().Sub(start)+delay > cfg.Budget {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}

// RetryFunc executes a function that returns only an error.
func RetryFunc(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := Retry(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Delay computes the wait before the retry following attempt (0-based).
// The strategy delay is capped at MaxDelay, then jitter and the quality
// multiplier are applied.
func (cfg RetryConfig) Delay(attempt int) time.Duration {
	var d float64

	switch cfg.Strategy {
	case StrategyFixed:
		d = float64(cfg.BaseDelay)
	case StrategyLinear:
		d = float64(cfg.BaseDelay) * float64(attempt+1)
	case StrategyExponential:
		d = float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	default:
		return 0
	}

	if d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}

	if cfg.Jitter {
		d *= 1 + (rand.Float64()*2-1)*0.1
	}

	mult := cfg.QualityMultiplier
	if mult <= 0 {
		mult = 1.0
	}
	d *= mult

	if d < 0 {
		d = float64(cfg.BaseDelay)
	}
	return time.Duration(d)
}

// retryable decides whether an error is transient under this config.
// Cancellation is never retried. Errors carrying an HTTP status are
// judged by the status set; everything else by message fragments.
func (cfg RetryConfig) retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	if code, ok := statusCode(err); ok {
		for _, s := range cfg.RetryableStatuses {
			if code == s {
				return true
			}
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, frag := range cfg.RetryableErrors {
		if strings.Contains(msg, frag) {
			return true
		}
	}

	// Deadline expiry without a status is a timeout.
	return errors.Is(err, context.DeadlineExceeded)
}

// statusCoder is implemented by transport errors that carry an HTTP
// status code.
type statusCoder interface {
	HTTPStatusCode() int
}

// statusCode extracts an HTTP status from anywhere in the error chain.
func statusCode(err error) (int, bool) {
	for err != nil {
		if sc, ok := err.(statusCoder); ok {
			if code := sc.HTTPStatusCode(); code > 0 {
				return code, true
			}
		}
		err = errors.Unwrap(err)
	}
	return 0, false
}
