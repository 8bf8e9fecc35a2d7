package llm

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/spherical/slide-creator/internal/domain"
	"github.com/spherical/slide-creator/internal/observability"
	"github.com/spherical/slide-creator/internal/validate"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// Error types reported on a failed Outcome
const (
	ErrTypeContext = "context"
	ErrTypeParse   = "parse"
	ErrTypeStatus  = "status"
	ErrTypeUnknown = "unknown"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
	}
}

// Outcome is the structured result of a retried call. Invoke never returns a raw error.
type Outcome struct {
	Success  bool
	Data     interface{}
	Raw      string
	Warnings []string
	Attempts int
	Err      error
	ErrType  string
}

// Message returns the failure message, or "" on success
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Call performs one LLM invocation and returns its raw text
type Call func(ctx context.Context) (string, error)

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Retrier retries a text call until its output parses as JSON
type Retrier struct {
	config *RetryConfig
	parser validate.Parser
	logger *observability.Logger
	sleep  Sleeper
}

// NewRetrier creates a Retrier. A nil config uses DefaultRetryConfig.
func NewRetrier(config *RetryConfig, parser validate.Parser, logger *observability.Logger) *Retrier {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Retrier{
		config: config,
		parser: parser,
		logger: logger,
		sleep:  sleepContext,
	}
}

// WithSleeper replaces the backoff wait
func (r *Retrier) WithSleeper(s Sleeper) *Retrier {
	cp := *r
	cp.sleep = s
	return &cp
}

// Invoke runs call at most MaxRetries+1 times. A call is retried when it
// errors with a retryable error or when its text does not parse as JSON.
func (r *Retrier) Invoke(ctx context.Context, call Call) Outcome {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return failure(err, attempts)
		}

		attempts++
		text, err := call(ctx)
		if err == nil {
			data, warnings, perr := r.parser.Parse(text)
			if perr == nil {
				return Outcome{
					Success:  true,
					Data:     data,
					Raw:      text,
					Warnings: warnings,
					Attempts: attempts,
				}
			}
			err = domain.ParseError("response is not valid JSON", perr)
		} else if ctxErr := ctx.Err(); ctxErr != nil {
			return failure(ctxErr, attempts)
		}

		lastErr = err
		if !retryable(err) {
			r.logger.Warn().Err(err).Int("attempt", attempts).Msg("Non-retryable failure")
			break
		}

		// Don't wait after last attempt
		if attempt == r.config.MaxRetries {
			break
		}

		backoff := calculateBackoff(attempt, r.config)
		r.logger.Warn().
			Err(err).
			Int("attempt", attempts).
			Int("max_attempts", r.config.MaxRetries+1).
			Dur("backoff", backoff).
			Msg("LLM call failed, retrying")

		if err := r.sleep(ctx, backoff); err != nil {
			return failure(err, attempts)
		}
	}

	return failure(lastErr, attempts)
}

func failure(err error, attempts int) Outcome {
	return Outcome{
		Success:  false,
		Attempts: attempts,
		Err:      err,
		ErrType:  errorType(err),
	}
}

func errorType(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrTypeContext
	}
	var status *domain.StatusError
	if errors.As(err, &status) {
		return ErrTypeStatus
	}
	if t := domain.TypeOf(err); t != "" {
		return string(t)
	}
	return ErrTypeUnknown
}

// retryable reports whether another attempt could succeed
func retryable(err error) bool {
	var status *domain.StatusError
	if errors.As(err, &status) {
		return shouldRetry(status.StatusCode)
	}
	return true
}

// shouldRetry determines if a status code is retryable
func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, // 408
		http.StatusTooManyRequests: // 429
		return true
	}
	return statusCode >= http.StatusInternalServerError
}

// calculateBackoff calculates exponential backoff duration
func calculateBackoff(attempt int, config *RetryConfig) time.Duration {
	// Exponential backoff: initialBackoff * 2^attempt
	backoff := float64(config.InitialBackoff) * math.Pow(2, float64(attempt))

	if config.MaxBackoff > 0 && backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}

	return time.Duration(backoff)
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
