// Package errors provides the pipeline error taxonomy and retry helpers for
// the forecast dashboard. Terminal load errors carry the offending column or
// condition so callers can surface a human-readable message and decide whether
// to substitute demo data; the pipeline itself never falls back silently.
package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Kind classifies a pipeline error.
type Kind string

const (
	// Terminal load errors. Each one aborts a single load attempt.
	KindMissingRequiredColumn Kind = "missing_required_column" // no viable prediction column
	KindDateResolution        Kind = "date_resolution"         // no row's date could be resolved
	KindEmptyResult           Kind = "empty_result"            // validation removed every row
	KindSource                Kind = "source"                  // raw table could not be materialized

	// Non-terminal kinds.
	KindConfiguration Kind = "configuration" // invalid configuration
	KindCache         Kind = "cache"         // cache backend failure (load proceeds uncached)
	KindRender        Kind = "render"        // presentation-layer failure
	KindUnknown       Kind = "unknown"
)

// Severity represents the severity level of an error.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// PipelineError is an error with pipeline metadata: its kind, the column it
// concerns (when applicable) and the condition that produced it.
type PipelineError struct {
	Kind      Kind
	Column    string
	Condition string
	Err       error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Condition)
	if e.Column != "" {
		msg += fmt.Sprintf(" (column %q)", e.Column)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches any PipelineError of the same kind, so callers can test with
// errors.Is(err, errors.ErrDateResolution) without caring about the message.
func (e *PipelineError) Is(target error) bool {
	if t, ok := target.(*PipelineError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinel values for errors.Is matching.
var (
	ErrMissingRequiredColumn = &PipelineError{Kind: KindMissingRequiredColumn}
	ErrDateResolution        = &PipelineError{Kind: KindDateResolution}
	ErrEmptyResult           = &PipelineError{Kind: KindEmptyResult}
	ErrSource                = &PipelineError{Kind: KindSource}
)

// NewMissingRequiredColumn reports that no usable prediction column exists.
func NewMissingRequiredColumn(condition string) *PipelineError {
	return &PipelineError{Kind: KindMissingRequiredColumn, Condition: condition}
}

// NewDateResolution reports that no calendar date could be resolved for any row
// of the chosen column.
func NewDateResolution(column, condition string) *PipelineError {
	return &PipelineError{Kind: KindDateResolution, Column: column, Condition: condition}
}

// NewEmptyResult reports that validation dropped every row of the table.
func NewEmptyResult(condition string) *PipelineError {
	return &PipelineError{Kind: KindEmptyResult, Condition: condition}
}

// NewSource wraps a failure to materialize the raw table.
func NewSource(condition string, err error) *PipelineError {
	return &PipelineError{Kind: KindSource, Condition: condition, Err: err}
}

// NewConfiguration wraps an invalid-configuration failure.
func NewConfiguration(condition string, err error) *PipelineError {
	return &PipelineError{Kind: KindConfiguration, Condition: condition, Err: err}
}

// NewCache wraps a cache backend failure.
func NewCache(condition string, err error) *PipelineError {
	return &PipelineError{Kind: KindCache, Condition: condition, Err: err}
}

// KindOf extracts the kind from an error chain, or KindUnknown.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// IsTerminal reports whether the error aborts the whole load attempt. The
// caller may catch a terminal error and substitute a synthetic table; the
// core never does.
func IsTerminal(err error) bool {
	switch KindOf(err) {
	case KindMissingRequiredColumn, KindDateResolution, KindEmptyResult, KindSource:
		return true
	}
	return false
}

// SeverityOf maps an error to its severity level.
func SeverityOf(err error) Severity {
	switch KindOf(err) {
	case KindConfiguration:
		return SeverityHigh
	case KindMissingRequiredColumn, KindDateResolution, KindEmptyResult, KindSource:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Transient marks an error as retryable. The remote-source layer wraps
// network and HTTP 5xx failures in Transient; everything else is treated as
// permanent by Retry.
type Transient struct {
	Err error
}

// Error implements the error interface.
func (t *Transient) Error() string {
	return "transient: " + t.Err.Error()
}

// Unwrap returns the underlying error.
func (t *Transient) Unwrap() error {
	return t.Err
}

// MarkTransient wraps err so Retry will treat it as retryable. A nil err
// returns nil.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &Transient{Err: err}
}

// IsTransient reports whether the error chain contains a Transient marker.
func IsTransient(err error) bool {
	var t *Transient
	return errors.As(err, &t)
}

// RetryPolicy configures the exponential backoff used for transient source
// failures.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns the retry policy used for remote source fetches.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
	}
}

// Retry executes fn with exponential backoff, retrying only transient
// failures. Permanent failures and exhausted retries return the last error.
func Retry(ctx context.Context, policy RetryPolicy, logger *slog.Logger, operation string, fn func() error) error {
	if logger == nil {
		logger = slog.Default()
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = policy.InitialDelay
	strategy.MaxInterval = policy.MaxDelay
	strategy.MaxElapsedTime = 0

	attempts := 0
	wrapped := func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		logger.Warn("transient failure, will retry",
			"operation", operation,
			"attempt", attempts,
			"max_attempts", policy.MaxAttempts,
			"error", err)
		return err
	}

	maxRetries := uint64(0)
	if policy.MaxAttempts > 1 {
		maxRetries = uint64(policy.MaxAttempts - 1)
	}
	err := backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(strategy, maxRetries), ctx))
	if err != nil {
		return fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, err)
	}
	return nil
}
