// Package errors defines the error kinds the recommendation engine reports.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match them with errors.Is.
var (
	// ErrDataUnavailable means a price, indicator set or FX rate needed for a
	// ticker could not be obtained. The ticker is skipped; the cycle continues.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrZeroPortfolioValue means the portfolio has no capital basis.
	ErrZeroPortfolioValue = errors.New("portfolio value is zero")
	// ErrCycleRunning means another evaluation cycle holds the portfolio lock.
	ErrCycleRunning = errors.New("evaluation cycle already running")
	// ErrConfigInvalid means the engine configuration failed validation.
	ErrConfigInvalid = errors.New("invalid configuration")
)

// TickerError attaches the failing ticker and pipeline stage to an error.
type TickerError struct {
	Ticker string
	Stage  string
	Err    error
}

func (e *TickerError) Error() string {
	return fmt.Sprintf("ticker %s [%s]: %v", e.Ticker, e.Stage, e.Err)
}

func (e *TickerError) Unwrap() error {
	return e.Err
}

// NewTickerError creates a TickerError. A nil err is recorded as ErrDataUnavailable.
func NewTickerError(ticker, stage string, err error) *TickerError {
	if err == nil {
		err = ErrDataUnavailable
	}
	return &TickerError{Ticker: ticker, Stage: stage, Err: err}
}

// Unavailable wraps cause so that it matches ErrDataUnavailable.
func Unavailable(ticker, stage string, cause error) *TickerError {
	if cause == nil {
		return NewTickerError(ticker, stage, ErrDataUnavailable)
	}
	return NewTickerError(ticker, stage, fmt.Errorf("%w: %v", ErrDataUnavailable, cause))
}

// ConfigError describes one invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfigInvalid
}

// NewConfigError creates a ConfigError.
func NewConfigError(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
