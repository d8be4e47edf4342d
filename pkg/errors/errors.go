package errors

import (
	"errors"
	"fmt"
)

// Domain error types for business logic

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a collaborator is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Evaluation errors

var (
	// ErrSpreadTooWide indicates the quoted spread exceeds the configured ceiling
	ErrSpreadTooWide = errors.New("spread too wide")

	// ErrDegenerateGeometry indicates stop placement leaves no positive risk
	ErrDegenerateGeometry = errors.New("degenerate stop geometry")

	// ErrNoQualifyingGap indicates no gap currently contains the mid price
	ErrNoQualifyingGap = errors.New("no qualifying gap")

	// ErrCycleTooSoon indicates the minimum cadence interval has not elapsed
	ErrCycleTooSoon = errors.New("evaluation cycle too soon")

	// ErrPersistence indicates classifier state could not be written or read
	ErrPersistence = errors.New("classifier persistence failed")
)

// Exchange-specific errors

var (
	// ErrExchangeUnavailable indicates exchange API is unavailable
	ErrExchangeUnavailable = errors.New("exchange unavailable")

	// ErrInvalidSymbol indicates invalid trading symbol
	ErrInvalidSymbol = errors.New("invalid trading symbol")

	// ErrOrderRejected indicates order was rejected by exchange
	ErrOrderRejected = errors.New("order rejected by exchange")

	// ErrRateLimitExceeded indicates API rate limit exceeded
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
