package helpers

import (
	"errors"
	"fmt"
	"time"

	"regatta-live/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type TrackerError struct {
	Message string
	Cause   error
}

func (e *TrackerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *TrackerError) Unwrap() error {
	return e.Cause
}

// Distinct kinds so callers can branch with errors.As.
type InvalidInputError struct{ TrackerError }
type NotFoundError struct{ TrackerError }
type PersistenceError struct{ TrackerError }
type TransportError struct{ TrackerError }
type ConfigurationError struct{ TrackerError }

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

func NewInvalidInput(format string, args ...interface{}) error {
	return &InvalidInputError{TrackerError{Message: fmt.Sprintf(format, args...)}}
}

func WrapInvalidInput(message string, cause error) error {
	return &InvalidInputError{TrackerError{Message: message, Cause: cause}}
}

func NewNotFound(format string, args ...interface{}) error {
	return &NotFoundError{TrackerError{Message: fmt.Sprintf(format, args...)}}
}

func WrapPersistence(message string, cause error) error {
	return &PersistenceError{TrackerError{Message: message, Cause: cause}}
}

func WrapTransport(message string, cause error) error {
	return &TransportError{TrackerError{Message: message, Cause: cause}}
}

func NewConfiguration(format string, args ...interface{}) error {
	return &ConfigurationError{TrackerError{Message: fmt.Sprintf(format, args...)}}
}

// -----------------------------------------------------------------------------
// Predicates
// -----------------------------------------------------------------------------

func IsInvalidInput(err error) bool {
	var target *InvalidInputError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}

func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff attempts to execute the operation up to maxRetries times with exponential backoff.
func RetryWithBackoff(log *logger.Logger, operation string, maxRetries int, baseDelay time.Duration, fn func() error) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		if log != nil {
			log.Warning("Attempt %d/%d failed for %s: %v. Retrying in %v", attempt+1, maxRetries, operation, err, delay)
		}
		time.Sleep(delay)
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, maxRetries, lastErr)
}
