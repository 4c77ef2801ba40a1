package ports

import (
	"errors"
	"fmt"
)

// Common infrastructure errors that can occur during storage and
// observability interactions.
var (
	// ErrSerializationFailure indicates that a transaction lost a race with
	// a concurrent one and was aborted by the store. The whole unit of work
	// may be retried.
	ErrSerializationFailure = errors.New("transaction serialization failure")

	// ErrStoreUnavailable indicates that the backing store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrConfigNotFound indicates that required configuration is missing.
	ErrConfigNotFound = errors.New("configuration not found")
)

// StoreError represents an error from a Store or Tx operation.
// It includes the operation and entity involved.
type StoreError struct {
	// Operation is the name of the store operation that failed.
	Operation string

	// Entity is the kind of record involved, e.g. "score_record".
	Entity string

	// Err is the underlying error that occurred.
	Err error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: operation=%s, entity=%s, err=%v", e.Operation, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// IsRetryable returns true if the failed transaction can be rerun as a
// whole. Domain errors such as not-found or validation are never retryable.
func (e *StoreError) IsRetryable() bool {
	return errors.Is(e.Err, ErrSerializationFailure) ||
		errors.Is(e.Err, ErrStoreUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewStoreError creates a new StoreError with the given details.
func NewStoreError(operation, entity string, err error) *StoreError {
	return &StoreError{
		Operation: operation,
		Entity:    entity,
		Err:       err,
	}
}

// IsRetryable reports whether err, anywhere in its chain, is a retryable
// StoreError.
func IsRetryable(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr) && storeErr.IsRetryable()
}

// MetricsError represents an error from metrics collection operations.
type MetricsError struct {
	// Metric is the name of the metric that was being collected when the
	// error occurred.
	Metric string

	// Operation is the name of the metrics operation that failed.
	Operation string

	// Err is the underlying error that caused the metrics operation to fail.
	Err error
}

// Error implements the error interface for MetricsError.
func (e *MetricsError) Error() string {
	return fmt.Sprintf("metrics error: operation=%s, metric=%s, err=%v", e.Operation, e.Metric, e.Err)
}

// Unwrap returns the underlying error.
func (e *MetricsError) Unwrap() error { return e.Err }

// NewMetricsError creates a new MetricsError with the given details.
func NewMetricsError(metric, operation string, err error) *MetricsError {
	return &MetricsError{
		Metric:    metric,
		Operation: operation,
		Err:       err,
	}
}

// ConfigError represents an error from configuration operations.
type ConfigError struct {
	// ConfigKey is the configuration key that was involved in the failed
	// operation.
	ConfigKey string

	// Err is the underlying error that caused the configuration operation
	// to fail.
	Err error
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a new ConfigError with the given details.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{
		ConfigKey: key,
		Err:       err,
	}
}
