package span

import (
	"errors"
	"fmt"
)

// ErrInvalidSpan is returned when a span record is missing required fields.
var ErrInvalidSpan = errors.New("invalid span")

// TransmissionError is raised when a finished span cannot be delivered.
// The tracer never surfaces it to instrumented code.
type TransmissionError struct {
	Endpoint string
	Cause    error
}

// Error implements the error interface.
func (e *TransmissionError) Error() string {
	return fmt.Sprintf("span transmission failed [endpoint=%s]: %v", e.Endpoint, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *TransmissionError) Unwrap() error {
	return e.Cause
}

// MalformedCarrierError describes an inbound carrier that could not be parsed.
type MalformedCarrierError struct {
	Field string
	Value string
}

// Error implements the error interface.
func (e *MalformedCarrierError) Error() string {
	return fmt.Sprintf("malformed propagation carrier: field %s has invalid value %q", e.Field, e.Value)
}

// DurabilityError is returned when the collector cannot append a span to its
// durable log. The span is not indexed when this happens.
type DurabilityError struct {
	Backend   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *DurabilityError) Error() string {
	return fmt.Sprintf("durability failure [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *DurabilityError) Unwrap() error {
	return e.Cause
}

// NewDurabilityError creates a new DurabilityError.
func NewDurabilityError(backend, operation string, cause error) *DurabilityError {
	return &DurabilityError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}
