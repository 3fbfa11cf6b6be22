package compliance

import "fmt"

// ConnectivityError means the Compliance Service is unreachable or the last
// liveness probe failed. Calls failing with it performed no network round
// trip beyond the probe itself.
type ConnectivityError struct {
	Cause error
}

func (e *ConnectivityError) Error() string {
	if e.Cause == nil {
		return "compliance service unreachable"
	}
	return fmt.Sprintf("compliance service unreachable: %v", e.Cause)
}

func (e *ConnectivityError) Unwrap() error { return e.Cause }

// MalformedInputError means a local precondition failed before any external
// call: a disallowed file extension, or a missing or invalid field.
type MalformedInputError struct {
	Field  string
	Reason string
}

func (e *MalformedInputError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed input: %s", e.Reason)
	}
	return fmt.Sprintf("malformed input: %s: %s", e.Field, e.Reason)
}

// ServiceError means a remote call reached the Compliance Service and the
// service returned a failure. Detail carries the service's detail text
// verbatim.
type ServiceError struct {
	Operation  string
	StatusCode int
	Detail     string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("compliance service: %s failed (%d): %s", e.Operation, e.StatusCode, e.Detail)
}

// PartialFailureError means the parse phase of a submission succeeded but the
// validation phase failed. Payment holds the canonical parsed data so callers
// can distinguish "parsed OK, validation failed" from total failure. No
// history entry is recorded for a partial failure.
type PartialFailureError struct {
	Payment *PaymentData
	Err     error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("payment parsed but validation failed: %v", e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }
