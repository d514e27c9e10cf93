package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by accessors when the requested record does not exist
var ErrNotFound = errors.New("record not found")

// InsufficientDataError means no glucose baseline exists for the user, so no prediction is possible
type InsufficientDataError struct {
	UserID string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: no glucose history for user %s", e.UserID)
}

// ModelUnavailableError means the configured scoring function could not run
type ModelUnavailableError struct {
	Model string
	Err   error
}

func (e *ModelUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model %q unavailable", e.Model)
	}
	return fmt.Sprintf("model %q unavailable: %v", e.Model, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error {
	return e.Err
}

// PolicyError reports a forecast that violates its invariants on the way into the notification policy
type PolicyError struct {
	ForecastID string
	Reason     string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy: forecast %s rejected: %s", e.ForecastID, e.Reason)
}

// FutureTimestampError rejects a log dated later than the service clock allows
type FutureTimestampError struct {
	Field string
	At    time.Time
	Now   time.Time
}

func (e *FutureTimestampError) Error() string {
	return fmt.Sprintf("%s %s is in the future (now %s)", e.Field, e.At.Format(time.RFC3339), e.Now.Format(time.RFC3339))
}

// IsFutureTimestamp reports whether err is, or wraps, a FutureTimestampError
func IsFutureTimestamp(err error) bool {
	var target *FutureTimestampError
	return errors.As(err, &target)
}

// IsInsufficientData reports whether err is, or wraps, an InsufficientDataError
func IsInsufficientData(err error) bool {
	var target *InsufficientDataError
	return errors.As(err, &target)
}

// IsModelUnavailable reports whether err is, or wraps, a ModelUnavailableError
func IsModelUnavailable(err error) bool {
	var target *ModelUnavailableError
	return errors.As(err, &target)
}
