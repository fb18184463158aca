package executor

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a sticky-path operation needs a bound port and none is recorded.
	ErrNotConnected = errors.New("executor not connected")

	// ErrRangeExhausted matches any *RangeExhaustedError.
	ErrRangeExhausted = errors.New("executor not found in port range")

	// ErrIdentityMismatch means something answered /secret, but not with the executor token.
	ErrIdentityMismatch = errors.New("identity token mismatch")
)

// StatusError is returned when the peer answers with a non-2xx status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// RangeExhaustedError is returned by a range scan when no port answered the probe.
type RangeExhaustedError struct {
	MinPort int
	MaxPort int
	// LastErr is the last transport error seen during the scan. May be nil
	// when every port answered but none with the right identity.
	LastErr error
}

func (e *RangeExhaustedError) Error() string {
	last := "none"
	if e.LastErr != nil {
		last = e.LastErr.Error()
	}
	return fmt.Sprintf("could not locate executor on ports %d-%d. Last error: %s", e.MinPort, e.MaxPort, last)
}

func (e *RangeExhaustedError) Is(target error) bool {
	return target == ErrRangeExhausted
}

func (e *RangeExhaustedError) Unwrap() error {
	return e.LastErr
}

// DispatchError reports a non-2xx answer to /execute.
type DispatchError struct {
	Port       int
	StatusCode int
	Body       string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}
