package ssm

import (
	"fmt"
	"strings"
)

// Status is a set of error kinds accumulated over filter sub-steps
type Status uint8

// Success means no error has been recorded
const Success Status = 0

const (
	// ErrKalman is a numerical failure: decomposition, inversion or product
	ErrKalman Status = 1 << iota
	// ErrIC means the parameters violate the model domain constraints
	ErrIC
	// ErrPred means the state propagation failed
	ErrPred
	// ErrPrior means the log prior density could not be evaluated
	ErrPrior
)

var statusNames = []struct {
	s    Status
	name string
}{
	{ErrKalman, "kalman"},
	{ErrIC, "ic"},
	{ErrPred, "pred"},
	{ErrPrior, "prior"},
}

// Combine returns the union of s and o. It never clears a recorded error.
func (s Status) Combine(o Status) Status {
	return s | o
}

// Failed returns true if any error kind has been recorded
func (s Status) Failed() bool {
	return s != Success
}

// Has returns true if all kinds in o are recorded in s
func (s Status) Has(o Status) bool {
	return o != Success && s&o == o
}

// String implements the Stringer interface.
func (s Status) String() string {
	if s == Success {
		return "success"
	}

	var names []string
	for _, n := range statusNames {
		if s&n.s != 0 {
			names = append(names, n.name)
		}
	}

	return strings.Join(names, "|")
}

// Err returns nil on success and *StatusError otherwise
func (s Status) Err() error {
	if s == Success {
		return nil
	}

	return &StatusError{Status: s}
}

// StatusError is error carrying a failed Status
type StatusError struct {
	// Status is the failed status
	Status Status
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("filter failed: %s", e.Status)
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
