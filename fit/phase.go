package fit

import "fmt"

// Phase is the filter loop phase
type Phase int

const (
	// Init resets the state and validates parameters
	Init Phase = iota
	// Predicting propagates the state to the next row
	Predicting
	// Updating corrects the state with the row observations
	Updating
	// Done means all rows were processed
	Done
	// Failed means the evaluation was aborted
	Failed
)

// String implements the Stringer interface.
func (p Phase) String() string {
	switch p {
	case Init:
		return "init"
	case Predicting:
		return "predicting"
	case Updating:
		return "updating"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}

	return fmt.Sprintf("Phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
