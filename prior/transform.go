package prior

import (
	"fmt"
	"math"
)

// Transform maps a natural parameter onto the unconstrained optimizer space
type Transform int

const (
	// Identity leaves the parameter unchanged
	Identity Transform = iota
	// Log maps (0, inf) onto the real line
	Log
	// Logit maps (0, 1) onto the real line
	Logit
	// LogitAB maps (a, b) onto the real line
	LogitAB
)

var transformNames = map[Transform]string{
	Identity: "identity",
	Log:      "log",
	Logit:    "logit",
	LogitAB:  "logit_ab",
}

// ParseTransform returns the transform with the given name
func ParseTransform(s string) (Transform, error) {
	for t, name := range transformNames {
		if name == s {
			return t, nil
		}
	}

	return Identity, fmt.Errorf("unknown transform: %s", s)
}

// String implements the Stringer interface.
func (t Transform) String() string {
	if name, ok := transformNames[t]; ok {
		return name
	}

	return fmt.Sprintf("Transform(%d)", int(t))
}

// bounded is a transform bound to the interval (a, b)
type bounded struct {
	t    Transform
	a, b float64
}

// theta maps natural value x into optimizer space
func (bt bounded) theta(x float64) float64 {
	switch bt.t {
	case Log:
		return math.Log(x)
	case Logit:
		return math.Log(x / (1 - x))
	case LogitAB:
		return math.Log((x - bt.a) / (bt.b - x))
	}

	return x
}

// par maps optimizer value th into natural space
func (bt bounded) par(th float64) float64 {
	switch bt.t {
	case Log:
		return math.Exp(th)
	case Logit:
		return sigmoid(th)
	case LogitAB:
		return bt.a + (bt.b-bt.a)*sigmoid(th)
	}

	return th
}

// dpar returns the derivative of par evaluated at th
func (bt bounded) dpar(th float64) float64 {
	switch bt.t {
	case Log:
		return math.Exp(th)
	case Logit:
		s := sigmoid(th)
		return s * (1 - s)
	case LogitAB:
		s := sigmoid(th)
		return (bt.b - bt.a) * s * (1 - s)
	}

	return 1
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)

	return e / (1 + e)
}
