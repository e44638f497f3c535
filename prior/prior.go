// Package prior maps model parameters between their natural space and the
// unconstrained space explored by the optimizer and evaluates their log prior.
package prior

import (
	"fmt"
	"io"
	"math"

	ssm "github.com/milosgajdos/go-ssm"
	"gonum.org/v1/gonum/stat/distuv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultStep is the default initial simplex step in optimizer space
	DefaultStep = 0.1
)

// Spec is the parameter document entry
type Spec struct {
	// Name is parameter name
	Name string `yaml:"name"`
	// Value is the initial natural value
	Value float64 `yaml:"value"`
	// Distribution is one of: uniform, normal, fixed; empty means flat prior
	Distribution string `yaml:"distribution,omitempty"`
	// Lower is the lower bound of the support
	Lower *float64 `yaml:"lower,omitempty"`
	// Upper is the upper bound of the support
	Upper *float64 `yaml:"upper,omitempty"`
	// Mean is the normal prior mean
	Mean float64 `yaml:"mean,omitempty"`
	// SD is the normal prior standard deviation
	SD float64 `yaml:"sd,omitempty"`
	// Transform overrides the transform derived from the bounds
	Transform string `yaml:"transform,omitempty"`
	// Step is the initial simplex step in optimizer space
	Step float64 `yaml:"step,omitempty"`
}

// Document is the parameter document
type Document struct {
	// Parameters are the model parameters
	Parameters []Spec `yaml:"parameters"`
}

// logProber is a univariate density
type logProber interface {
	LogProb(float64) float64
}

// flat is improper flat density
type flat struct{}

func (flat) LogProb(float64) float64 { return 0 }

// Param is a model parameter
type Param struct {
	// Name is parameter name
	Name string
	// Value is the natural value
	Value float64
	// Step is the simplex step
	Step float64
	// Estimated is false for fixed parameters
	Estimated bool
	tr        bounded
	dist      logProber
	spec      Spec
}

// NewParam creates new parameter from s and returns it.
// It returns error if the distribution is unknown, its arguments are invalid
// or the initial value lies outside the support of the transform.
func NewParam(s Spec) (*Param, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("missing parameter name")
	}

	p := &Param{
		Name:      s.Name,
		Value:     s.Value,
		Step:      s.Step,
		Estimated: true,
		dist:      flat{},
		spec:      s,
	}

	if p.Step == 0 {
		p.Step = DefaultStep
	}

	lower, upper := math.Inf(-1), math.Inf(1)
	if s.Lower != nil {
		lower = *s.Lower
	}
	if s.Upper != nil {
		upper = *s.Upper
	}

	if !(lower < upper) {
		return nil, fmt.Errorf("parameter %s: invalid bounds [%v, %v]", s.Name, lower, upper)
	}

	switch s.Distribution {
	case "":
	case "fixed":
		p.Estimated = false
	case "uniform":
		if s.Lower == nil || s.Upper == nil {
			return nil, fmt.Errorf("parameter %s: uniform prior requires lower and upper bounds", s.Name)
		}
		p.dist = distuv.Uniform{Min: lower, Max: upper}
	case "normal":
		if !(s.SD > 0) {
			return nil, fmt.Errorf("parameter %s: invalid normal prior sd: %v", s.Name, s.SD)
		}
		p.dist = distuv.Normal{Mu: s.Mean, Sigma: s.SD}
	default:
		return nil, fmt.Errorf("parameter %s: unknown distribution: %s", s.Name, s.Distribution)
	}

	p.tr = bounded{t: defaultTransform(lower, upper), a: lower, b: upper}
	if s.Transform != "" {
		t, err := ParseTransform(s.Transform)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", s.Name, err)
		}
		p.tr.t = t
	}

	if p.Estimated {
		if err := p.checkSupport(); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func defaultTransform(lower, upper float64) Transform {
	switch {
	case lower == 0 && math.IsInf(upper, 1):
		return Log
	case lower == 0 && upper == 1:
		return Logit
	case !math.IsInf(lower, 0) && !math.IsInf(upper, 0):
		return LogitAB
	}

	return Identity
}

func (p *Param) checkSupport() error {
	v, a, b := p.Value, p.tr.a, p.tr.b

	var ok bool
	switch p.tr.t {
	case Log:
		ok = v > 0
	case Logit:
		ok = v > 0 && v < 1
	case LogitAB:
		ok = v > a && v < b
	default:
		ok = !math.IsNaN(v) && !math.IsInf(v, 0)
	}

	if !ok {
		return fmt.Errorf("parameter %s: value %v outside %s transform support", p.Name, v, p.tr.t)
	}

	return nil
}

// Transform returns the parameter transform
func (p *Param) Transform() Transform {
	return p.tr.t
}

// Theta returns the parameter value in optimizer space
func (p *Param) Theta() float64 {
	return p.tr.theta(p.Value)
}

// Par returns the natural value of optimizer value th
func (p *Param) Par(th float64) float64 {
	return p.tr.par(th)
}

// LogPrior returns the log prior density of optimizer value th:
// the density of the natural value plus the log Jacobian of the transform.
func (p *Param) LogPrior(th float64) float64 {
	return p.dist.LogProb(p.tr.par(th)) + math.Log(math.Abs(p.tr.dpar(th)))
}

// Set is an ordered set of model parameters
type Set struct {
	params []*Param
	// est holds indices of the estimated parameters
	est []int
}

// NewSet creates new parameter set from specs and returns it.
// It returns error if any of the parameters is invalid or names repeat.
func NewSet(specs []Spec) (*Set, error) {
	s := &Set{}
	seen := make(map[string]bool)

	for _, spec := range specs {
		p, err := NewParam(spec)
		if err != nil {
			return nil, err
		}

		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate parameter: %s", p.Name)
		}
		seen[p.Name] = true

		if p.Estimated {
			s.est = append(s.est, len(s.params))
		}
		s.params = append(s.params, p)
	}

	if len(s.params) == 0 {
		return nil, fmt.Errorf("empty parameter set")
	}

	return s, nil
}

// Load decodes YAML parameter document from r and returns the parameter set
func Load(r io.Reader) (*Set, error) {
	doc := &Document{}
	if err := yaml.NewDecoder(r).Decode(doc); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}

	return NewSet(doc.Parameters)
}

// Order returns a copy of the set with parameters ordered by names.
// It returns error if names and the set parameters differ.
func (s *Set) Order(names []string) (*Set, error) {
	if len(names) != len(s.params) {
		return nil, fmt.Errorf("invalid number of parameters: %d, expected %d", len(s.params), len(names))
	}

	byName := make(map[string]*Param, len(s.params))
	for _, p := range s.params {
		byName[p.Name] = p
	}

	o := &Set{}
	for i, name := range names {
		p, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("missing parameter: %s", name)
		}
		if p.Estimated {
			o.est = append(o.est, i)
		}
		o.params = append(o.params, p)
	}

	return o, nil
}

// Len returns the number of parameters
func (s *Set) Len() int {
	return len(s.params)
}

// Dim returns the number of estimated parameters
func (s *Set) Dim() int {
	return len(s.est)
}

// Param returns i-th parameter
func (s *Set) Param(i int) *Param {
	return s.params[i]
}

// Names returns the names of all parameters
func (s *Set) Names() []string {
	names := make([]string, len(s.params))
	for i, p := range s.params {
		names[i] = p.Name
	}

	return names
}

// Estimated returns the names of the estimated parameters
func (s *Set) Estimated() []string {
	names := make([]string, len(s.est))
	for i, j := range s.est {
		names[i] = s.params[j].Name
	}

	return names
}

// Values returns the natural values of all parameters
func (s *Set) Values() []float64 {
	vals := make([]float64, len(s.params))
	for i, p := range s.params {
		vals[i] = p.Value
	}

	return vals
}

// Theta returns the estimated parameters in optimizer space
func (s *Set) Theta() []float64 {
	theta := make([]float64, len(s.est))
	for i, j := range s.est {
		theta[i] = s.params[j].Theta()
	}

	return theta
}

// Steps returns initial simplex steps of the estimated parameters
func (s *Set) Steps() []float64 {
	steps := make([]float64, len(s.est))
	for i, j := range s.est {
		steps[i] = s.params[j].Step
	}

	return steps
}

// Params maps theta back onto natural values of all parameters and stores them in dst.
// Fixed parameters keep their value. If dst is nil or too short a new slice is allocated.
// It panics if theta length differs from the number of estimated parameters.
func (s *Set) Params(theta, dst []float64) []float64 {
	if len(theta) != len(s.est) {
		panic(fmt.Sprintf("prior: invalid theta length %d, expected %d", len(theta), len(s.est)))
	}

	if len(dst) < len(s.params) {
		dst = make([]float64, len(s.params))
	}
	dst = dst[:len(s.params)]

	for i, p := range s.params {
		dst[i] = p.Value
	}

	for i, j := range s.est {
		dst[j] = s.params[j].Par(theta[i])
	}

	return dst
}

// Document returns the parameter document of the set with values replaced by p.
// It returns error if p length differs from the number of parameters.
func (s *Set) Document(p []float64) (*Document, error) {
	if len(p) != len(s.params) {
		return nil, fmt.Errorf("invalid number of values: %d, expected %d", len(p), len(s.params))
	}

	doc := &Document{Parameters: make([]Spec, len(s.params))}
	for i, param := range s.params {
		doc.Parameters[i] = param.spec
		doc.Parameters[i].Value = p[i]
	}

	return doc, nil
}

// LogPrior returns the log prior density of theta.
// It returns ErrPrior if theta has invalid length or the density is not finite.
func (s *Set) LogPrior(theta []float64) (float64, ssm.Status) {
	if len(theta) != len(s.est) {
		return 0, ssm.ErrPrior
	}

	lp := 0.0
	for i, j := range s.est {
		lp += s.params[j].LogPrior(theta[i])
	}

	if math.IsNaN(lp) || math.IsInf(lp, 0) {
		return 0, ssm.ErrPrior
	}

	return lp, ssm.Success
}
