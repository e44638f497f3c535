package noise

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Gaussian is seeded gaussian observation noise
type Gaussian struct {
	// seed is the source seed
	seed uint64
	// src is the random source
	src rand.Source
	// std is standard normal distribution drawing from src
	std distuv.Normal
}

// NewGaussian creates new Gaussian noise seeded with seed and returns it
func NewGaussian(seed uint64) *Gaussian {
	g := &Gaussian{seed: seed}
	g.Reset()

	return g
}

// Sample draws a sample from normal distribution with the given mean and variance.
// Non-positive variance yields the mean.
// It returns error if mean or variance is not finite.
func (g *Gaussian) Sample(mean, variance float64) (float64, error) {
	if math.IsNaN(mean) || math.IsInf(mean, 0) || math.IsNaN(variance) || math.IsInf(variance, 0) {
		return 0, fmt.Errorf("invalid noise parameters: mean %v, variance %v", mean, variance)
	}

	if variance <= 0 {
		return mean, nil
	}

	return mean + math.Sqrt(variance)*g.std.Rand(), nil
}

// Seed returns the noise seed
func (g *Gaussian) Seed() uint64 {
	return g.seed
}

// Reset restarts the noise sequence from its seed
func (g *Gaussian) Reset() {
	g.src = rand.NewSource(g.seed)
	g.std = distuv.Normal{Mu: 0, Sigma: 1, Src: g.src}
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{Seed=%d}", g.seed)
}
