package sim

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-ssm/fit"
	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

// InnovationCov returns the empirical covariance of the innovations of the
// trace points with all k channels observed.
// It returns error if fewer than two such points exist.
func InnovationCov(points []fit.Point, k int) (*mat.SymDense, error) {
	var cols [][]float64
	for _, pt := range points {
		if len(pt.Innovation) == k {
			cols = append(cols, pt.Innovation)
		}
	}

	if k <= 0 || len(cols) < 2 {
		return nil, fmt.Errorf("not enough complete innovations: %d", len(cols))
	}

	// one column per time point
	m := mat.NewDense(k, len(cols), nil)
	for j, col := range cols {
		for i, v := range col {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("invalid innovation at %d: %v", j, v)
			}
			m.Set(i, j, v)
		}
	}

	cov, err := matrix.Cov(m, "cols")
	if err != nil {
		return nil, fmt.Errorf("failed to calculate covariance matrix: %v", err)
	}

	return cov, nil
}
