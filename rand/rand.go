// Package rand draws correlated gaussian samples from seeded sources.
package rand

import (
	"fmt"
	"math"

	rnd "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// WithCovN draws n random samples from a zero-mean Normal distribution with covariance cov
// using a source seeded with seed. Equal seeds draw equal samples.
// It returns matrix which contains the randomly generated samples stored in its columns.
// It fails with error if n is not positive or if SVD factorization of cov fails.
func WithCovN(cov mat.Symmetric, n int, seed uint64) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	// SVD rather than Cholesky: cov may be singular
	var svd mat.SVD
	if ok := svd.Factorize(cov, mat.SVDFull); !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	u := new(mat.Dense)
	svd.UTo(u)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	u.Mul(u, mat.NewDiagDense(len(vals), vals))

	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: rnd.NewSource(seed)}

	rows := cov.SymmetricDim()
	data := make([]float64, rows*n)
	for i := range data {
		data[i] = norm.Rand()
	}
	samples := mat.NewDense(rows, n, data)
	samples.Mul(u, samples)

	return samples, nil
}
