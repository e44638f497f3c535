package matrix

import (
	"fmt"

	mx "github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

// Symmetrize replaces every off-diagonal pair of the square matrix m with its average.
// It panics if m is not square.
func Symmetrize(m *mat.Dense) {
	r, c := m.Dims()
	if r != c {
		panic(mat.ErrSquare)
	}

	for i := 0; i < r; i++ {
		for j := i + 1; j < r; j++ {
			v := (m.At(i, j) + m.At(j, i)) / 2.0
			m.Set(i, j, v)
			m.Set(j, i, v)
		}
	}
}

// IsSymmetric returns true if m is square and m[i][j] == m[j][i] for all i, j
func IsSymmetric(m mat.Matrix) bool {
	r, c := m.Dims()
	if r != c {
		return false
	}

	for i := 0; i < r; i++ {
		for j := i + 1; j < r; j++ {
			if m.At(i, j) != m.At(j, i) {
				return false
			}
		}
	}

	return true
}

// SymCopy returns the upper triangle of the square matrix m as a new symmetric matrix
func SymCopy(m mat.Matrix) *mat.SymDense {
	r, _ := m.Dims()
	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, m.At(i, j))
		}
	}

	return s
}

// EigenValues returns the eigenvalues of the symmetric part of the square matrix m in ascending order.
// It returns error if the decomposition fails.
func EigenValues(m mat.Matrix) ([]float64, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(SymCopy(m), false); !ok {
		return nil, fmt.Errorf("eigen decomposition failed")
	}

	return eig.Values(nil), nil
}

// Identity returns n x n identity matrix.
// It returns error if n is not positive.
func Identity(n int) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid matrix size: %d", n)
	}

	return mx.NewDenseValIdentity(n, 1.0)
}
