package state

import (
	"fmt"

	"github.com/milosgajdos/go-ssm/matrix"
	"gonum.org/v1/gonum/mat"
)

// Workspace is preallocated scratch space of one filter evaluation context.
// It is sized for state dimension m and at most k observed channels per row;
// per-row matrices are sub-views of the allocated buffers and the workspace
// is never resized. A Workspace must not be shared by concurrent evaluations.
type Workspace struct {
	// m is state dimension
	m int
	// k is channel capacity
	k int
	// predErr is the innovation vector
	predErr *mat.VecDense
	// st is innovation covariance
	st *mat.Dense
	// stm1 is inverse innovation covariance
	stm1 *mat.Dense
	// rt is observation noise
	rt *mat.Dense
	// eye is identity used to invert st
	eye *mat.Dense
	// ht is observation Jacobian
	ht *mat.Dense
	// kt is Kalman gain
	kt *mat.Dense
	// tmpMK is m x k scratch
	tmpMK *mat.Dense
	// tmpKM is k x m scratch
	tmpKM *mat.Dense
	// tmpMM is m x m scratch
	tmpMM *mat.Dense
	// vecM is m scratch
	vecM *mat.VecDense
	// sym is symmetric m x m scratch
	sym *mat.SymDense
	// evec stores eigenvectors
	evec *mat.Dense
	// eval stores eigenvalues
	eval []float64
	// eig is the eigen decomposition
	eig mat.EigenSym
	// lu is the LU decomposition
	lu mat.LU
}

// NewWorkspace creates new workspace for state dimension m and channel capacity k.
// It returns error if either m or k is not positive.
func NewWorkspace(m, k int) (*Workspace, error) {
	if m <= 0 || k <= 0 {
		return nil, fmt.Errorf("invalid workspace dimensions: [%d x %d]", m, k)
	}

	eye, err := matrix.Identity(k)
	if err != nil {
		return nil, err
	}

	return &Workspace{
		m:       m,
		k:       k,
		predErr: mat.NewVecDense(k, nil),
		st:      mat.NewDense(k, k, nil),
		stm1:    mat.NewDense(k, k, nil),
		rt:      mat.NewDense(k, k, nil),
		eye:     eye,
		ht:      mat.NewDense(m, k, nil),
		kt:      mat.NewDense(m, k, nil),
		tmpMK:   mat.NewDense(m, k, nil),
		tmpKM:   mat.NewDense(k, m, nil),
		tmpMM:   mat.NewDense(m, m, nil),
		vecM:    mat.NewVecDense(m, nil),
		sym:     mat.NewSymDense(m, nil),
		evec:    mat.NewDense(m, m, nil),
		eval:    make([]float64, m),
	}, nil
}

// Dims returns the state dimension and the channel capacity
func (w *Workspace) Dims() (m, k int) {
	return w.m, w.k
}

func (w *Workspace) square(d *mat.Dense, k int) *mat.Dense {
	return d.Slice(0, k, 0, k).(*mat.Dense)
}

func (w *Workspace) tall(d *mat.Dense, k int) *mat.Dense {
	return d.Slice(0, w.m, 0, k).(*mat.Dense)
}

// PredError returns the innovation view of length k
func (w *Workspace) PredError(k int) *mat.VecDense {
	return w.predErr.SliceVec(0, k).(*mat.VecDense)
}

// St returns k x k innovation covariance view
func (w *Workspace) St(k int) *mat.Dense { return w.square(w.st, k) }

// Stm1 returns k x k inverse innovation covariance view
func (w *Workspace) Stm1(k int) *mat.Dense { return w.square(w.stm1, k) }

// Rt returns k x k observation noise view
func (w *Workspace) Rt(k int) *mat.Dense { return w.square(w.rt, k) }

// Eye returns k x k identity view
func (w *Workspace) Eye(k int) *mat.Dense { return w.square(w.eye, k) }

// Ht returns m x k observation Jacobian view
func (w *Workspace) Ht(k int) *mat.Dense { return w.tall(w.ht, k) }

// Kt returns m x k Kalman gain view
func (w *Workspace) Kt(k int) *mat.Dense { return w.tall(w.kt, k) }

// TmpMK returns m x k scratch view
func (w *Workspace) TmpMK(k int) *mat.Dense { return w.tall(w.tmpMK, k) }

// TmpKM returns k x m scratch view
func (w *Workspace) TmpKM(k int) *mat.Dense {
	return w.tmpKM.Slice(0, k, 0, w.m).(*mat.Dense)
}

// TmpMM returns m x m scratch
func (w *Workspace) TmpMM() *mat.Dense { return w.tmpMM }

// VecM returns scratch vector of length m
func (w *Workspace) VecM() *mat.VecDense { return w.vecM }

// Sym returns m x m symmetric scratch
func (w *Workspace) Sym() *mat.SymDense { return w.sym }

// Evec returns m x m eigenvector storage
func (w *Workspace) Evec() *mat.Dense { return w.evec }

// Eval returns eigenvalue storage of length m
func (w *Workspace) Eval() []float64 { return w.eval }

// Eigen returns the eigen decomposition
func (w *Workspace) Eigen() *mat.EigenSym { return &w.eig }

// LU returns the LU decomposition
func (w *Workspace) LU() *mat.LU { return &w.lu }
