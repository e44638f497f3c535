package ekf

import (
	ssm "github.com/milosgajdos/go-ssm"
	"github.com/milosgajdos/go-ssm/matrix"
	"github.com/milosgajdos/go-ssm/state"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Stabilize brings the square covariance matrix c back to being symmetric and
// positive semi-definite in case numerical errors made it lose these properties.
// Off-diagonal pairs are averaged, then negative eigenvalues are clamped to zero
// and c is rebuilt from its eigenvectors. The rebuild is skipped when no
// eigenvalue is negative. c is m x m where m is the workspace state dimension.
// On failure c holds the best estimate computed so far and ErrKalman is returned.
func Stabilize(c *mat.Dense, ws *state.Workspace, log *zap.Logger) ssm.Status {
	var m int
	sym := ws.Sym()

	status := guard(func() {
		m, _ = c.Dims()
		matrix.Symmetrize(c)
		for i := 0; i < m; i++ {
			for j := i; j < m; j++ {
				sym.SetSym(i, j, c.At(i, j))
			}
		}
	})
	if status.Failed() {
		return status
	}

	eig := ws.Eigen()
	if ok := eig.Factorize(sym, true); !ok {
		log.Warn("covariance eigen decomposition failed")
		return ssm.ErrKalman
	}

	vals := eig.Values(ws.Eval())
	clamped := 0
	for i := range vals {
		if vals[i] < 0.0 {
			vals[i] = 0.0
			clamped++
		}
	}

	if clamped == 0 {
		return ssm.Success
	}

	log.Debug("negative covariance eigenvalues clamped", zap.Int("count", clamped))

	return guard(func() {
		evec := ws.Evec()
		eig.VectorsTo(evec)

		// vd = V * diag(vals)
		vd := ws.TmpMM()
		vd.Copy(evec)
		for i := 0; i < m; i++ {
			for j := 0; j < m; j++ {
				vd.Set(i, j, vd.At(i, j)*vals[j])
			}
		}

		// c = V * diag(vals) * V'
		c.Mul(vd, evec.T())
		matrix.Symmetrize(c)
	})
}
