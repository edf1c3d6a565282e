package extract

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/lastephey/gpu-specter/internal/psf"
)

// PatchRequest carries everything one patch solve needs: the exposure,
// the bundle's spot cache, and the patch geometry. Image and Spots are
// read-only shared state.
type PatchRequest struct {
	Patch Patch
	Img   *Image
	Spots *psf.SpotSet
}

// PatchResult holds the solved patch with padding already stripped in
// the wavelength direction: all arrays are [NSpecPerPatch][NWaveStep].
// The trailing NWaveStep-NKeep columns of the final window are support
// only; the assembler discards them.
type PatchResult struct {
	Patch Patch

	Flux [][]float64 // decorrelated flux, photons per bin
	Ivar [][]float64 // flux inverse variance; zero marks dead bins
	Chi2 [][]float64 // reduced chi² of the patch fit

	// Rdiags stores the central band of the resolution matrix per
	// fiber: [NSpecPerPatch][2*NDiag+1][NWaveStep].
	Rdiags [][][]float64
	NDiag  int

	// Degenerate records that some coefficients were zeroed because the
	// normal matrix was rank deficient (masked pixels, off-image spots,
	// or a failed factorization). The run continues regardless.
	Degenerate bool
}

// PatchSolver solves the weighted least-squares system for one patch.
// The host and accelerator-style implementations share this contract
// and agree numerically to solver tolerance, so callers never need to
// know which one is active.
type PatchSolver interface {
	Name() string
	Solve(req *PatchRequest) (*PatchResult, error)
}

// BatchSolver is the optional bulk interface: a solver that can
// pipeline many independent patches (overlapping staging and compute)
// exposes it, and the bundle loop prefers it when present.
type BatchSolver interface {
	SolveBatch(reqs []*PatchRequest) ([]*PatchResult, error)
}

// NewSolver selects a solver implementation from the config selector.
func NewSolver(cfg Config) (PatchSolver, error) {
	switch cfg.Solver {
	case SolverCPU:
		return &CPUSolver{}, nil
	case SolverBatched:
		return NewBatchedSolver(0), nil
	default:
		return nil, fmt.Errorf("unknown solver %q", cfg.Solver)
	}
}

// solveScratch holds per-stream reusable buffers. Patch geometry is
// fixed within a run, so the normal-matrix backing never reallocates
// after the first patch.
type solveScratch struct {
	c     []float64
	b     []float64
	model []float64
}

func (s *solveScratch) ensure(n, npix int) {
	if cap(s.c) < n*n {
		s.c = make([]float64, n*n)
	}
	if cap(s.b) < n {
		s.b = make([]float64, n)
	}
	if cap(s.model) < npix {
		s.model = make([]float64, npix)
	}
	s.c = s.c[:n*n]
	s.b = s.b[:n]
	s.model = s.model[:npix]
}

// solvePadded runs the shared numerical kernel for one padded patch:
//
//  1. form the weighted normal equations (AᵀWA)f = AᵀWy from the spot
//     footprints, never materializing A;
//  2. solve by Cholesky factorization;
//  3. eigendecompose AᵀWA to build the resolution matrix
//     R = diag(1/s)·Q·Λ^{1/2}·Qᵀ with s the row sums of Q·Λ^{1/2}·Qᵀ,
//     so R preserves flux sums; report R·f and ivar = s²;
//  4. compute the reduced chi² of the raw fit.
//
// Rank deficiency degrades to zero flux and zero ivar for the affected
// bins; a patch never fails the run over numerics.
func solvePadded(req *PatchRequest, scratch *solveScratch) (*PatchResult, error) {
	p := req.Patch
	nf := p.NSpecPerPatch
	nwtot := p.NWaveTot()
	n := nf * nwtot
	ndiag := req.Spots.NDiag()

	proj, err := BuildProjection(req.Spots, p.SpecLo(), nf, p.IWave-p.WavePad, nwtot, req.Img)
	if err != nil {
		return nil, err
	}

	if scratch == nil {
		scratch = &solveScratch{}
	}
	scratch.ensure(n, (proj.YHi-proj.YLo)*(proj.XHi-proj.XLo))

	C, bvec, dead := proj.Normal(req.Img, scratch.c, scratch.b)

	res := newPatchResult(p, ndiag)
	for _, d := range dead {
		if d {
			res.Degenerate = true
			break
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(C) {
		// Severely ill conditioned: zero the whole patch rather than
		// propagate a numerical fault. Partial frames beat aborts.
		res.Degenerate = true
		return res, nil
	}
	f := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(f, bvec); err != nil {
		res.Degenerate = true
		return res, nil
	}

	var eig mat.EigenSym
	if !eig.Factorize(C, true) {
		res.Degenerate = true
		return res, nil
	}
	vals := eig.Values(nil)
	var q mat.Dense
	eig.VectorsTo(&q)

	// Q·Λ^{1/2}: scale eigenvector columns by sqrt of the (clamped)
	// eigenvalues, then Q̃ = (Q·Λ^{1/2})·Qᵀ is the symmetric square
	// root of the inverse covariance.
	qs := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		ev := vals[j]
		if ev < 0 {
			ev = 0
		}
		sq := math.Sqrt(ev)
		for i := 0; i < n; i++ {
			qs.Set(i, j, q.At(i, j)*sq)
		}
	}
	qt := mat.NewDense(n, n, nil)
	qt.Mul(qs, q.T())

	// Row sums normalize Q̃ into a flux-conserving resolution matrix.
	s := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			sum += qt.At(i, j)
		}
		s[i] = sum
	}

	// Decorrelated flux fr = R·f computed without materializing R:
	// fr_i = (Q̃·f)_i / s_i.
	qtf := mat.NewVecDense(n, nil)
	qtf.MulVec(qt, f)

	chi2 := proj.Chi2(req.Img, f, dead, scratch.model)
	fillPatchResult(res, qt, qtf, s, dead, chi2)

	return res, nil
}

// fillPatchResult writes decorrelated flux, ivar, chi² and the
// resolution band for every live coefficient of the kept window. A live
// coefficient whose resolution row sum is not positive cannot be
// normalized; its bins stay zeroed and the patch is flagged degenerate
// like any other rank deficiency.
func fillPatchResult(res *PatchResult, qt *mat.Dense, qtf *mat.VecDense,
	s []float64, dead []bool, chi2 float64) {

	p := res.Patch
	nwtot := p.NWaveTot()
	ndiag := res.NDiag
	for i := 0; i < p.NSpecPerPatch; i++ {
		for w := 0; w < p.NWaveStep; w++ {
			a := i*nwtot + p.WavePad + w
			if dead[a] {
				continue
			}
			if s[a] <= 0 {
				res.Degenerate = true
				continue
			}
			res.Flux[i][w] = qtf.AtVec(a) / s[a]
			res.Ivar[i][w] = s[a] * s[a]
			res.Chi2[i][w] = chi2

			// Central band of R restricted to this fiber's block;
			// cross-fiber resolution terms are not reported.
			for d := -ndiag; d <= ndiag; d++ {
				wj := p.WavePad + w + d
				if wj < 0 || wj >= nwtot {
					continue
				}
				res.Rdiags[i][d+ndiag][w] = qt.At(a, i*nwtot+wj) / s[a]
			}
		}
	}
}

// newPatchResult allocates a zeroed result for a patch. Zero flux and
// zero ivar is also the degenerate-patch answer, so a freshly allocated
// result is already the correct graceful-failure output.
func newPatchResult(p Patch, ndiag int) *PatchResult {
	nf := p.NSpecPerPatch
	res := &PatchResult{
		Patch:  p,
		Flux:   make([][]float64, nf),
		Ivar:   make([][]float64, nf),
		Chi2:   make([][]float64, nf),
		Rdiags: make([][][]float64, nf),
		NDiag:  ndiag,
	}
	for i := 0; i < nf; i++ {
		res.Flux[i] = make([]float64, p.NWaveStep)
		res.Ivar[i] = make([]float64, p.NWaveStep)
		res.Chi2[i] = make([]float64, p.NWaveStep)
		res.Rdiags[i] = make([][]float64, 2*ndiag+1)
		for d := range res.Rdiags[i] {
			res.Rdiags[i][d] = make([]float64, p.NWaveStep)
		}
	}
	return res
}
