package extract

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/lastephey/gpu-specter/internal/psf"
	"github.com/lastephey/gpu-specter/pkg/wavegrid"
)

// solverScenario bundles the shared fixtures: the default 25-fiber
// Gaussian model, a flat-spectrum synthetic exposure, and the spot
// cache plus patch plan for bundle 0.
type solverScenario struct {
	model   *psf.GaussModel
	img     *Image
	spots   *psf.SpotSet
	patches []Patch
}

const injectedFlux = 1000.0

func newSolverScenario(t *testing.T) *solverScenario {
	t.Helper()
	model, err := psf.NewGaussModel(psf.DefaultGaussParams())
	require.NoError(t, err)

	grid, err := wavegrid.Linspace(6000, 6010, 1.0)
	require.NoError(t, err)
	full := grid.Padded(10, 5)

	img, err := SynthImage(model, 0, 25, full,
		func(fiber, bin int) float64 { return injectedFlux }, 500, 500, 1.0)
	require.NoError(t, err)

	spots, err := psf.GetSpots(0, 25, full.Wave, model)
	require.NoError(t, err)

	patches := PlanBundlePatches(0, 25, 5, 5, 10, grid.N())
	return &solverScenario{model: model, img: img, spots: spots, patches: patches}
}

func TestProjectionDeterministic(t *testing.T) {
	s := newSolverScenario(t)
	p := s.patches[0]

	build := func() ([]float64, []float64) {
		proj, err := BuildProjection(s.spots, p.SpecLo(), p.NSpecPerPatch,
			p.IWave-p.WavePad, p.NWaveTot(), s.img)
		require.NoError(t, err)
		C, b, _ := proj.Normal(s.img, nil, nil)
		return C.RawSymmetric().Data, b.RawVector().Data
	}

	c1, b1 := build()
	c2, b2 := build()
	require.Equal(t, c1, c2, "normal matrix must be bit-identical across builds")
	require.Equal(t, b1, b2)
}

func TestCPUSolverRecoversFlatSpectrum(t *testing.T) {
	s := newSolverScenario(t)
	solver := &CPUSolver{}

	for _, p := range s.patches {
		res, err := solver.Solve(&PatchRequest{Patch: p, Img: s.img, Spots: s.spots})
		require.NoError(t, err)
		require.False(t, res.Degenerate)
		for i := 0; i < p.NSpecPerPatch; i++ {
			for w := 0; w < p.NKeep; w++ {
				require.InEpsilon(t, injectedFlux, res.Flux[i][w], 0.01,
					"patch ispec=%d iwave=%d fiber %d bin %d", p.ISpec, p.IWave, i, w)
				require.Greater(t, res.Ivar[i][w], 0.0)
			}
		}
	}
}

func TestSolverBackendsAgree(t *testing.T) {
	s := newSolverScenario(t)
	cpu := &CPUSolver{}
	batched := NewBatchedSolver(3)

	reqs := make([]*PatchRequest, len(s.patches))
	for k, p := range s.patches {
		reqs[k] = &PatchRequest{Patch: p, Img: s.img, Spots: s.spots}
	}
	batchRes, err := batched.SolveBatch(reqs)
	require.NoError(t, err)

	for k, req := range reqs {
		cpuRes, err := cpu.Solve(req)
		require.NoError(t, err)
		for i := range cpuRes.Flux {
			for w := range cpuRes.Flux[i] {
				requireClose(t, cpuRes.Flux[i][w], batchRes[k].Flux[i][w])
				requireClose(t, cpuRes.Ivar[i][w], batchRes[k].Ivar[i][w])
			}
		}
	}
}

// requireClose asserts agreement within the cross-backend solver
// tolerance of 1e-6 relative.
func requireClose(t *testing.T, a, b float64) {
	t.Helper()
	require.InDelta(t, a, b, 1e-6*math.Max(1, math.Abs(a)))
}

func TestAllMaskedPatchDegradesToZero(t *testing.T) {
	s := newSolverScenario(t)
	for i := range s.img.Ivar {
		s.img.Ivar[i] = 0
	}

	solver := &CPUSolver{}
	res, err := solver.Solve(&PatchRequest{Patch: s.patches[0], Img: s.img, Spots: s.spots})
	require.NoError(t, err, "numerical degeneracy must not raise a fault")
	require.True(t, res.Degenerate)
	for i := range res.Flux {
		for w := range res.Flux[i] {
			require.Zero(t, res.Flux[i][w])
			require.Zero(t, res.Ivar[i][w])
		}
	}
}

func TestCollapsedResolutionRowFlagsDegenerate(t *testing.T) {
	// Two live coefficients, one wavelength bin each, no padding. The
	// second coefficient's resolution row sums to a negative value, so
	// it cannot be normalized: its bins must stay zeroed and the patch
	// must be reported degenerate, not silently skipped.
	p := Patch{NSpecPerPatch: 2, NWaveStep: 1, NWave: 1, NKeep: 1}
	res := newPatchResult(p, 0)

	qt := mat.NewDense(2, 2, []float64{2, 0, 0, -1})
	qtf := mat.NewVecDense(2, []float64{6, -4})
	fillPatchResult(res, qt, qtf, []float64{2, -1}, []bool{false, false}, 1.5)

	require.True(t, res.Degenerate)
	require.Equal(t, 3.0, res.Flux[0][0])
	require.Equal(t, 4.0, res.Ivar[0][0])
	require.Equal(t, 1.5, res.Chi2[0][0])
	require.Zero(t, res.Flux[1][0])
	require.Zero(t, res.Ivar[1][0])
}

func TestMaskedColumnGetsZeroIvar(t *testing.T) {
	s := newSolverScenario(t)
	p := s.patches[0]

	// Mask every pixel a mid-patch wavelength bin's spot touches, for
	// the first fiber of the patch. That coefficient must come back
	// dead while its neighbors stay solved.
	const fiber, bin = 0, 12 // padded-window index, inside the kept region
	x0, y0 := s.spots.Corner(fiber, p.IWave-p.WavePad+bin)
	for dy := 0; dy < s.spots.NY; dy++ {
		for dx := 0; dx < s.spots.NX; dx++ {
			s.img.Ivar[(y0+dy)*s.img.NX+x0+dx] = 0
		}
	}

	solver := &CPUSolver{}
	res, err := solver.Solve(&PatchRequest{Patch: p, Img: s.img, Spots: s.spots})
	require.NoError(t, err)
	require.True(t, res.Degenerate)

	w := bin - p.WavePad
	require.Zero(t, res.Ivar[fiber][w], "masked bin must be observable via zero ivar")
	require.Greater(t, res.Ivar[4][w], 0.0, "other fibers keep their solution")
}
