package psf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// GaussParams configures an analytic Gaussian PSF model with straight
// fiber traces. Each fiber images to a column on the detector; the
// wavelength direction runs along detector rows.
type GaussParams struct {
	NSpec   int     // number of fibers
	WaveMin float64 // wavelength at the blue end of the traces
	WaveMax float64 // wavelength at the red end of the traces

	HalfSize int     // spots are (2*HalfSize+1) square
	Sigma    float64 // Gaussian width in pixels

	TraceX0    float64 // x position of fiber 0 at WaveMin
	FiberPitch float64 // x spacing between adjacent fibers
	TraceTilt  float64 // dx per unit wavelength (trace slant)
	TraceY0    float64 // y position at WaveMin
	Dispersion float64 // dy per unit wavelength
}

// DefaultGaussParams returns a 25-fiber model laid out for a 500x500
// detector: traces 18 px apart, 8 px per wavelength unit of dispersion,
// covering wavelengths 5980-6040.
func DefaultGaussParams() GaussParams {
	return GaussParams{
		NSpec:   25,
		WaveMin: 5980.0,
		WaveMax: 6040.0,

		HalfSize: 5,
		Sigma:    1.25,

		TraceX0:    30.0,
		FiberPitch: 18.0,
		TraceTilt:  0.0,
		TraceY0:    10.0,
		Dispersion: 8.0,
	}
}

// GaussModel is an analytic Gaussian PSF. It renders spots by sampling
// a symmetric 2-D Gaussian at pixel centers and normalizing the kernel
// sum to one, so integrated flux is conserved exactly.
type GaussModel struct {
	p GaussParams
}

// NewGaussModel validates params and builds the model.
func NewGaussModel(p GaussParams) (*GaussModel, error) {
	if p.NSpec <= 0 {
		return nil, fmt.Errorf("gauss psf: nspec must be positive, got %d", p.NSpec)
	}
	if p.WaveMax <= p.WaveMin {
		return nil, fmt.Errorf("gauss psf: empty wavelength range %g-%g", p.WaveMin, p.WaveMax)
	}
	if p.HalfSize < 1 {
		return nil, fmt.Errorf("gauss psf: half size must be >= 1, got %d", p.HalfSize)
	}
	if p.Sigma <= 0 {
		return nil, fmt.Errorf("gauss psf: sigma must be positive, got %g", p.Sigma)
	}
	return &GaussModel{p: p}, nil
}

// WaveBounds implements Model.
func (m *GaussModel) WaveBounds() (float64, float64) { return m.p.WaveMin, m.p.WaveMax }

// NSpec implements Model.
func (m *GaussModel) NSpec() int { return m.p.NSpec }

// SpotSize implements Model.
func (m *GaussModel) SpotSize() (int, int) {
	n := 2*m.p.HalfSize + 1
	return n, n
}

// TraceCenter returns the sub-pixel detector position of a fiber at a
// wavelength. Exposed for synthetic-image generation.
func (m *GaussModel) TraceCenter(fiber int, wave float64) (xc, yc float64) {
	dw := wave - m.p.WaveMin
	xc = m.p.TraceX0 + m.p.FiberPitch*float64(fiber) + m.p.TraceTilt*dw
	yc = m.p.TraceY0 + m.p.Dispersion*dw
	return xc, yc
}

// Render implements Model.
func (m *GaussModel) Render(fiber int, wave float64) (Spot, error) {
	if fiber < 0 || fiber >= m.p.NSpec {
		return Spot{}, fmt.Errorf("fiber %d outside [0:%d): %w", fiber, m.p.NSpec, ErrModelCoverage)
	}
	if wave < m.p.WaveMin || wave > m.p.WaveMax {
		return Spot{}, fmt.Errorf("wavelength %g outside [%g:%g]: %w",
			wave, m.p.WaveMin, m.p.WaveMax, ErrModelCoverage)
	}

	xc, yc := m.TraceCenter(fiber, wave)
	h := m.p.HalfSize
	n := 2*h + 1
	x0 := int(math.Round(xc)) - h
	y0 := int(math.Round(yc)) - h

	data := make([]float64, n*n)
	inv2s2 := 1.0 / (2 * m.p.Sigma * m.p.Sigma)
	for i := 0; i < n; i++ {
		dy := float64(y0+i) - yc
		for j := 0; j < n; j++ {
			dx := float64(x0+j) - xc
			data[i*n+j] = math.Exp(-(dx*dx + dy*dy) * inv2s2)
		}
	}
	floats.Scale(1.0/floats.Sum(data), data)

	return Spot{Data: data, NY: n, NX: n, X0: x0, Y0: y0}, nil
}
