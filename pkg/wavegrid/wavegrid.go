// Package wavegrid provides wavelength grid construction and validation
// for spectral extraction. A grid is a strictly increasing sequence with
// a constant step; extraction works on a padded version of the requested
// grid so every requested bin has full PSF support on both sides.
package wavegrid

import (
	"fmt"
	"math"
)

// UniformTol is the relative tolerance used when checking that adjacent
// grid differences equal the nominal step.
const UniformTol = 1e-8

// Grid is a wavelength grid with constant step.
type Grid struct {
	// Wave holds the wavelength of each bin center, strictly increasing.
	Wave []float64
	// Step is the constant spacing between adjacent bins.
	Step float64
}

// Linspace builds the requested extraction grid covering [wmin, wmax)
// with step dw. The upper bound is exclusive: Linspace(6000, 6010, 1)
// has 10 bins, 6000..6009.
func Linspace(wmin, wmax, dw float64) (Grid, error) {
	if dw <= 0 {
		return Grid{}, fmt.Errorf("wavelength step must be positive, got %g", dw)
	}
	if wmax <= wmin {
		return Grid{}, fmt.Errorf("wavelength range is empty: wmin=%g wmax=%g", wmin, wmax)
	}
	n := int(math.Round((wmax - wmin) / dw))
	if n < 1 {
		return Grid{}, fmt.Errorf("wavelength range %g-%g narrower than step %g", wmin, wmax, dw)
	}
	wave := make([]float64, n)
	for i := range wave {
		wave[i] = wmin + float64(i)*dw
	}
	return Grid{Wave: wave, Step: dw}, nil
}

// N returns the number of bins in the grid.
func (g Grid) N() int { return len(g.Wave) }

// Padded returns the full extraction grid: wavepad guard bins below the
// requested range, the requested bins, and wavepad+nwavestep guard bins
// above. The extra nwavestep trailing bins guarantee coverage for a
// final partial patch window when N() is not a multiple of nwavestep.
func (g Grid) Padded(wavepad, nwavestep int) Grid {
	n := len(g.Wave)
	full := make([]float64, 0, wavepad+n+wavepad+nwavestep)
	w0 := g.Wave[0]
	for i := wavepad; i > 0; i-- {
		full = append(full, w0-float64(i)*g.Step)
	}
	full = append(full, g.Wave...)
	wn := g.Wave[n-1]
	for i := 1; i <= wavepad+nwavestep; i++ {
		full = append(full, wn+float64(i)*g.Step)
	}
	return Grid{Wave: full, Step: g.Step}
}

// CheckUniform verifies that all adjacent differences equal Step within
// a relative tolerance. Grids read back from files or concatenated from
// pieces must pass this before extraction.
func (g Grid) CheckUniform() error {
	for i := 1; i < len(g.Wave); i++ {
		d := g.Wave[i] - g.Wave[i-1]
		if math.Abs(d-g.Step) > UniformTol*math.Max(1, math.Abs(g.Step)) {
			return fmt.Errorf("grid not uniform at bin %d: step %g, expected %g", i, d, g.Step)
		}
	}
	return nil
}

// BinWidths returns the effective width of each bin, computed as the
// centered difference of bin centers (one-sided at the ends). Used to
// convert integrated counts per bin into counts per unit wavelength.
func (g Grid) BinWidths() []float64 {
	n := len(g.Wave)
	dw := make([]float64, n)
	if n == 1 {
		dw[0] = g.Step
		return dw
	}
	dw[0] = g.Wave[1] - g.Wave[0]
	dw[n-1] = g.Wave[n-1] - g.Wave[n-2]
	for i := 1; i < n-1; i++ {
		dw[i] = (g.Wave[i+1] - g.Wave[i-1]) / 2
	}
	return dw
}
