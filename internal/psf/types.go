// Package psf models the optical point-spread function of a fiber
// spectrograph: how light from one fiber at one wavelength spreads
// across detector pixels. A model renders small kernel images ("spots")
// keyed by (fiber, wavelength); the spot cache batches rendering for a
// whole fiber bundle so every extraction patch drawn from that bundle
// reuses the same spots.
package psf

import (
	"errors"
	"fmt"
)

// ErrModelCoverage is returned when a model is asked for a fiber or
// wavelength outside the range it has data for.
var ErrModelCoverage = errors.New("psf model does not cover requested range")

// Spot is the rendered PSF kernel at one (fiber, wavelength) sample.
// Data is an NY x NX row-major image; (X0, Y0) is the detector pixel of
// Data[0], so Data[i*NX+j] lands on detector pixel (Y0+i, X0+j).
type Spot struct {
	Data   []float64
	NY, NX int
	X0, Y0 int
}

// Model describes a PSF sufficiently to render spots. Implementations
// must be immutable once constructed: Render must be a pure function of
// its arguments so that spot caches are bit-reproducible.
type Model interface {
	// WaveBounds returns the wavelength range the model covers.
	WaveBounds() (wmin, wmax float64)

	// NSpec returns the number of fibers the model covers.
	NSpec() int

	// SpotSize returns the fixed kernel dimensions of rendered spots.
	SpotSize() (ny, nx int)

	// Render produces the spot for one fiber at one wavelength.
	// Returns an error wrapping ErrModelCoverage when out of range.
	Render(fiber int, wave float64) (Spot, error)
}

// SpotSet holds the cached spots for one fiber bundle over a padded
// wavelength grid. Data is indexed [fiber-in-bundle][wave][spot-y][spot-x],
// flattened row-major; corners are stored per (fiber, wave).
type SpotSet struct {
	BSpecMin int // first fiber of the bundle (absolute index)
	NSpec    int // fibers in the bundle
	NWave    int // samples in the padded grid
	NY, NX   int // spot kernel dimensions

	Data    []float64 // NSpec*NWave*NY*NX
	CornerX []int     // NSpec*NWave
	CornerY []int     // NSpec*NWave
}

// Spot returns the kernel pixels for fiber i (bundle-relative) at
// padded-grid index j. The returned slice aliases the cache.
func (s *SpotSet) Spot(i, j int) []float64 {
	k := (i*s.NWave + j) * s.NY * s.NX
	return s.Data[k : k+s.NY*s.NX]
}

// Corner returns the detector corner pixel of spot (i, j).
func (s *SpotSet) Corner(i, j int) (x0, y0 int) {
	k := i*s.NWave + j
	return s.CornerX[k], s.CornerY[k]
}

// NDiag returns the number of resolution-matrix diagonals implied by
// the spot height: spots are 2*NDiag+1 pixels tall, so flux covariance
// is banded with that half-width.
func (s *SpotSet) NDiag() int {
	return (s.NY - 1) / 2
}

// GetSpots renders and caches spots for every (fiber, wavelength) pair
// of one bundle over the padded grid. This is the expensive step; it
// runs once per bundle and its output is shared by all patches drawn
// from that bundle. Pure function of its inputs.
func GetSpots(bspecmin, bundlesize int, fullwave []float64, model Model) (*SpotSet, error) {
	if bspecmin < 0 || bspecmin+bundlesize > model.NSpec() {
		return nil, fmt.Errorf("fibers [%d:%d) outside model range [0:%d): %w",
			bspecmin, bspecmin+bundlesize, model.NSpec(), ErrModelCoverage)
	}
	if len(fullwave) == 0 {
		return nil, fmt.Errorf("empty wavelength grid: %w", ErrModelCoverage)
	}
	wmin, wmax := model.WaveBounds()
	if fullwave[0] < wmin || fullwave[len(fullwave)-1] > wmax {
		return nil, fmt.Errorf("wavelengths [%g:%g] outside model range [%g:%g]: %w",
			fullwave[0], fullwave[len(fullwave)-1], wmin, wmax, ErrModelCoverage)
	}

	ny, nx := model.SpotSize()
	nwave := len(fullwave)
	set := &SpotSet{
		BSpecMin: bspecmin,
		NSpec:    bundlesize,
		NWave:    nwave,
		NY:       ny,
		NX:       nx,
		Data:     make([]float64, bundlesize*nwave*ny*nx),
		CornerX:  make([]int, bundlesize*nwave),
		CornerY:  make([]int, bundlesize*nwave),
	}

	for i := 0; i < bundlesize; i++ {
		for j, w := range fullwave {
			spot, err := model.Render(bspecmin+i, w)
			if err != nil {
				return nil, fmt.Errorf("render fiber %d wave %g: %w", bspecmin+i, w, err)
			}
			if spot.NY != ny || spot.NX != nx {
				return nil, fmt.Errorf("model rendered %dx%d spot, expected %dx%d",
					spot.NY, spot.NX, ny, nx)
			}
			copy(set.Spot(i, j), spot.Data)
			k := i*nwave + j
			set.CornerX[k] = spot.X0
			set.CornerY[k] = spot.Y0
		}
	}
	return set, nil
}
