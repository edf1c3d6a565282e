// Package extract implements patch-based 2-D spectral extraction: it
// inverts a PSF model over a detector exposure to recover per-fiber
// flux as a function of wavelength. The domain is tiled into small
// overlapping patches so the weighted least-squares system stays
// bounded; patches are solved independently and stitched back into a
// full frame.
package extract

import "fmt"

// Image is a detector exposure: pixel counts and the matching
// inverse-variance weights, both NY x NX row-major. Ivar is zero where
// pixels are masked.
type Image struct {
	NY, NX int
	Pix    []float64
	Ivar   []float64
}

// NewImage allocates a zero-filled image.
func NewImage(ny, nx int) *Image {
	return &Image{
		NY:   ny,
		NX:   nx,
		Pix:  make([]float64, ny*nx),
		Ivar: make([]float64, ny*nx),
	}
}

// Check validates the shape and weight invariants: matching pixel and
// ivar lengths, and no negative weights.
func (im *Image) Check() error {
	if im.NY <= 0 || im.NX <= 0 {
		return fmt.Errorf("image has empty shape %dx%d", im.NY, im.NX)
	}
	if len(im.Pix) != im.NY*im.NX || len(im.Ivar) != im.NY*im.NX {
		return fmt.Errorf("image buffers do not match shape %dx%d: pix=%d ivar=%d",
			im.NY, im.NX, len(im.Pix), len(im.Ivar))
	}
	for i, w := range im.Ivar {
		if w < 0 {
			return fmt.Errorf("negative inverse variance %g at pixel %d", w, i)
		}
	}
	return nil
}

// At returns the pixel value at row y, column x.
func (im *Image) At(y, x int) float64 { return im.Pix[y*im.NX+x] }

// IvarAt returns the inverse variance at row y, column x.
func (im *Image) IvarAt(y, x int) float64 { return im.Ivar[y*im.NX+x] }
