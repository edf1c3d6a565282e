// Package frameio holds the thin I/O collaborators around the
// extraction core: FITS exposure input, frame output, and preview
// rendering. The core itself only ever sees in-memory arrays.
package frameio

import (
	"fmt"
	"os"

	"github.com/siravan/fits"

	"github.com/lastephey/gpu-specter/internal/extract"
)

// ReadImage loads a detector exposure from a FITS file: pixel counts
// from the first image HDU, the inverse-variance map from the second.
// Shapes must match; negative weights are rejected.
func ReadImage(path string) (*extract.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	units, err := fits.Open(f)
	if err != nil {
		return nil, fmt.Errorf("parse image %s: %w", path, err)
	}

	var hdus []*fits.Unit
	for _, u := range units {
		if u.HasImage() && len(u.Naxis) == 2 {
			hdus = append(hdus, u)
		}
	}
	if len(hdus) < 2 {
		return nil, fmt.Errorf("image %s: need pixel and ivar HDUs, found %d 2-D image HDUs",
			path, len(hdus))
	}
	pix, ivar := hdus[0], hdus[1]
	if pix.Naxis[0] != ivar.Naxis[0] || pix.Naxis[1] != ivar.Naxis[1] {
		return nil, fmt.Errorf("image %s: pixel HDU is %dx%d but ivar HDU is %dx%d",
			path, pix.Naxis[1], pix.Naxis[0], ivar.Naxis[1], ivar.Naxis[0])
	}

	nx, ny := pix.Naxis[0], pix.Naxis[1]
	img := extract.NewImage(ny, nx)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			img.Pix[y*nx+x] = pix.FloatAt(x, y)
			img.Ivar[y*nx+x] = ivar.FloatAt(x, y)
		}
	}
	if err := img.Check(); err != nil {
		return nil, fmt.Errorf("image %s: %w", path, err)
	}
	return img, nil
}
