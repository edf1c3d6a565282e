package extract

import (
	"fmt"

	"github.com/lastephey/gpu-specter/internal/psf"
	"github.com/lastephey/gpu-specter/pkg/wavegrid"
)

// SynthImage renders a noiseless exposure by projecting a known flux
// through the PSF model: every (fiber, wavelength) sample of the padded
// grid contributes flux(fiber, bin) times its spot, clipped to the
// detector. Ivar is uniform. Used by tests and the synthetic CLI mode;
// extracting a SynthImage with the same model must recover the injected
// flux on the interior of the domain.
func SynthImage(model psf.Model, specmin, nspec int, full wavegrid.Grid,
	flux func(fiber, bin int) float64, ny, nx int, ivar float64) (*Image, error) {

	img := NewImage(ny, nx)
	for i := range img.Ivar {
		img.Ivar[i] = ivar
	}

	for fiber := specmin; fiber < specmin+nspec; fiber++ {
		for bin, w := range full.Wave {
			spot, err := model.Render(fiber, w)
			if err != nil {
				return nil, fmt.Errorf("synth fiber %d wave %g: %w", fiber, w, err)
			}
			f := flux(fiber, bin)
			if f == 0 {
				continue
			}
			addSpot(img, spot, f)
		}
	}
	return img, nil
}

// addSpot accumulates amp*spot into the image, clipping to the bounds.
func addSpot(img *Image, spot psf.Spot, amp float64) {
	for i := 0; i < spot.NY; i++ {
		y := spot.Y0 + i
		if y < 0 || y >= img.NY {
			continue
		}
		for j := 0; j < spot.NX; j++ {
			x := spot.X0 + j
			if x < 0 || x >= img.NX {
				continue
			}
			img.Pix[y*img.NX+x] += amp * spot.Data[i*spot.NX+j]
		}
	}
}
