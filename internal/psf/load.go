package psf

import (
	"fmt"
	"os"

	"github.com/siravan/fits"
)

// LoadModel reads a PSF model from a FITS file. The primary header
// carries the model parameters as scalar keys:
//
//	PSFTYPE = 'GAUSS2D'
//	NSPEC, WAVEMIN, WAVEMAX, HSIZE, SIGMA
//	XTRACE0, FPITCH, XTILT, YTRACE0, WDISP
//
// Only the analytic Gaussian model type is understood; other PSFTYPE
// values are rejected so callers get a clear diagnostic rather than a
// silently wrong extraction.
func LoadModel(path string) (Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open psf: %w", err)
	}
	defer f.Close()

	units, err := fits.Open(f)
	if err != nil {
		return nil, fmt.Errorf("parse psf %s: %w", path, err)
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("psf %s: no HDUs", path)
	}
	keys := units[0].Keys

	psftype, _ := keys["PSFTYPE"].(string)
	if psftype != "GAUSS2D" {
		return nil, fmt.Errorf("psf %s: unsupported PSFTYPE %q", path, psftype)
	}

	p := GaussParams{}
	var ferr error
	getf := func(name string) float64 {
		switch v := keys[name].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		default:
			if ferr == nil {
				ferr = fmt.Errorf("psf %s: missing or non-numeric key %s", path, name)
			}
			return 0
		}
	}
	p.NSpec = int(getf("NSPEC"))
	p.WaveMin = getf("WAVEMIN")
	p.WaveMax = getf("WAVEMAX")
	p.HalfSize = int(getf("HSIZE"))
	p.Sigma = getf("SIGMA")
	p.TraceX0 = getf("XTRACE0")
	p.FiberPitch = getf("FPITCH")
	p.TraceTilt = getf("XTILT")
	p.TraceY0 = getf("YTRACE0")
	p.Dispersion = getf("WDISP")
	if ferr != nil {
		return nil, ferr
	}

	return NewGaussModel(p)
}
