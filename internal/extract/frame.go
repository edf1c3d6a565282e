package extract

import (
	"fmt"
	"log"

	"github.com/lastephey/gpu-specter/internal/comm"
	"github.com/lastephey/gpu-specter/internal/psf"
	"github.com/lastephey/gpu-specter/pkg/wavegrid"
)

// Frame is the finished full-domain extraction: flux, inverse variance,
// reduced chi² and mask over [SpecMin, SpecMin+nspec) x the requested
// grid, plus banded resolution data. Flux is in photons per unit
// wavelength. Owned by the coordinating rank once assembled.
type Frame struct {
	SpecMin int
	Wave    []float64
	NDiag   int

	Flux [][]float64 // [nspec][nwave]
	Ivar [][]float64
	Chi2 [][]float64
	Mask [][]uint8 // 1 where ivar == 0

	Rdiags [][][]float64 // [nspec][2*NDiag+1][nwave]
}

// ExtractFrame runs the whole extraction on communicator c. The root
// rank supplies the exposure and broadcasts it; worker ranks pass a nil
// img and receive the broadcast copy. The PSF model is shared read-only
// state on every rank (models are immutable by contract). The finished
// frame is returned on the root rank; workers return nil.
func ExtractFrame(img *Image, model psf.Model, cfg Config, c comm.Comm) (*Frame, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	solver, err := NewSolver(cfg)
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}

	// Broadcast the exposure from the coordinator. This is also the
	// first synchronization barrier: no rank proceeds until it holds
	// the image.
	bimg, err := c.Bcast(comm.Root, img)
	if err != nil {
		return nil, fmt.Errorf("broadcast image: %w", err)
	}
	img = bimg.(*Image)
	// Every rank checks its broadcast copy. The verdict is deterministic,
	// so a bad exposure aborts all ranks together instead of leaving
	// workers blocked in the bundle collectives behind a root that
	// already returned.
	if err := img.Check(); err != nil {
		return nil, fmt.Errorf("input image: %w", err)
	}

	grid, err := wavegrid.Linspace(cfg.WaveMin, cfg.WaveMax, cfg.DW)
	if err != nil {
		return nil, fmt.Errorf("wavelength grid: %w", err)
	}
	if err := grid.CheckUniform(); err != nil {
		return nil, fmt.Errorf("wavelength grid: %w", err)
	}
	full := grid.Padded(cfg.WavePad, cfg.NWaveStep)
	nwave := grid.N()

	if c.Rank() == comm.Root {
		log.Printf("extracting %d spectra from %d, wavelengths %g-%g step %g (%s solver, %d ranks)",
			cfg.NSpec, cfg.SpecMin, cfg.WaveMin, cfg.WaveMax, cfg.DW, solver.Name(), c.Size())
	}

	// Bundle loop. All ranks cooperate on every bundle (the patch
	// stride inside ExtractBundle splits the work); the gather at the
	// end of each bundle keeps ranks in step.
	var bundles []*BundleResult
	for bspecmin := cfg.SpecMin; bspecmin < cfg.SpecMin+cfg.NSpec; bspecmin += cfg.BundleSize {
		bundle, err := ExtractBundle(img, model, full, nwave, bspecmin, cfg, solver, c)
		if err != nil {
			return nil, err
		}
		if c.Rank() == comm.Root {
			bundles = append(bundles, bundle)
		}
	}

	if err := c.Barrier(); err != nil {
		return nil, fmt.Errorf("final barrier: %w", err)
	}
	if c.Rank() != comm.Root {
		return nil, nil
	}

	return finishFrame(bundles, grid, cfg)
}

// finishFrame stacks bundle results into the frame, converts flux from
// photons per bin to photons per unit wavelength, and derives the mask.
func finishFrame(bundles []*BundleResult, grid wavegrid.Grid, cfg Config) (*Frame, error) {
	nwave := grid.N()
	ndiag := bundles[0].NDiag
	fr := &Frame{
		SpecMin: cfg.SpecMin,
		Wave:    grid.Wave,
		NDiag:   ndiag,
		Flux:    make([][]float64, 0, cfg.NSpec),
		Ivar:    make([][]float64, 0, cfg.NSpec),
		Chi2:    make([][]float64, 0, cfg.NSpec),
		Mask:    make([][]uint8, 0, cfg.NSpec),
		Rdiags:  make([][][]float64, 0, cfg.NSpec),
	}

	dw := grid.BinWidths()
	for _, b := range bundles {
		if b.NDiag != ndiag {
			return nil, fmt.Errorf("bundle %d has ndiag=%d, expected %d", b.BSpecMin, b.NDiag, ndiag)
		}
		for i := 0; i < len(b.Flux); i++ {
			flux := b.Flux[i]
			ivar := b.Ivar[i]
			mask := make([]uint8, nwave)
			for w := 0; w < nwave; w++ {
				flux[w] /= dw[w]
				ivar[w] *= dw[w] * dw[w]
				if ivar[w] == 0 {
					mask[w] = 1
				}
			}
			fr.Flux = append(fr.Flux, flux)
			fr.Ivar = append(fr.Ivar, ivar)
			fr.Chi2 = append(fr.Chi2, b.Chi2[i])
			fr.Mask = append(fr.Mask, mask)
			fr.Rdiags = append(fr.Rdiags, b.Rdiags[i])
		}
	}

	if len(fr.Flux) != cfg.NSpec {
		return nil, fmt.Errorf("assembled %d spectra, expected %d", len(fr.Flux), cfg.NSpec)
	}
	return fr, nil
}
