package extract

import (
	"errors"
	"fmt"
)

// ErrOverlap reports two patches writing the same output cell. The
// tiling guarantees disjoint kept regions, so an overlap is a scheduler
// defect, not a recoverable condition.
var ErrOverlap = errors.New("patch results overlap")

// ErrGap reports output cells no patch covered, which means patch
// results went missing between solve and assembly.
var ErrGap = errors.New("patch results leave gaps")

// BundleResult is one bundle's assembled output over the requested
// wavelength grid: [bundlesize][nwave] flux, ivar and chi², plus the
// banded resolution data [bundlesize][2*NDiag+1][nwave].
type BundleResult struct {
	BSpecMin int
	NDiag    int

	Flux   [][]float64
	Ivar   [][]float64
	Chi2   [][]float64
	Rdiags [][][]float64
}

// AssembleBundle strips the guard columns from each patch result and
// writes the kept block into the bundle arrays at the offset implied by
// the patch identity. Every output cell must be written exactly once:
// a double write fails with ErrOverlap, a missing patch with ErrGap.
func AssembleBundle(results []*PatchResult, bundlesize, nwave int) (*BundleResult, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("no patch results to assemble")
	}
	ndiag := results[0].NDiag
	bspecmin := results[0].Patch.BSpecMin

	out := &BundleResult{
		BSpecMin: bspecmin,
		NDiag:    ndiag,
		Flux:     make([][]float64, bundlesize),
		Ivar:     make([][]float64, bundlesize),
		Chi2:     make([][]float64, bundlesize),
		Rdiags:   make([][][]float64, bundlesize),
	}
	written := make([][]bool, bundlesize)
	for i := 0; i < bundlesize; i++ {
		out.Flux[i] = make([]float64, nwave)
		out.Ivar[i] = make([]float64, nwave)
		out.Chi2[i] = make([]float64, nwave)
		out.Rdiags[i] = make([][]float64, 2*ndiag+1)
		for d := range out.Rdiags[i] {
			out.Rdiags[i][d] = make([]float64, nwave)
		}
		written[i] = make([]bool, nwave)
	}

	for _, res := range results {
		p := res.Patch
		if p.BSpecMin != bspecmin {
			return nil, fmt.Errorf("patch ispec=%d belongs to bundle %d, assembling bundle %d",
				p.ISpec, p.BSpecMin, bspecmin)
		}
		if res.NDiag != ndiag {
			return nil, fmt.Errorf("patch ispec=%d iwave=%d has ndiag=%d, expected %d",
				p.ISpec, p.IWave, res.NDiag, ndiag)
		}
		specLo := p.SpecLo()
		waveLo := p.WaveLo()
		for i := 0; i < p.NSpecPerPatch; i++ {
			for w := 0; w < p.NKeep; w++ {
				if written[specLo+i][waveLo+w] {
					return nil, fmt.Errorf("cell (%d,%d) written twice, second by patch ispec=%d iwave=%d: %w",
						specLo+i, waveLo+w, p.ISpec, p.IWave, ErrOverlap)
				}
				written[specLo+i][waveLo+w] = true
				out.Flux[specLo+i][waveLo+w] = res.Flux[i][w]
				out.Ivar[specLo+i][waveLo+w] = res.Ivar[i][w]
				out.Chi2[specLo+i][waveLo+w] = res.Chi2[i][w]
				for d := 0; d <= 2*ndiag; d++ {
					out.Rdiags[i+specLo][d][waveLo+w] = res.Rdiags[i][d][w]
				}
			}
		}
	}

	for i := 0; i < bundlesize; i++ {
		for w := 0; w < nwave; w++ {
			if !written[i][w] {
				return nil, fmt.Errorf("cell (%d,%d) never written: %w", i, w, ErrGap)
			}
		}
	}
	return out, nil
}
