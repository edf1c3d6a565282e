package extract

// Patch is one unit of independent extraction work: a sub-bundle of
// fibers crossed with one wavelength window of the padded grid, plus
// WavePad guard bins on each side that are solved for support and then
// discarded. Identity is (ISpec, IWave); indices are bookkeeping for
// reassembly into the bundle result.
type Patch struct {
	ISpec int // first fiber of the patch (absolute index)
	IWave int // first kept bin, as an index into the padded grid

	BSpecMin      int // first fiber of the owning bundle
	NSpecPerPatch int // fibers in the patch (bundlesize / nsubbundles)
	NWaveStep     int // kept wavelength bins per full window
	WavePad       int // guard bins on each side

	NWave int // requested bins in the whole bundle grid
	NKeep int // bins actually kept: min(NWaveStep, NWave-(IWave-WavePad))
}

// SpecLo returns the patch's first fiber relative to its bundle.
func (p Patch) SpecLo() int { return p.ISpec - p.BSpecMin }

// WaveLo returns the patch's first kept bin relative to the bundle's
// requested grid (padded-grid index minus the leading guard bins).
func (p Patch) WaveLo() int { return p.IWave - p.WavePad }

// NWaveTot returns the padded window width the solver works on.
func (p Patch) NWaveTot() int { return p.NWaveStep + 2*p.WavePad }

// PlanBundlePatches deterministically enumerates the patches covering
// one bundle: sub-bundles stepped by bundlesize/nsubbundles in the
// fiber direction, windows stepped by nwavestep along the padded grid.
// The final window of each sub-bundle keeps only the bins remaining
// when nwave is not a multiple of nwavestep; its guard coverage comes
// from the extra trailing bins of the padded grid. Ordering is stable;
// patches have no data dependencies on each other.
func PlanBundlePatches(bspecmin, bundlesize, nsubbundles, nwavestep, wavepad, nwave int) []Patch {
	nspecPerPatch := bundlesize / nsubbundles
	var patches []Patch
	for ispec := bspecmin; ispec < bspecmin+bundlesize; ispec += nspecPerPatch {
		for iwave := wavepad; iwave < wavepad+nwave; iwave += nwavestep {
			keep := nwave - (iwave - wavepad)
			if keep > nwavestep {
				keep = nwavestep
			}
			patches = append(patches, Patch{
				ISpec:         ispec,
				IWave:         iwave,
				BSpecMin:      bspecmin,
				NSpecPerPatch: nspecPerPatch,
				NWaveStep:     nwavestep,
				WavePad:       wavepad,
				NWave:         nwave,
				NKeep:         keep,
			})
		}
	}
	return patches
}
