package extract

import "fmt"

// Solver selector values for Config.Solver.
const (
	SolverCPU     = "cpu"
	SolverBatched = "batched"
)

// Config is the full configuration surface of the extraction engine.
// Callers validate it before any work starts; a misconfigured run is
// rejected once, up front, never retried.
type Config struct {
	SpecMin int // first fiber to extract; must be bundle-aligned
	NSpec   int // number of fibers; must be a multiple of BundleSize

	BundleSize  int // fibers per bundle, the spot-cache unit
	NSubBundles int // patches per bundle in the fiber direction

	NWaveStep int // wavelength bins per patch window
	WavePad   int // guard bins on each side of a patch window

	WaveMin float64 // first requested wavelength (inclusive)
	WaveMax float64 // end of requested range (exclusive)
	DW      float64 // wavelength step

	Solver string // SolverCPU or SolverBatched
}

// DefaultConfig returns the standard extraction geometry: 25-fiber
// bundles split into 5-fiber patches, 50-bin wavelength windows with
// 10 guard bins on each side.
func DefaultConfig() Config {
	return Config{
		BundleSize:  25,
		NSubBundles: 5,
		NWaveStep:   50,
		WavePad:     10,
		Solver:      SolverCPU,
	}
}

// Validate checks every alignment and range invariant. Each violation
// names the constraint so the diagnostic stands on its own.
func (c Config) Validate() error {
	if c.BundleSize <= 0 {
		return fmt.Errorf("bundlesize must be positive, got %d", c.BundleSize)
	}
	if c.NSubBundles <= 0 {
		return fmt.Errorf("nsubbundles must be positive, got %d", c.NSubBundles)
	}
	if c.BundleSize%c.NSubBundles != 0 {
		return fmt.Errorf("bundlesize %% nsubbundles must be 0: %d %% %d = %d",
			c.BundleSize, c.NSubBundles, c.BundleSize%c.NSubBundles)
	}
	if c.NSpec <= 0 {
		return fmt.Errorf("nspec must be positive, got %d", c.NSpec)
	}
	if c.NSpec%c.BundleSize != 0 {
		return fmt.Errorf("nspec %% bundlesize must be 0: %d %% %d = %d",
			c.NSpec, c.BundleSize, c.NSpec%c.BundleSize)
	}
	if c.SpecMin < 0 {
		return fmt.Errorf("specmin must be non-negative, got %d", c.SpecMin)
	}
	if c.SpecMin%c.BundleSize != 0 {
		return fmt.Errorf("specmin %% bundlesize must be 0: %d %% %d = %d",
			c.SpecMin, c.BundleSize, c.SpecMin%c.BundleSize)
	}
	if c.NWaveStep <= 0 {
		return fmt.Errorf("nwavestep must be positive, got %d", c.NWaveStep)
	}
	if c.WavePad <= 0 {
		return fmt.Errorf("wavepad must be positive, got %d", c.WavePad)
	}
	if c.DW <= 0 {
		return fmt.Errorf("wavelength step must be positive, got %g", c.DW)
	}
	if c.WaveMax <= c.WaveMin {
		return fmt.Errorf("wavelength range is empty: wmin=%g wmax=%g", c.WaveMin, c.WaveMax)
	}
	switch c.Solver {
	case SolverCPU, SolverBatched:
	default:
		return fmt.Errorf("unknown solver %q (want %q or %q)", c.Solver, SolverCPU, SolverBatched)
	}
	return nil
}
