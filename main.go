// Command gpu-specter extracts calibrated 1-D spectra from a 2-D
// detector exposure by inverting a PSF model. With no input it runs on
// a synthetic exposure generated from the default Gaussian PSF, which
// is handy for benchmarking and smoke testing.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/lastephey/gpu-specter/internal/comm"
	"github.com/lastephey/gpu-specter/internal/extract"
	"github.com/lastephey/gpu-specter/internal/frameio"
	"github.com/lastephey/gpu-specter/internal/psf"
	"github.com/lastephey/gpu-specter/internal/version"
	"github.com/lastephey/gpu-specter/pkg/wavegrid"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	input := flag.String("i", "", "input exposure FITS (pixel + ivar HDUs); synthetic exposure when empty")
	psfPath := flag.String("p", "", "PSF model FITS; default Gaussian model when empty")
	output := flag.String("o", "frame.spx", "output frame file")
	preview := flag.String("preview", "", "optional TIFF preview of the input exposure")

	specmin := flag.Int("specmin", 0, "first spectrum to extract")
	nspec := flag.Int("nspec", 25, "number of spectra to extract")
	bundlesize := flag.Int("bundlesize", 25, "spectra per bundle")
	nsubbundles := flag.Int("nsubbundles", 5, "extraction patches per bundle")
	nwavestep := flag.Int("nwavestep", 50, "wavelength bins per patch")
	wavelength := flag.String("w", "", "wavelength range as wmin,wmax,dw; PSF bounds when empty")
	solver := flag.String("solver", extract.SolverCPU, "patch solver: cpu or batched")
	workers := flag.Int("workers", 1, "number of parallel worker ranks")
	flag.Parse()

	log.Printf("gpu-specter %s", version.Version)

	model, err := loadModel(*psfPath)
	if err != nil {
		return err
	}

	cfg := extract.DefaultConfig()
	cfg.SpecMin = *specmin
	cfg.NSpec = *nspec
	cfg.BundleSize = *bundlesize
	cfg.NSubBundles = *nsubbundles
	cfg.NWaveStep = *nwavestep
	cfg.Solver = *solver
	if err := fillWavelength(&cfg, *wavelength, model); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	img, err := loadExposure(*input, model, cfg)
	if err != nil {
		return err
	}
	if *preview != "" {
		if err := frameio.WritePreview(*preview, img); err != nil {
			return err
		}
		log.Printf("wrote preview %s", *preview)
	}

	var frame *extract.Frame
	err = comm.Launch(*workers, func(c comm.Comm) error {
		var in *extract.Image
		if c.Rank() == comm.Root {
			in = img
		}
		fr, err := extract.ExtractFrame(in, model, cfg, c)
		if err != nil {
			return err
		}
		if c.Rank() == comm.Root {
			frame = fr
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := frameio.WriteFrame(*output, frame); err != nil {
		return err
	}
	log.Printf("wrote frame %s: %d spectra x %d wavelengths", *output, len(frame.Flux), len(frame.Wave))
	return nil
}

// loadModel returns the PSF from a file, or the default analytic
// Gaussian model when no path is given.
func loadModel(path string) (psf.Model, error) {
	if path == "" {
		return psf.NewGaussModel(psf.DefaultGaussParams())
	}
	return psf.LoadModel(path)
}

// fillWavelength sets the config wavelength range, either parsing
// "wmin,wmax,dw" or deriving the widest extractable range from the PSF
// bounds (shrunk so the padded grid still has model coverage).
func fillWavelength(cfg *extract.Config, spec string, model psf.Model) error {
	if spec != "" {
		parts := strings.Split(spec, ",")
		if len(parts) != 3 {
			return fmt.Errorf("wavelength must be wmin,wmax,dw, got %q", spec)
		}
		vals := make([]float64, 3)
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return fmt.Errorf("wavelength %q: %w", spec, err)
			}
			vals[i] = v
		}
		cfg.WaveMin, cfg.WaveMax, cfg.DW = vals[0], vals[1], vals[2]
		return nil
	}

	wmin, wmax := model.WaveBounds()
	cfg.DW = 0.8
	cfg.WaveMin = wmin + float64(cfg.WavePad)*cfg.DW
	cfg.WaveMax = wmax - float64(cfg.WavePad+cfg.NWaveStep)*cfg.DW
	if cfg.WaveMax <= cfg.WaveMin {
		return fmt.Errorf("psf wavelength range %g-%g too narrow for padding", wmin, wmax)
	}
	return nil
}

// loadExposure reads the input FITS, or renders a flat-spectrum
// synthetic exposure through the model when no input is given.
func loadExposure(path string, model psf.Model, cfg extract.Config) (*extract.Image, error) {
	if path != "" {
		return frameio.ReadImage(path)
	}

	log.Printf("no input exposure, synthesizing one from the PSF model")
	grid, err := wavegrid.Linspace(cfg.WaveMin, cfg.WaveMax, cfg.DW)
	if err != nil {
		return nil, err
	}
	full := grid.Padded(cfg.WavePad, cfg.NWaveStep)
	const flatFlux = 1000.0
	return extract.SynthImage(model, cfg.SpecMin, cfg.NSpec, full,
		func(fiber, bin int) float64 { return flatFlux }, 500, 500, 1.0)
}
