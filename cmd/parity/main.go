// Command parity compares two extracted frames and reports how closely
// their flux and inverse variance agree, normalized by the combined
// uncertainty. Used to verify that solver backends and worker counts
// do not change results.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/lastephey/gpu-specter/internal/extract"
	"github.com/lastephey/gpu-specter/internal/frameio"
)

func main() {
	pathA := flag.String("a", "", "first frame file")
	pathB := flag.String("b", "", "second frame file")
	flag.Parse()

	if *pathA == "" || *pathB == "" {
		fmt.Println("Usage: parity -a <frame> -b <frame>")
		os.Exit(1)
	}
	if err := run(*pathA, *pathB); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(pathA, pathB string) error {
	a, err := frameio.ReadFrame(pathA)
	if err != nil {
		return err
	}
	b, err := frameio.ReadFrame(pathB)
	if err != nil {
		return err
	}

	if len(a.Flux) != len(b.Flux) || len(a.Wave) != len(b.Wave) {
		return fmt.Errorf("frame shapes differ: %dx%d vs %dx%d",
			len(a.Flux), len(a.Wave), len(b.Flux), len(b.Wave))
	}
	for i, w := range a.Wave {
		if w != b.Wave[i] {
			return fmt.Errorf("wavelength grids differ at bin %d: %g vs %g", i, w, b.Wave[i])
		}
	}

	fmt.Println("(f_a, f_b):")
	fmt.Printf("%10s: %7.2f%%\n", "isclose", 100*fracClose(a.Flux, b.Flux))

	fmt.Println("(f_a - f_b)/sqrt(var_a + var_b):")
	reportThresholds(a, b, fluxDiff)

	fmt.Println("(ivar_a, ivar_b):")
	fmt.Printf("%10s: %7.2f%%\n", "isclose", 100*fracClose(a.Ivar, b.Ivar))

	fmt.Println("(sigma_a - sigma_b)/sqrt(var_a + var_b):")
	reportThresholds(a, b, sigmaDiff)
	return nil
}

// fracClose returns the fraction of cells where the two arrays agree
// within a relative tolerance of 1e-5 and absolute tolerance of 1e-8.
func fracClose(a, b [][]float64) float64 {
	var close, total int
	for i := range a {
		for j := range a[i] {
			total++
			if math.Abs(a[i][j]-b[i][j]) <= 1e-8+1e-5*math.Abs(b[i][j]) {
				close++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(close) / float64(total)
}

// fluxDiff is the flux difference normalized by combined uncertainty;
// NaN where either ivar is zero.
func fluxDiff(a, b *extract.Frame, i, j int) float64 {
	va, vb := a.Ivar[i][j], b.Ivar[i][j]
	if va == 0 || vb == 0 {
		return math.NaN()
	}
	return (a.Flux[i][j] - b.Flux[i][j]) / math.Sqrt(1/va+1/vb)
}

// sigmaDiff is the uncertainty difference normalized the same way.
func sigmaDiff(a, b *extract.Frame, i, j int) float64 {
	va, vb := a.Ivar[i][j], b.Ivar[i][j]
	if va == 0 || vb == 0 {
		return math.NaN()
	}
	return (math.Sqrt(1/va) - math.Sqrt(1/vb)) / math.Sqrt(1/va+1/vb)
}

func reportThresholds(a, b *extract.Frame, diff func(a, b *extract.Frame, i, j int) float64) {
	for t := -5; t <= 0; t++ {
		threshold := math.Pow(10, float64(t))
		var within, total int
		for i := range a.Flux {
			for j := range a.Flux[i] {
				total++
				d := diff(a, b, i, j)
				if !math.IsNaN(d) && math.Abs(d) < threshold {
					within++
				}
			}
		}
		fmt.Printf("%10.0e: %7.2f%%\n", threshold, 100*float64(within)/float64(total))
	}
}
