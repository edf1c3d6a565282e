package frameio

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	"golang.org/x/image/tiff"

	"github.com/lastephey/gpu-specter/internal/extract"
)

// WritePreview renders the exposure as a grayscale TIFF with an asinh
// stretch, for quick visual inspection of synthetic or real inputs.
// Masked pixels (ivar == 0) render black.
func WritePreview(path string, img *extract.Image) error {
	var lo, hi float64
	lo = math.Inf(1)
	hi = math.Inf(-1)
	for i, v := range img.Pix {
		if img.Ivar[i] == 0 {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if !(lo < hi) {
		lo, hi = 0, 1
	}

	// asinh compresses the bright trace cores without crushing the
	// faint inter-fiber background.
	scale := func(v float64) float64 {
		return math.Asinh((v - lo) / (hi - lo) * 10)
	}
	smax := scale(hi)

	out := image.NewGray16(image.Rect(0, 0, img.NX, img.NY))
	for y := 0; y < img.NY; y++ {
		for x := 0; x < img.NX; x++ {
			if img.Ivar[y*img.NX+x] == 0 {
				continue
			}
			v := scale(img.Pix[y*img.NX+x]) / smax
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
			out.SetGray16(x, y, color.Gray16{Y: uint16(math.Round(v * 65535))})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	defer f.Close()
	if err := tiff.Encode(f, out, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return fmt.Errorf("encode preview %s: %w", path, err)
	}
	return nil
}
