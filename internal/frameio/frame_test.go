package frameio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lastephey/gpu-specter/internal/extract"
)

func sampleFrame() *extract.Frame {
	const nspec, nwave, ndiag = 2, 3, 1
	fr := &extract.Frame{
		SpecMin: 25,
		Wave:    []float64{6000, 6001, 6002},
		NDiag:   ndiag,
		Flux:    [][]float64{{1, 2, 3}, {4, 5, 6}},
		Ivar:    [][]float64{{0.1, 0.2, 0}, {0.4, 0.5, 0.6}},
		Chi2:    [][]float64{{1.1, 1.1, 1.1}, {0.9, 0.9, 0.9}},
		Mask:    [][]uint8{{0, 0, 1}, {0, 0, 0}},
	}
	fr.Rdiags = make([][][]float64, nspec)
	for i := range fr.Rdiags {
		fr.Rdiags[i] = make([][]float64, 2*ndiag+1)
		for d := range fr.Rdiags[i] {
			row := make([]float64, nwave)
			for w := range row {
				row[w] = float64(i*100 + d*10 + w)
			}
			fr.Rdiags[i][d] = row
		}
	}
	return fr
}

func TestFrameRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.spx")
	want := sampleFrame()

	require.NoError(t, WriteFrame(path, want))
	got, err := ReadFrame(path)
	require.NoError(t, err)

	require.Equal(t, want, got)
}

func TestReadFrameRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.spx")
	require.NoError(t, os.WriteFile(path, []byte("NOPE....junk"), 0o644))

	_, err := ReadFrame(path)
	require.ErrorContains(t, err, "magic")
}

func TestWritePreview(t *testing.T) {
	img := extract.NewImage(8, 8)
	for i := range img.Pix {
		img.Pix[i] = float64(i)
		img.Ivar[i] = 1
	}
	img.Ivar[0] = 0 // masked pixel renders black

	path := filepath.Join(t.TempDir(), "preview.tiff")
	require.NoError(t, WritePreview(path, img))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}
