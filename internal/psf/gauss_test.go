package psf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testModel(t *testing.T) *GaussModel {
	t.Helper()
	m, err := NewGaussModel(DefaultGaussParams())
	require.NoError(t, err)
	return m
}

func TestRenderNormalization(t *testing.T) {
	m := testModel(t)
	spot, err := m.Render(3, 6001.7)
	require.NoError(t, err)

	var sum float64
	for _, v := range spot.Data {
		sum += v
	}
	require.InDelta(t, 1.0, sum, 1e-12, "kernel sum must be one so flux is conserved")

	ny, nx := m.SpotSize()
	require.Equal(t, ny*nx, len(spot.Data))
}

func TestRenderCoverageErrors(t *testing.T) {
	m := testModel(t)

	_, err := m.Render(-1, 6000)
	require.ErrorIs(t, err, ErrModelCoverage)

	_, err = m.Render(m.NSpec(), 6000)
	require.ErrorIs(t, err, ErrModelCoverage)

	_, err = m.Render(0, 5000)
	require.ErrorIs(t, err, ErrModelCoverage)
}

func TestGetSpotsCoverageErrors(t *testing.T) {
	m := testModel(t)
	wave := []float64{6000, 6001, 6002}

	_, err := GetSpots(0, m.NSpec()+25, wave, m)
	require.ErrorIs(t, err, ErrModelCoverage)

	_, err = GetSpots(0, 25, []float64{5900, 5901}, m)
	require.ErrorIs(t, err, ErrModelCoverage)

	// An empty grid is a coverage error too, not a panic.
	_, err = GetSpots(0, 25, nil, m)
	require.ErrorIs(t, err, ErrModelCoverage)
}

func TestGetSpotsDeterministic(t *testing.T) {
	m := testModel(t)
	wave := make([]float64, 20)
	for i := range wave {
		wave[i] = 6000 + 0.5*float64(i)
	}

	a, err := GetSpots(0, 25, wave, m)
	require.NoError(t, err)
	b, err := GetSpots(0, 25, wave, m)
	require.NoError(t, err)

	require.Equal(t, a.Data, b.Data, "spot cache must be bit-reproducible")
	require.Equal(t, a.CornerX, b.CornerX)
	require.Equal(t, a.CornerY, b.CornerY)
}

func TestSpotSetIndexing(t *testing.T) {
	m := testModel(t)
	wave := []float64{6000, 6004}
	set, err := GetSpots(0, 2, wave, m)
	require.NoError(t, err)

	require.Equal(t, 5, set.NDiag(), "11-pixel spots imply 5 resolution diagonals")

	// Corners must track the traces: fiber 1 sits one pitch to the
	// right of fiber 0, and the redder wavelength lands further down.
	x00, y00 := set.Corner(0, 0)
	x10, _ := set.Corner(1, 0)
	_, y01 := set.Corner(0, 1)
	require.Greater(t, x10, x00)
	require.Greater(t, y01, y00)

	spot, err := m.Render(1, 6004)
	require.NoError(t, err)
	require.Equal(t, spot.Data, set.Spot(1, 1), "cache holds exactly what Render produces")
}
