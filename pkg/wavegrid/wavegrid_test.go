package wavegrid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinspaceBounds(t *testing.T) {
	g, err := Linspace(6000, 6010, 1.0)
	require.NoError(t, err)
	require.Equal(t, 10, g.N(), "upper bound is exclusive")
	require.Equal(t, 6000.0, g.Wave[0])
	require.Equal(t, 6009.0, g.Wave[9])
	require.NoError(t, g.CheckUniform())
}

func TestLinspaceRejectsBadRanges(t *testing.T) {
	cases := []struct {
		name             string
		wmin, wmax, step float64
	}{
		{"zero step", 6000, 6010, 0},
		{"negative step", 6000, 6010, -1},
		{"empty range", 6010, 6000, 1},
		{"equal bounds", 6000, 6000, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Linspace(tc.wmin, tc.wmax, tc.step)
			require.Error(t, err)
		})
	}
}

func TestPaddedGrid(t *testing.T) {
	g, err := Linspace(6000, 6010, 1.0)
	require.NoError(t, err)

	full := g.Padded(10, 5)
	require.Equal(t, 10+10+10+5, full.N())
	require.Equal(t, 5990.0, full.Wave[0])
	require.Equal(t, 6000.0, full.Wave[10], "requested bins start after the guard")
	require.Equal(t, 6024.0, full.Wave[full.N()-1])
	require.NoError(t, full.CheckUniform())
}

func TestCheckUniformCatchesIrregularStep(t *testing.T) {
	g := Grid{Wave: []float64{1, 2, 3.5, 4}, Step: 1}
	require.Error(t, g.CheckUniform())
}

func TestBinWidths(t *testing.T) {
	g, err := Linspace(6000, 6005, 1.0)
	require.NoError(t, err)
	for _, dw := range g.BinWidths() {
		require.InDelta(t, 1.0, dw, 1e-12)
	}
}
