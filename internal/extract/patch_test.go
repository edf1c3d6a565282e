package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{
		SpecMin: 25, NSpec: 50,
		BundleSize: 25, NSubBundles: 5,
		NWaveStep: 50, WavePad: 10,
		WaveMin: 6000, WaveMax: 6100, DW: 0.8,
		Solver: SolverCPU,
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nspec not multiple of bundlesize", func(c *Config) { c.NSpec = 30 }},
		{"bundlesize not multiple of nsubbundles", func(c *Config) { c.NSubBundles = 4 }},
		{"specmin not bundle aligned", func(c *Config) { c.SpecMin = 10 }},
		{"negative specmin", func(c *Config) { c.SpecMin = -25 }},
		{"zero nspec", func(c *Config) { c.NSpec = 0 }},
		{"zero bundlesize", func(c *Config) { c.BundleSize = 0 }},
		{"zero nwavestep", func(c *Config) { c.NWaveStep = 0 }},
		{"zero wavepad", func(c *Config) { c.WavePad = 0 }},
		{"zero step", func(c *Config) { c.DW = 0 }},
		{"empty wavelength range", func(c *Config) { c.WaveMax = c.WaveMin }},
		{"unknown solver", func(c *Config) { c.Solver = "quantum" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestBundleTilingCoversExactly(t *testing.T) {
	cases := []struct {
		name                                               string
		bundlesize, nsubbundles, nwavestep, wavepad, nwave int
	}{
		{"even split", 25, 5, 5, 10, 10},
		{"single subbundle", 25, 1, 50, 10, 200},
		{"partial tail window", 20, 4, 5, 10, 13},
		{"window wider than grid", 10, 2, 50, 10, 7},
		{"unit patches", 6, 6, 1, 3, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			const bspecmin = 50
			patches := PlanBundlePatches(bspecmin, tc.bundlesize, tc.nsubbundles,
				tc.nwavestep, tc.wavepad, tc.nwave)

			// Every (fiber, wavelength) cell must be kept by exactly
			// one patch: no overlap, no gap.
			count := make([][]int, tc.bundlesize)
			for i := range count {
				count[i] = make([]int, tc.nwave)
			}
			for _, p := range patches {
				require.Equal(t, bspecmin, p.BSpecMin)
				require.GreaterOrEqual(t, p.NKeep, 1)
				require.LessOrEqual(t, p.NKeep, p.NWaveStep)
				for i := 0; i < p.NSpecPerPatch; i++ {
					for w := 0; w < p.NKeep; w++ {
						count[p.SpecLo()+i][p.WaveLo()+w]++
					}
				}
			}
			for i := range count {
				for w := range count[i] {
					require.Equal(t, 1, count[i][w], "cell (%d,%d)", i, w)
				}
			}
		})
	}
}

func TestPlanBundlePatchesStableOrder(t *testing.T) {
	a := PlanBundlePatches(0, 25, 5, 5, 10, 13)
	b := PlanBundlePatches(0, 25, 5, 5, 10, 13)
	require.Equal(t, a, b)

	// Fiber-major, then wavelength: the distributed stride assignment
	// depends on this ordering staying put.
	require.Equal(t, 0, a[0].ISpec)
	require.Equal(t, 10, a[0].IWave)
	require.Equal(t, 0, a[1].ISpec)
	require.Equal(t, 15, a[1].IWave)
	require.Equal(t, 5, a[3].ISpec)
}

func TestPartialTailKeep(t *testing.T) {
	// nwave=13 with nwavestep=5 leaves a 3-bin tail.
	patches := PlanBundlePatches(0, 5, 1, 5, 10, 13)
	require.Len(t, patches, 3)
	require.Equal(t, 5, patches[0].NKeep)
	require.Equal(t, 5, patches[1].NKeep)
	require.Equal(t, 3, patches[2].NKeep)
}
