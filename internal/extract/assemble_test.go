package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// dummyResults builds zero-filled results for every planned patch of a
// small bundle.
func dummyResults(t *testing.T, bundlesize, nsubbundles, nwavestep, wavepad, nwave int) []*PatchResult {
	t.Helper()
	patches := PlanBundlePatches(0, bundlesize, nsubbundles, nwavestep, wavepad, nwave)
	results := make([]*PatchResult, len(patches))
	for i, p := range patches {
		results[i] = newPatchResult(p, 2)
	}
	return results
}

func TestAssembleBundleCompletes(t *testing.T) {
	results := dummyResults(t, 4, 2, 3, 2, 7)
	bundle, err := AssembleBundle(results, 4, 7)
	require.NoError(t, err)
	require.Len(t, bundle.Flux, 4)
	require.Len(t, bundle.Flux[0], 7)
	require.Len(t, bundle.Rdiags[0], 2*2+1)
}

func TestAssembleBundleRejectsOverlap(t *testing.T) {
	results := dummyResults(t, 4, 2, 3, 2, 7)
	// Duplicate a patch: its kept cells are now written twice.
	results = append(results, results[0])
	_, err := AssembleBundle(results, 4, 7)
	require.ErrorIs(t, err, ErrOverlap)
}

func TestAssembleBundleRejectsGap(t *testing.T) {
	results := dummyResults(t, 4, 2, 3, 2, 7)
	_, err := AssembleBundle(results[:len(results)-1], 4, 7)
	require.ErrorIs(t, err, ErrGap)
}

func TestAssembleBundleRejectsForeignPatch(t *testing.T) {
	results := dummyResults(t, 4, 2, 3, 2, 7)
	results[0].Patch.BSpecMin = 4
	results[0].Patch.ISpec = 4
	_, err := AssembleBundle(results, 4, 7)
	require.Error(t, err)
}
