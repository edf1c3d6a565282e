package extract

import (
	"fmt"
	"log"
	"sort"

	"github.com/lastephey/gpu-specter/internal/comm"
	"github.com/lastephey/gpu-specter/internal/psf"
	"github.com/lastephey/gpu-specter/pkg/wavegrid"
)

// ExtractBundle extracts one bundle of fibers. Every rank of c renders
// the bundle's spot cache (deterministic, so all ranks hold identical
// spots), solves its strided share of the patches, and sends results
// to the coordinating rank, which assembles and returns the bundle.
// Non-root ranks return nil.
//
// Patches within the bundle are mutually independent; the only ordering
// constraint is that the spot cache exists before any solve starts.
func ExtractBundle(img *Image, model psf.Model, full wavegrid.Grid, nwave, bspecmin int,
	cfg Config, solver PatchSolver, c comm.Comm) (*BundleResult, error) {

	timer := NewTimer()

	spots, err := psf.GetSpots(bspecmin, cfg.BundleSize, full.Wave, model)
	if err != nil {
		return nil, fmt.Errorf("bundle %d spot cache: %w", bspecmin, err)
	}
	timer.Split("spots")

	patches := PlanBundlePatches(bspecmin, cfg.BundleSize, cfg.NSubBundles,
		cfg.NWaveStep, cfg.WavePad, nwave)

	// Static stride assignment: rank r takes patches r, r+size, ...
	// No data dependencies between patches, so any disjoint split is
	// valid; stride keeps it deterministic and balanced.
	var reqs []*PatchRequest
	for k := c.Rank(); k < len(patches); k += c.Size() {
		reqs = append(reqs, &PatchRequest{Patch: patches[k], Img: img, Spots: spots})
	}
	timer.Split("plan")

	var mine []*PatchResult
	if bs, ok := solver.(BatchSolver); ok {
		mine, err = bs.SolveBatch(reqs)
		if err != nil {
			return nil, fmt.Errorf("bundle %d: %w", bspecmin, err)
		}
	} else {
		for _, req := range reqs {
			res, err := solver.Solve(req)
			if err != nil {
				return nil, fmt.Errorf("bundle %d patch ispec=%d iwave=%d: %w",
					bspecmin, req.Patch.ISpec, req.Patch.IWave, err)
			}
			mine = append(mine, res)
		}
	}
	for _, res := range mine {
		if res.Degenerate {
			log.Printf("rank %d: degenerate bins in patch ispec=%d iwave=%d (zeroed)",
				c.Rank(), res.Patch.ISpec, res.Patch.IWave)
		}
	}
	timer.Split("solve")

	gathered, err := c.Gather(comm.Root, mine)
	if err != nil {
		return nil, fmt.Errorf("bundle %d gather: %w", bspecmin, err)
	}
	timer.Split("gather")

	var bundle *BundleResult
	var assembleErr error
	if c.Rank() == comm.Root {
		var all []*PatchResult
		for _, g := range gathered {
			all = append(all, g.([]*PatchResult)...)
		}
		// Kept regions are disjoint, so assembly order cannot change the
		// result; sort by identity anyway so logs and failures reproduce.
		sort.Slice(all, func(a, b int) bool {
			if all[a].Patch.ISpec != all[b].Patch.ISpec {
				return all[a].Patch.ISpec < all[b].Patch.ISpec
			}
			return all[a].Patch.IWave < all[b].Patch.IWave
		})
		bundle, assembleErr = AssembleBundle(all, cfg.BundleSize, nwave)
	}

	// Assembly faults happen on the coordinator only, but the verdict
	// must reach every rank: a worker that marched on to the next
	// bundle's collectives would wait forever on a coordinator that
	// already returned. An empty status means the bundle is good.
	status := ""
	if assembleErr != nil {
		status = assembleErr.Error()
	}
	st, err := c.Bcast(comm.Root, status)
	if err != nil {
		return nil, fmt.Errorf("bundle %d status: %w", bspecmin, err)
	}
	if msg := st.(string); msg != "" {
		if c.Rank() == comm.Root {
			return nil, fmt.Errorf("bundle %d assembly: %w", bspecmin, assembleErr)
		}
		return nil, fmt.Errorf("bundle %d aborted by coordinator: %s", bspecmin, msg)
	}

	if c.Rank() != comm.Root {
		return nil, nil
	}
	timer.Split("assemble")
	timer.LogSplits(fmt.Sprintf("bundle %d", bspecmin))

	return bundle, nil
}
