// Package comm provides the message-passing rank abstraction the
// distributed orchestrator runs on: a coordinator rank owns canonical
// inputs and outputs, worker ranks receive immutable copies and return
// disjoint result slices. Broadcasts and gathers are synchronization
// barriers. The in-process implementation carries messages over
// channels; the interface is deliberately transport-shaped so an RPC
// or MPI-backed implementation can slot in without touching callers.
package comm

import (
	"fmt"
	"sync"
)

// Root is the coordinating rank.
const Root = 0

// Comm is one rank's view of the communicator. All collective calls
// (Bcast, Gather, Barrier) must be made by every rank in the same
// order; a rank blocks until the collective completes. Transport
// faults are fatal to the run, never retried.
type Comm interface {
	// Rank returns this process's identifier, 0..Size()-1.
	Rank() int

	// Size returns the number of participating ranks.
	Size() int

	// Bcast distributes root's value to every rank. The root passes
	// the value to send; other ranks' v is ignored and the received
	// value is returned. Receivers must treat the value as immutable.
	Bcast(root int, v any) (any, error)

	// Gather collects one value per rank at root, ordered by rank.
	// Non-root ranks receive nil.
	Gather(root int, v any) ([]any, error)

	// Barrier blocks until every rank has reached it.
	Barrier() error
}

// Serial is the single-process communicator: every collective is a
// no-op on one rank.
type Serial struct{}

// Rank implements Comm.
func (Serial) Rank() int { return 0 }

// Size implements Comm.
func (Serial) Size() int { return 1 }

// Bcast implements Comm.
func (Serial) Bcast(root int, v any) (any, error) { return v, nil }

// Gather implements Comm.
func (Serial) Gather(root int, v any) ([]any, error) { return []any{v}, nil }

// Barrier implements Comm.
func (Serial) Barrier() error { return nil }

// world is the shared state of an in-process communicator: a dedicated
// point-to-point channel per (sender, receiver) pair, so back-to-back
// collectives cannot interleave messages, plus a cyclic barrier.
type world struct {
	size int
	p2p  [][]chan any

	mu    sync.Mutex
	cond  *sync.Cond
	count int
	epoch int
}

// rankComm is one rank's handle on a world.
type rankComm struct {
	rank int
	w    *world
}

// Launch runs fn on n in-process ranks and waits for all of them.
// The first error any rank returns is the run's error; there is no
// partial-result salvage across ranks.
func Launch(n int, fn func(Comm) error) error {
	if n < 1 {
		return fmt.Errorf("communicator needs at least 1 rank, got %d", n)
	}
	if n == 1 {
		return fn(Serial{})
	}

	w := &world{
		size: n,
		p2p:  make([][]chan any, n),
	}
	w.cond = sync.NewCond(&w.mu)
	for i := range w.p2p {
		w.p2p[i] = make([]chan any, n)
		for j := range w.p2p[i] {
			w.p2p[i][j] = make(chan any, 1)
		}
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	for r := 0; r < n; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			errs[rank] = fn(&rankComm{rank: rank, w: w})
		}(r)
	}
	wg.Wait()

	for r, err := range errs {
		if err != nil {
			return fmt.Errorf("rank %d: %w", r, err)
		}
	}
	return nil
}

// Rank implements Comm.
func (c *rankComm) Rank() int { return c.rank }

// Size implements Comm.
func (c *rankComm) Size() int { return c.w.size }

// Bcast implements Comm.
func (c *rankComm) Bcast(root int, v any) (any, error) {
	if root < 0 || root >= c.w.size {
		return nil, fmt.Errorf("broadcast root %d outside communicator of size %d", root, c.w.size)
	}
	if c.rank == root {
		for r := 0; r < c.w.size; r++ {
			if r != root {
				c.w.p2p[root][r] <- v
			}
		}
		return v, nil
	}
	return <-c.w.p2p[root][c.rank], nil
}

// Gather implements Comm.
func (c *rankComm) Gather(root int, v any) ([]any, error) {
	if root < 0 || root >= c.w.size {
		return nil, fmt.Errorf("gather root %d outside communicator of size %d", root, c.w.size)
	}
	if c.rank != root {
		c.w.p2p[c.rank][root] <- v
		return nil, nil
	}
	out := make([]any, c.w.size)
	out[root] = v
	for r := 0; r < c.w.size; r++ {
		if r != root {
			out[r] = <-c.w.p2p[r][root]
		}
	}
	return out, nil
}

// Barrier implements Comm.
func (c *rankComm) Barrier() error {
	w := c.w
	w.mu.Lock()
	defer w.mu.Unlock()
	epoch := w.epoch
	w.count++
	if w.count == w.size {
		w.count = 0
		w.epoch++
		w.cond.Broadcast()
		return nil
	}
	for epoch == w.epoch {
		w.cond.Wait()
	}
	return nil
}
