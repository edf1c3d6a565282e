package comm

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerialCollectives(t *testing.T) {
	var c Comm = Serial{}
	require.Equal(t, 0, c.Rank())
	require.Equal(t, 1, c.Size())

	v, err := c.Bcast(Root, 42)
	require.NoError(t, err)
	require.Equal(t, 42, v)

	vs, err := c.Gather(Root, "x")
	require.NoError(t, err)
	require.Equal(t, []any{"x"}, vs)

	require.NoError(t, c.Barrier())
}

func TestBcastDeliversRootValue(t *testing.T) {
	const n = 4
	got := make([]int, n)
	err := Launch(n, func(c Comm) error {
		send := -1
		if c.Rank() == Root {
			send = 99
		}
		v, err := c.Bcast(Root, send)
		if err != nil {
			return err
		}
		got[c.Rank()] = v.(int)
		return nil
	})
	require.NoError(t, err)
	for r := 0; r < n; r++ {
		require.Equal(t, 99, got[r], "rank %d", r)
	}
}

func TestGatherOrdersByRank(t *testing.T) {
	const n = 4
	var rootGot []any
	err := Launch(n, func(c Comm) error {
		vs, err := c.Gather(Root, c.Rank()*10)
		if err != nil {
			return err
		}
		if c.Rank() == Root {
			rootGot = vs
		} else if vs != nil {
			return errors.New("non-root rank received gathered values")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []any{0, 10, 20, 30}, rootGot)
}

func TestBackToBackCollectivesDoNotInterleave(t *testing.T) {
	const n = 4
	err := Launch(n, func(c Comm) error {
		for round := 0; round < 10; round++ {
			vs, err := c.Gather(Root, round*100+c.Rank())
			if err != nil {
				return err
			}
			if c.Rank() == Root {
				for r, v := range vs {
					if v.(int) != round*100+r {
						return errors.New("gather mixed messages across rounds")
					}
				}
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestBarrierSynchronizes(t *testing.T) {
	const n = 4
	var before atomic.Int32
	err := Launch(n, func(c Comm) error {
		before.Add(1)
		if err := c.Barrier(); err != nil {
			return err
		}
		if before.Load() != n {
			return errors.New("barrier released before all ranks arrived")
		}
		return nil
	})
	require.NoError(t, err)
}

func TestLaunchPropagatesRankError(t *testing.T) {
	boom := errors.New("boom")
	err := Launch(2, func(c Comm) error {
		// Keep the collectives matched so the healthy rank is not left
		// blocked when the other one fails afterwards.
		if _, err := c.Bcast(Root, 1); err != nil {
			return err
		}
		if c.Rank() == 1 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
}
