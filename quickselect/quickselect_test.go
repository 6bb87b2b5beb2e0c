// Copyright (C) 2026 The ORSort Authors.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package quickselect

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/oblivsort/orsort/elem"
	"github.com/oblivsort/orsort/transport"
	"github.com/stretchr/testify/require"
)

// runSelect launches Select concurrently on every rank of fab -- it is
// a collective operation, so every rank must call it at once or the
// others block in transport I/O forever.
func runSelect(t *testing.T, fab []*transport.Local, arrays []*elem.Array, left, right int, targets []int) ([][]elem.Splitter, [][]int) {
	t.Helper()
	n := len(fab)
	splitters := make([][]elem.Splitter, n)
	localIdx := make([][]int, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for r := 0; r < n; r++ {
		go func(r int) {
			defer wg.Done()
			splitters[r], localIdx[r], errs[r] = Select(fab[r], arrays[r], left, right, targets, transport.QuickselectTag)
		}(r)
	}
	wg.Wait()

	for r := 0; r < n; r++ {
		require.NoError(t, errs[r], "rank %d", r)
	}
	return splitters, localIdx
}

func contiguousIdentityArrays(n, perRank int) []*elem.Array {
	arrays := make([]*elem.Array, n)
	for r := 0; r < n; r++ {
		a := elem.New(perRank, 0)
		for i := 0; i < perRank; i++ {
			v := uint64(r*perRank + i)
			a.SetKey(i, v)
			a.SetORPID(i, v)
		}
		arrays[r] = a
	}
	return arrays
}

func splitterKeys(row []elem.Splitter) []uint64 {
	out := make([]uint64, len(row))
	for i, s := range row {
		out[i] = s.Key
	}
	return out
}

// TestSelectScenarioS5 reproduces the concrete scenario: four ranks
// each holding a contiguous block of the identity permutation
// [0..16), selecting global ranks {4, 8, 12}.
func TestSelectScenarioS5(t *testing.T) {
	const n = 4
	const perRank = 4
	fab, err := transport.NewLocal(n, 8)
	require.NoError(t, err)
	arrays := contiguousIdentityArrays(n, perRank)
	targets := []int{4, 8, 12}

	splitters, localIdx := runSelect(t, fab, arrays, 0, perRank, targets)

	want := []uint64{4, 8, 12}
	for r := 0; r < n; r++ {
		require.Equal(t, want, splitterKeys(splitters[r]), "rank %d splitters", r)
	}

	wantLocalIdx := [][]int{
		{4, 0, 0, 0},
		{4, 4, 0, 0},
		{4, 4, 4, 0},
	}
	for k := range targets {
		got := make([]int, n)
		for r := 0; r < n; r++ {
			got[r] = localIdx[r][k]
		}
		require.Equal(t, wantLocalIdx[k], got, "target %d local cut indices", targets[k])
	}
}

// TestSelectEmptyTargetsIsNoCollective checks that an empty target set
// returns immediately without driving any protocol round -- every rank
// still has to call Select, but none of them should block on the
// other.
func TestSelectEmptyTargetsIsNoCollective(t *testing.T) {
	const n = 3
	fab, err := transport.NewLocal(n, 4)
	require.NoError(t, err)
	arrays := contiguousIdentityArrays(n, 5)

	splitters, localIdx := runSelect(t, fab, arrays, 0, 5, nil)
	for r := 0; r < n; r++ {
		require.Empty(t, splitters[r])
		require.Empty(t, localIdx[r])
	}
}

// TestSelectSingleRankDegeneratesToLocalSelection checks the one-rank
// case: the master is always rank 0 and every pivot round resolves
// entirely locally.
func TestSelectSingleRankDegeneratesToLocalSelection(t *testing.T) {
	fab, err := transport.NewLocal(1, 4)
	require.NoError(t, err)
	a := elem.New(10, 0)
	perm := []uint64{7, 2, 9, 0, 5, 3, 8, 1, 6, 4}
	for i, v := range perm {
		a.SetKey(i, v)
		a.SetORPID(i, v)
	}

	splitters, localIdx := runSelect(t, fab, []*elem.Array{a}, 0, 10, []int{0, 5, 9})
	require.Equal(t, []uint64{0, 5, 9}, splitterKeys(splitters[0]))
	require.Equal(t, []int{0, 5, 9}, localIdx[0])
}

// TestSelectRandomizedMatchesGlobalRank builds an identity permutation
// scattered arbitrarily across a random number of ranks of random
// size, and checks invariant 4: each returned splitter's key equals
// its target (since the multiset is exactly {0, ..., L-1}), and the
// sum of every rank's local cut index for that target equals the
// target itself.
func TestSelectRandomizedMatchesGlobalRank(t *testing.T) {
	rnd := rand.New(rand.NewSource(20260806))

	for trial := 0; trial < 12; trial++ {
		n := 2 + rnd.Intn(5)
		total := n * (2 + rnd.Intn(20))

		perm := rnd.Perm(total)
		sizes := make([]int, n)
		for i := 0; i < total; i++ {
			sizes[i%n]++
		}

		arrays := make([]*elem.Array, n)
		cursor := 0
		for r := 0; r < n; r++ {
			a := elem.New(sizes[r], 0)
			for i := 0; i < sizes[r]; i++ {
				v := uint64(perm[cursor])
				a.SetKey(i, v)
				a.SetORPID(i, v)
				cursor++
			}
			arrays[r] = a
		}

		targetSet := map[int]struct{}{}
		numTargets := 1 + rnd.Intn(total)
		for len(targetSet) < numTargets {
			targetSet[rnd.Intn(total)] = struct{}{}
		}
		targets := make([]int, 0, len(targetSet))
		for k := range targetSet {
			targets = append(targets, k)
		}
		sortInts(targets)

		fab, err := transport.NewLocal(n, 8)
		require.NoError(t, err)

		splitters, localIdx := runSelectPerRankBounds(t, fab, arrays, targets)

		for k, target := range targets {
			require.Equal(t, uint64(target), splitters[0][k].Key, "trial %d target %d", trial, target)
			sum := 0
			for r := 0; r < n; r++ {
				require.Equal(t, splitters[0][k], splitters[r][k], "trial %d target %d rank %d splitter mismatch", trial, target, r)
				sum += localIdx[r][k]
			}
			require.Equal(t, target, sum, "trial %d target %d: local cut indices don't sum to the global rank", trial, target)
		}
	}
}

func runSelectPerRankBounds(t *testing.T, fab []*transport.Local, arrays []*elem.Array, targets []int) ([][]elem.Splitter, [][]int) {
	t.Helper()
	n := len(fab)
	splitters := make([][]elem.Splitter, n)
	localIdx := make([][]int, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for r := 0; r < n; r++ {
		go func(r int) {
			defer wg.Done()
			splitters[r], localIdx[r], errs[r] = Select(fab[r], arrays[r], 0, arrays[r].Len(), targets, transport.QuickselectTag)
		}(r)
	}
	wg.Wait()

	for r := 0; r < n; r++ {
		require.NoError(t, errs[r], "rank %d", r)
	}
	return splitters, localIdx
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
