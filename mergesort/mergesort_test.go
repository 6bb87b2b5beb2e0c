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

package mergesort

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/oblivsort/orsort/elem"
	"github.com/oblivsort/orsort/pool"
	"github.com/stretchr/testify/require"
)

func randomArray(rnd *rand.Rand, n int) *elem.Array {
	a := elem.New(n, 0)
	perm := rnd.Perm(n)
	for i, v := range perm {
		a.SetKey(i, uint64(v))
		a.SetORPID(i, uint64(v))
	}
	return a
}

func keysOf(a *elem.Array) []uint64 {
	out := make([]uint64, a.Len())
	for i := range out {
		out[i] = a.Key(i)
	}
	return out
}

func isSortedArray(a *elem.Array) bool {
	for i := 1; i < a.Len(); i++ {
		if a.Less(i, i-1) {
			return false
		}
	}
	return true
}

func TestSortProducesNonDecreasingOrder(t *testing.T) {
	p := pool.New(4)
	defer p.Shutdown()
	rnd := rand.New(rand.NewSource(11))

	for _, tc := range []struct{ n, fanout int }{
		{0, 4}, {1, 4}, {5, 4}, {16, 4}, {17, 4}, {1000, 8}, {1000, 1024}, {4096, 16},
	} {
		a := randomArray(rnd, tc.n)
		want := keysOf(a)
		scratch := elem.New(tc.n, 0)

		require.NoError(t, Sort(p, a, scratch, tc.fanout), "n=%d fanout=%d", tc.n, tc.fanout)
		require.True(t, isSortedArray(a), "n=%d fanout=%d: not sorted", tc.n, tc.fanout)

		got := append([]uint64{}, keysOf(a)...)
		sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
		require.Equal(t, want, got, "n=%d fanout=%d: multiset changed", tc.n, tc.fanout)
	}
}

func TestSortIsIdempotent(t *testing.T) {
	p := pool.New(2)
	defer p.Shutdown()
	rnd := rand.New(rand.NewSource(22))

	a := randomArray(rnd, 513)
	scratch := elem.New(513, 0)
	require.NoError(t, Sort(p, a, scratch, 8))
	once := append([]uint64{}, keysOf(a)...)

	require.NoError(t, Sort(p, a, scratch, 8))
	require.Equal(t, once, keysOf(a))
}

func TestSortRejectsMismatchedScratchLength(t *testing.T) {
	p := pool.New(1)
	defer p.Shutdown()

	a := elem.New(10, 0)
	scratch := elem.New(9, 0)
	require.Error(t, Sort(p, a, scratch, 4))
}

func TestSortRejectsFanoutBelowTwo(t *testing.T) {
	p := pool.New(1)
	defer p.Shutdown()

	a := elem.New(10, 0)
	scratch := elem.New(10, 0)
	require.Error(t, Sort(p, a, scratch, 1))
}

func TestMergeGroupHandlesShortFinalGroup(t *testing.T) {
	// runLength=2, fanout=4 would normally span 8 elements per group,
	// but n=5 leaves a short final run: [0,2), [2,4), [4,5) must each
	// already be individually sorted, as the first pass would leave
	// them.
	a := elem.New(5, 0)
	for i, v := range []uint64{1, 3, 0, 5, 2} {
		a.SetKey(i, v)
		a.SetORPID(i, v)
	}
	other := elem.New(5, 0)
	mergeGroup(a, other, 0, 2, 4, 5)
	require.Equal(t, []uint64{0, 1, 2, 3, 5}, keysOf(other))
}
