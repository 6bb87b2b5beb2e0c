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

// Package mergesort implements the local external merge sort of
// spec.md §4.8 (C8): a first pass that sorts chunks of up to B
// elements in place, followed by B-way merge passes that multiply the
// run length by B each time until the whole array is one run.
package mergesort

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/oblivsort/orsort/elem"
	"github.com/oblivsort/orsort/orerr"
	"github.com/oblivsort/orsort/pool"
)

// Sort sorts a in place by (key, orp_id) using scratch as the opposite
// buffer merge passes write into. scratch must have the same length as
// a; both must have the same stride. fanout is B, the run length the
// first pass produces and the fan-in width of every merge pass. The
// sorted result always ends up in a -- Sort copies it back from
// scratch if the last merge pass left it there.
func Sort(p *pool.Pool, a, scratch *elem.Array, fanout int) error {
	n := a.Len()
	if scratch.Len() != n {
		return fmt.Errorf("%w: mergesort: scratch length %d, want %d", orerr.ErrLogic, scratch.Len(), n)
	}
	if fanout < 2 {
		return fmt.Errorf("%w: mergesort: fanout must be >= 2, got %d", orerr.ErrLogic, fanout)
	}
	if n == 0 {
		return nil
	}

	numChunks := ceilDiv(n, fanout)
	chunkArgs := &chunkSortArgs{a: a, fanout: fanout, n: n}
	chunkItem := pool.NewIterItem(sortChunk, chunkArgs, numChunks)
	p.Push(chunkItem)
	p.RunUntilEmpty(chunkItem)

	cur, other := a, scratch
	runLength := fanout
	for runLength < n {
		numGroups := ceilDiv(n, runLength*fanout)
		mergeArgs := &mergeGroupArgs{cur: cur, other: other, runLength: runLength, fanout: fanout, n: n}
		mergeItem := pool.NewIterItem(mergeGroupIter, mergeArgs, numGroups)
		p.Push(mergeItem)
		p.RunUntilEmpty(mergeItem)

		cur, other = other, cur
		runLength *= fanout
	}

	if cur != a {
		for i := 0; i < n; i++ {
			cur.CopyInto(i, a, i)
		}
	}
	return nil
}

type chunkSortArgs struct {
	a      *elem.Array
	fanout int
	n      int
}

// sortChunk runs the first pass: a plain comparison sort of one
// chunk, in place, using elem.Array's own sort.Interface methods.
func sortChunk(argRaw interface{}, c int) {
	args := argRaw.(*chunkSortArgs)
	lo := c * args.fanout
	hi := lo + args.fanout
	if hi > args.n {
		hi = args.n
	}
	sort.Sort(args.a.Slice(lo, hi))
}

type mergeGroupArgs struct {
	cur, other *elem.Array
	runLength  int
	fanout     int
	n          int
}

func mergeGroupIter(argRaw interface{}, g int) {
	args := argRaw.(*mergeGroupArgs)
	start := g * args.runLength * args.fanout
	mergeGroup(args.cur, args.other, start, args.runLength, args.fanout, args.n)
}

// mergeGroup B-way merges up to fanout consecutive runs of up to
// runLength elements of cur, starting at the absolute index start,
// into the same absolute range of other. Runs that run past the
// array's end, and the implicit empty runs past the group's actual
// run count, are treated as sentinel-exhausted: they are simply never
// pushed onto the merge heap.
func mergeGroup(cur, other *elem.Array, start, runLength, fanout, n int) {
	end := start + runLength*fanout
	if end > n {
		end = n
	}

	cursor := make([]int, fanout)
	runEnd := make([]int, fanout)
	for i := 0; i < fanout; i++ {
		lo := start + i*runLength
		if lo >= end {
			cursor[i] = lo
			runEnd[i] = lo
			continue
		}
		hi := lo + runLength
		if hi > end {
			hi = end
		}
		cursor[i] = lo
		runEnd[i] = hi
	}

	h := make(mergeHeap, 0, fanout)
	for i := 0; i < fanout; i++ {
		if cursor[i] < runEnd[i] {
			h = append(h, mergeHeapItem{run: i, key: cur.Key(cursor[i]), orpid: cur.ORPID(cursor[i])})
		}
	}
	heap.Init(&h)

	out := start
	for h.Len() > 0 {
		top := heap.Pop(&h).(mergeHeapItem)
		cur.CopyInto(cursor[top.run], other, out)
		out++
		cursor[top.run]++
		if cursor[top.run] < runEnd[top.run] {
			heap.Push(&h, mergeHeapItem{run: top.run, key: cur.Key(cursor[top.run]), orpid: cur.ORPID(cursor[top.run])})
		}
	}
}

type mergeHeapItem struct {
	run        int
	key, orpid uint64
}

type mergeHeap []mergeHeapItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	return elem.CompareKV(h[i].key, h[i].orpid, h[j].key, h[j].orpid) < 0
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) {
	*h = append(*h, x.(mergeHeapItem))
}
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
