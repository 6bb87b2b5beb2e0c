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

// Package quickselect implements the distributed quickselect of
// spec.md §4.6 (C6): cooperating ranks pick M global order statistics
// over the union of their active local arrays, identifying each as a
// (key, orp_id) splitter plus the local index it cuts at.
//
// Select must be called concurrently by every rank in the fabric with
// the same targets slice; it is a collective operation, like an MPI
// call, and a rank that returns without every other rank also
// returning leaves the others blocked in transport I/O.
package quickselect

import (
	"fmt"

	"github.com/oblivsort/orsort/elem"
	"github.com/oblivsort/orsort/orerr"
	"github.com/oblivsort/orsort/transport"
	"golang.org/x/exp/slices"
)

// Select picks the splitters at the global order statistics listed in
// targets out of the union of every rank's [left, right) active
// window. target[k] is the 0-indexed rank of the desired element
// counted by strictly-smaller elements, e.g. target 4 over an active
// identity range [0..16) names the element with value 4. Select
// returns one splitter and one local cut index per target; a target
// this rank never observes as a pivot still gets a local cut index,
// namely however many of this rank's own active elements are
// strictly less than that splitter.
func Select(fab transport.Fabric, a *elem.Array, left, right int, targets []int, tag uint16) ([]elem.Splitter, []int, error) {
	m := len(targets)
	splitters := make([]elem.Splitter, m)
	localIdx := make([]int, m)
	if err := selectRec(fab, a, left, right, targets, 0, m, 0, splitters, localIdx, tag); err != nil {
		return nil, nil, err
	}
	return splitters, localIdx, nil
}

func selectRec(fab transport.Fabric, a *elem.Array, left, right int, targets []int, tlo, thi int, base int, splitters []elem.Splitter, localIdx []int, tag uint16) error {
	if tlo >= thi {
		return nil
	}

	ready := left < right
	master, err := broadcastReadiness(fab, ready, tag)
	if err != nil {
		return err
	}
	if master < 0 {
		return fmt.Errorf("%w: quickselect: all ranks empty", orerr.ErrProtocol)
	}

	var pivot elem.Splitter
	if fab.Rank() == master {
		pivot = elem.SplitterOf(a, left)
	}
	pivot, err = broadcastPivot(fab, master, pivot, tag)
	if err != nil {
		return err
	}

	isMaster := fab.Rank() == master
	partitionRight := left
	if ready {
		pivotSlot := -1
		if isMaster {
			// Excludes the pivot's own slot from the comparison
			// range, per spec.md §4.6 step 3, and afterwards parks
			// the pivot element exactly at the returned boundary so
			// the right recursion can skip over it by starting one
			// slot later.
			pivotSlot = left
		}
		partitionRight = hoarePartition(a, left, right, pivot, pivotSlot)
	}
	localCount := partitionRight - left

	curPivot, err := reduceSumAndBroadcast(fab, master, localCount, base, tag)
	if err != nil {
		return err
	}

	rel, found := slices.BinarySearch(targets[tlo:thi], curPivot)
	idx := tlo + rel
	if found {
		splitters[idx] = pivot
		localIdx[idx] = partitionRight
	}

	leftHi := idx
	rightLo := idx
	if found {
		rightLo = idx + 1
	}

	rightStart := partitionRight
	if isMaster && ready {
		rightStart = partitionRight + 1
	}

	if err := selectRec(fab, a, left, partitionRight, targets, tlo, leftHi, base, splitters, localIdx, tag); err != nil {
		return err
	}
	// curPivot+1: the pivot itself is one element, definitively
	// smaller than everything left in the right window now that it
	// has been excluded from it.
	return selectRec(fab, a, rightStart, right, targets, rightLo, thi, curPivot+1, splitters, localIdx, tag)
}

// hoarePartition rearranges a[left:right) so that every element whose
// (key, orp_id) pair is strictly less than pivot precedes every
// element that is >= pivot, and returns the boundary index -- which
// is exactly the count of elements less than pivot in this window. It
// does not preserve relative order within either group -- the merge
// sort pass (C8) restores order, not this one.
//
// pivotSlot is the index of pivot's own element, or -1 if this rank
// doesn't hold it. When given, that slot is set aside before
// comparisons start and parked exactly at the returned boundary
// afterwards, so the caller can recurse into (boundary, right) and
// know it has excluded the one element that was just resolved --
// without that exclusion, a master whose pivot is the window's
// minimum would keep re-selecting the same element forever.
func hoarePartition(a *elem.Array, left, right int, pivot elem.Splitter, pivotSlot int) int {
	lt := func(i int) bool {
		return elem.CompareKV(a.Key(i), a.ORPID(i), pivot.Key, pivot.ORPID) < 0
	}

	hi := right
	if pivotSlot >= 0 {
		hi = right - 1
		a.Swap(pivotSlot, hi)
	}

	i, j := left, hi-1
	for i <= j {
		for i <= j && lt(i) {
			i++
		}
		for i <= j && !lt(j) {
			j--
		}
		if i < j {
			a.Swap(i, j)
			i++
			j--
		}
	}

	if pivotSlot >= 0 {
		a.Swap(i, hi)
	}
	return i
}
