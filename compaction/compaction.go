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

// Package compaction implements the oblivious compaction engine of
// spec.md §4.4 (C4): given a power-of-two-length array and a
// marked/prefix pair, it rearranges the array in place so that all
// marked elements occupy a contiguous cyclic block of the array,
// rotated by a caller-chosen offset, using only data-independent
// memory accesses.
package compaction

import "github.com/oblivsort/orsort/elem"

// Compact rearranges a in place so that the elements flagged in
// marked occupy a contiguous cyclic block starting at offset mod
// a.Len(), per spec.md §4.4. prefix must be a valid running sum of
// marked: prefix[i] = prefix[i-1] + marked[i], with prefix[0] =
// marked[0]. len(marked) == len(prefix) == a.Len(), and a.Len() must
// be a power of two.
//
// The sequence of (index, op) pairs Compact issues depends only on
// a.Len(), never on the values stored in a -- marked and prefix carry
// all of the control-flow-relevant information, and they must
// themselves be derived from randomness independent of a's contents
// (see package shuffle) for the access-obliviousness guarantee to
// hold.
func Compact(a *elem.Array, marked []uint8, prefix []int, offset int) {
	length := a.Len()
	if len(marked) != length || len(prefix) != length {
		panic("compaction: marked/prefix length mismatch with array")
	}
	compact(a, marked, prefix, 0, length, offset)
}

// compact operates on the window a[lo:lo+length), reading marked and
// prefix at their GLOBAL indices (lo+i, not i) -- both arrays are
// never re-sliced across the recursion, only read at shifting
// offsets, which is what lets leftMarked below be computed without
// re-deriving a local prefix sum for every recursive frame.
func compact(a *elem.Array, marked []uint8, prefix []int, lo, length, offset int) {
	if length < 2 {
		return
	}
	if length == 2 {
		cond := (marked[lo] == 0 && marked[lo+1] != 0) != (offset&1 == 1)
		oswapRecords(a, lo, lo+1, cond)
		return
	}

	l := length / 2
	// leftMarked = prefix[l-1] - prefix[0] + marked[0], but with the
	// indices of spec.md §4.4 shifted by lo to address the current
	// window rather than a re-sliced local array.
	leftMarked := prefix[lo+l-1] - prefix[lo] + int(marked[lo])

	compact(a, marked, prefix, lo, l, mod(offset, l))
	compact(a, marked, prefix, lo+l, length-l, mod(offset+leftMarked, l))

	swapLocalRange(a, lo, length, offset, leftMarked)
}

// swapLocalRange is spec.md §4.4's merge step: it rotates the two
// already-compacted halves of a[lo:lo+length) into a single cyclic
// block starting at offset mod length.
func swapLocalRange(a *elem.Array, lo, length, offset, leftMarked int) {
	l := length / 2
	s := (mod(offset, l)+leftMarked >= l) != (offset >= l)
	cut := mod(offset+leftMarked, l)

	for i := 0; i < l; i++ {
		cond := s != (i >= cut)
		oswapRecords(a, lo+i, lo+l+i, cond)
	}
}

// mod is Euclidean mod: always non-negative for a positive modulus,
// matching the "offset mod L" arithmetic spec.md assumes throughout.
func mod(a, m int) int {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}
