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

// Package elem defines the on-the-wire and in-memory layout of the
// records the rest of the pipeline sorts: a fixed-width run of bytes
// holding a 64-bit key, a 64-bit ORP tiebreak, and an opaque payload.
package elem

import "encoding/binary"

// HeaderSize is the number of bytes occupied by the key and ORP ID
// ahead of each record's payload.
const HeaderSize = 16

// Array is a contiguous, fixed-stride run of records backed by a flat
// byte buffer. It plays the role of spec.md's "local array": every
// record is the same width, so record i always starts at i*Stride()
// and comparisons/swaps never need to know the payload's shape.
type Array struct {
	buf    []byte
	stride int
	length int
}

// New allocates an Array of length records, each carrying payloadSize
// bytes of opaque payload in addition to the 16-byte header.
func New(length, payloadSize int) *Array {
	stride := HeaderSize + payloadSize
	return &Array{
		buf:    make([]byte, length*stride),
		stride: stride,
		length: length,
	}
}

// Wrap constructs an Array view over an existing buffer without
// copying. len(buf) must be >= length*stride; this is how callers
// hand in a backing buffer sized per spec.md's preconditions
// (capacity max(local_length*2, 512)*2 records) and get back a view
// restricted to the live length.
func Wrap(buf []byte, stride, length int) *Array {
	if stride < HeaderSize {
		panic("elem: stride smaller than header size")
	}
	if len(buf) < stride*length {
		panic("elem: backing buffer too small for requested length")
	}
	return &Array{buf: buf[:stride*length], stride: stride, length: length}
}

// Len returns the number of live records in the array.
func (a *Array) Len() int { return a.length }

// Stride returns the per-record byte width, header included.
func (a *Array) Stride() int { return a.stride }

// PayloadSize returns the number of opaque payload bytes per record.
func (a *Array) PayloadSize() int { return a.stride - HeaderSize }

// Raw exposes the backing buffer for the live length. Callers that
// need to reinterpret the whole array (e.g. to build a second Array
// view over the scratch half of a caller-provided buffer) may use
// this directly.
func (a *Array) Raw() []byte { return a.buf }

// Slice returns a view over records [lo, hi) of a, sharing storage.
func (a *Array) Slice(lo, hi int) *Array {
	if lo < 0 || hi > a.length || lo > hi {
		panic("elem: slice out of range")
	}
	return &Array{buf: a.buf[lo*a.stride : hi*a.stride], stride: a.stride, length: hi - lo}
}

func (a *Array) rec(i int) []byte {
	return a.buf[i*a.stride : (i+1)*a.stride]
}

// Key returns the 64-bit sort key of record i.
func (a *Array) Key(i int) uint64 {
	return binary.BigEndian.Uint64(a.rec(i)[0:8])
}

// SetKey overwrites the sort key of record i.
func (a *Array) SetKey(i int, k uint64) {
	binary.BigEndian.PutUint64(a.rec(i)[0:8], k)
}

// ORPID returns the random tiebreak of record i.
func (a *Array) ORPID(i int) uint64 {
	return binary.BigEndian.Uint64(a.rec(i)[8:16])
}

// SetORPID overwrites the random tiebreak of record i.
func (a *Array) SetORPID(i int, id uint64) {
	binary.BigEndian.PutUint64(a.rec(i)[8:16], id)
}

// Payload returns the opaque payload bytes of record i. The slice
// aliases the array's storage.
func (a *Array) Payload(i int) []byte {
	return a.rec(i)[HeaderSize:]
}

// Bytes returns the whole raw record (header + payload) at i. It is
// the view the constant-time swap primitive in package rng operates
// on, and the unit the transport facade ships over the wire.
func (a *Array) Bytes(i int) []byte {
	return a.rec(i)
}

// Less orders two records by the (key, orp_id) pair, per spec.md's
// data model: keys are compared first, ORP IDs break ties.
func (a *Array) Less(i, j int) bool {
	ki, kj := a.Key(i), a.Key(j)
	if ki != kj {
		return ki < kj
	}
	return a.ORPID(i) < a.ORPID(j)
}

// Equal reports whether records i and j carry the same (key, orp_id)
// pair.
func (a *Array) Equal(i, j int) bool {
	return a.Key(i) == a.Key(j) && a.ORPID(i) == a.ORPID(j)
}

// Swap exchanges records i and j in place via a plain (non-oblivious)
// byte swap. It is used by the non-oblivious phases (C6-C8); the
// oblivious phases (C4/C5) go through rng.OSwap on a.Bytes(i) instead.
func (a *Array) Swap(i, j int) {
	if i == j {
		return
	}
	ri, rj := a.rec(i), a.rec(j)
	for k := range ri {
		ri[k], rj[k] = rj[k], ri[k]
	}
}

// CopyInto copies record src of a into record dst of other. a and
// other must share the same stride.
func (a *Array) CopyInto(src int, other *Array, dst int) {
	if a.stride != other.stride {
		panic("elem: stride mismatch in CopyInto")
	}
	copy(other.rec(dst), a.rec(src))
}

// Splitter is a (key, orp_id) pair selected as a partition boundary
// by the distributed quickselect.
type Splitter struct {
	Key   uint64
	ORPID uint64
}

// Less orders two splitters the same way Array.Less orders records.
func (s Splitter) Less(o Splitter) bool {
	if s.Key != o.Key {
		return s.Key < o.Key
	}
	return s.ORPID < o.ORPID
}

// SplitterOf returns the splitter value for record i of a.
func SplitterOf(a *Array, i int) Splitter {
	return Splitter{Key: a.Key(i), ORPID: a.ORPID(i)}
}

// CompareKV compares two (key, orp_id) pairs, returning -1, 0, or 1.
func CompareKV(k1, o1, k2, o2 uint64) int {
	switch {
	case k1 < k2:
		return -1
	case k1 > k2:
		return 1
	case o1 < o2:
		return -1
	case o1 > o2:
		return 1
	default:
		return 0
	}
}
