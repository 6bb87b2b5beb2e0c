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

// Package orsort wires the pipeline's components together behind the
// single public entry point spec.md §6 calls shuffle_sort: per-rank
// oblivious shuffle (package shuffle), distributed quickselect
// (package quickselect), sample partition (package partition), and
// local external merge sort (package mergesort), coordinated through
// one rank's Context.
package orsort

import (
	"fmt"
	"log"

	"github.com/oblivsort/orsort/config"
	"github.com/oblivsort/orsort/elem"
	"github.com/oblivsort/orsort/mergesort"
	"github.com/oblivsort/orsort/orerr"
	"github.com/oblivsort/orsort/partition"
	"github.com/oblivsort/orsort/pool"
	"github.com/oblivsort/orsort/quickselect"
	"github.com/oblivsort/orsort/rng"
	"github.com/oblivsort/orsort/shuffle"
	"github.com/oblivsort/orsort/transport"
)

// Variant selects which sort pipeline Run dispatches to, per spec.md
// §9's "out-of-scope variants" note. Only ORShuffleSort is
// implemented; the others are reserved so a caller building a Context
// for a future variant never has to change its call site.
type Variant int

const (
	// ORShuffleSort is the oblivious-shuffle-plus-quickselect pipeline
	// this module implements.
	ORShuffleSort Variant = iota
	// BitonicSort is reserved for the source family's bitonic sort
	// variant, not implemented here.
	BitonicSort
	// BucketSort is reserved for the source family's bucket sort
	// variant, not implemented here.
	BucketSort
	// OpaqueSort is reserved for the source family's Opaque-style
	// oblivious sort variant, not implemented here.
	OpaqueSort
)

func (v Variant) String() string {
	switch v {
	case ORShuffleSort:
		return "ORShuffleSort"
	case BitonicSort:
		return "BitonicSort"
	case BucketSort:
		return "BucketSort"
	case OpaqueSort:
		return "OpaqueSort"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// Context carries one rank's process-wide state for the lifetime of a
// job: its position in the fabric, the worker pool, the transport, and
// the RNG source. Per spec.md §9's design note, this replaces the
// teacher pattern of thread-local/global rank state with an explicit
// value threaded through every call, to make tests able to run many
// ranks in one process.
type Context struct {
	Rank     int
	Size     int
	Pool     *pool.Pool
	Fabric   transport.Fabric
	RNG      rng.Source
	Tunables config.Tunables
}

// NewContext builds a Context and starts its worker pool. Callers must
// call Shutdown once the Context is no longer needed.
func NewContext(rank, size int, fab transport.Fabric, src rng.Source, tunables config.Tunables) *Context {
	return &Context{
		Rank:     rank,
		Size:     size,
		Pool:     pool.New(tunables.Threads),
		Fabric:   fab,
		RNG:      src,
		Tunables: tunables,
	}
}

// Shutdown stops the Context's worker pool. It must be the last call
// made against a Context.
func (c *Context) Shutdown() {
	c.Pool.Shutdown()
}

// Run dispatches to the sort pipeline named by variant. It is a
// collective operation: every rank in the fabric must call Run (with
// the same variant and totalLength) or the others will block inside
// quickselect/partition's transport I/O.
//
// arr is this rank's local slice of the dataset, of length
// ⌈totalLength·(rank+1)/size⌉ − ⌈totalLength·rank/size⌉, and must
// already be sized as a power of two for the shuffle phase, per
// spec.md's Non-goals ("N and the local length are fixed before the
// pipeline starts and are powers of two for the shuffle"). Run returns
// this rank's globally-sorted output slice, which is not necessarily
// arr itself -- sample partitioning redistributes elements across
// ranks, so the returned array's length is this rank's post-partition
// local_dst_length, not arr.Len().
func Run(ctx *Context, variant Variant, arr *elem.Array, totalLength int) (*elem.Array, error) {
	switch variant {
	case ORShuffleSort:
		return ShuffleSort(ctx, arr, totalLength)
	default:
		return nil, fmt.Errorf("%w: sort variant %s is not implemented", orerr.ErrLogic, variant)
	}
}

// ShuffleSort runs the pipeline spec.md §2 describes: oblivious
// shuffle and ORP-ID assignment (C5, using C2/C4 internally), then
// distributed quickselect for the N-1 equally-spaced global splitters
// (C6), sample partitioning to the owning rank (C7), and a local
// external merge sort of the received partition (C8).
func ShuffleSort(ctx *Context, arr *elem.Array, totalLength int) (*elem.Array, error) {
	if n := arr.Len(); n&(n-1) != 0 {
		return nil, fmt.Errorf("%w: shuffle_sort: local length %d is not a power of two", orerr.ErrLogic, n)
	}

	if err := shuffle.Shuffle(arr, ctx.RNG, ctx.Tunables.MarkCoins); err != nil {
		log.Printf("shuffle_sort: rank %d: shuffle: %v", ctx.Rank, err)
		return nil, err
	}
	if err := shuffle.AssignORPIDs(ctx.Pool, arr, ctx.RNG); err != nil {
		log.Printf("shuffle_sort: rank %d: assign orp_id: %v", ctx.Rank, err)
		return nil, err
	}

	var localIdx []int
	if m := ctx.Size - 1; m > 0 {
		targets := make([]int, m)
		for k := 0; k < m; k++ {
			targets[k] = totalLength * (k + 1) / ctx.Size
		}
		_, li, err := quickselect.Select(ctx.Fabric, arr, 0, arr.Len(), targets, ctx.Tunables.QuickselectTag)
		if err != nil {
			log.Printf("shuffle_sort: rank %d: quickselect: %v", ctx.Rank, err)
			return nil, err
		}
		localIdx = li
	}

	cutPoints := partition.CutPoints(localIdx, arr.Len())
	outLen := partition.LocalLength(totalLength, ctx.Size, ctx.Rank)
	out, err := partition.Run(ctx.Fabric, arr, cutPoints, outLen, ctx.Tunables.SamplePartitionBuf, ctx.Tunables.SamplePartitionTag)
	if err != nil {
		log.Printf("shuffle_sort: rank %d: sample partition: %v", ctx.Rank, err)
		return nil, err
	}

	scratch := elem.New(out.Len(), out.PayloadSize())
	if err := mergesort.Sort(ctx.Pool, out, scratch, ctx.Tunables.MergeFanout); err != nil {
		log.Printf("shuffle_sort: rank %d: merge sort: %v", ctx.Rank, err)
		return nil, err
	}
	return out, nil
}
