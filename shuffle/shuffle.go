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

// Package shuffle implements the ORShuffle driver of spec.md §4.5
// (C5): it permutes a power-of-two-length local array uniformly at
// random using only oblivious operations, then assigns each element a
// fresh random ORP ID.
package shuffle

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/oblivsort/orsort/compaction"
	"github.com/oblivsort/orsort/elem"
	"github.com/oblivsort/orsort/orerr"
	"github.com/oblivsort/orsort/pool"
	"github.com/oblivsort/orsort/rng"
)

// Shuffle permutes a in place into a uniformly random permutation of
// its input multiset, via recursive oblivious compaction. a.Len()
// must be a power of two. markCoins bounds how many 32-bit draws are
// batched per reservoir-sampling chunk while marking.
func Shuffle(a *elem.Array, src rng.Source, markCoins int) error {
	return shuffleRange(a, src, markCoins)
}

func shuffleRange(a *elem.Array, src rng.Source, markCoins int) error {
	length := a.Len()
	if length < 2 {
		return nil
	}
	if length == 2 {
		bit, err := src.Bit()
		if err != nil {
			return fmt.Errorf("%w: shuffle base case: %v", orerr.ErrRNG, err)
		}
		rng.OSwap(a.Bytes(0), a.Bytes(1), bit)
		return nil
	}

	marked, prefix, err := markUniform(length, length/2, src, markCoins)
	if err != nil {
		return err
	}

	compaction.Compact(a, marked, prefix, 0)

	if err := shuffleRange(a.Slice(0, length/2), src, markCoins); err != nil {
		return err
	}
	return shuffleRange(a.Slice(length/2, length), src, markCoins)
}

// markUniform chooses a uniformly random `needed`-subset of [0,
// length) via reservoir sampling without replacement, and returns the
// resulting marked flags alongside their running-sum prefix (as
// package compaction requires). Draws are batched markCoins at a
// time rather than one source call per element.
func markUniform(length, needed int, src rng.Source, markCoins int) (marked []uint8, prefix []int, err error) {
	marked = make([]uint8, length)
	prefix = make([]int, length)

	if markCoins <= 0 {
		markCoins = 2048
	}

	coins := make([]byte, markCoins*4)
	soFar := 0
	i := 0
	for i < length {
		batch := markCoins
		if length-i < batch {
			batch = length - i
		}
		buf := coins[:batch*4]
		if err := src.Bytes(buf); err != nil {
			return nil, nil, fmt.Errorf("%w: shuffle marking: %v", orerr.ErrRNG, err)
		}
		for j := 0; j < batch; j++ {
			remainingTotal := uint64(length - i)
			remainingNeeded := uint64(needed - soFar)
			coin := uint64(binary.BigEndian.Uint32(buf[j*4 : j*4+4]))
			scaled := (coin * remainingTotal) >> 32

			var m uint8
			if scaled < remainingNeeded {
				m = 1
				soFar++
			}
			marked[i] = m
			if i == 0 {
				prefix[i] = int(m)
			} else {
				prefix[i] = prefix[i-1] + int(m)
			}
			i++
		}
	}

	if soFar != needed {
		return nil, nil, fmt.Errorf("%w: reservoir sampling marked %d of %d needed", orerr.ErrLogic, soFar, needed)
	}
	return marked, prefix, nil
}

// orpidArgs is the iteration-kernel argument for AssignORPIDs: it
// embeds pool.ErrSlot per spec.md §4.1/§9's shared-error-slot
// convention, and guards the RNG source with a mutex since per-job
// sources are not always safe for concurrent use (package rng's
// Deterministic source, used in tests, is not; Crypto is).
type orpidArgs struct {
	pool.ErrSlot
	a   *elem.Array
	src rng.Source
	mu  sync.Mutex
}

// AssignORPIDs fills every element's ORP ID with fresh randomness,
// sharded across the pool's workers. This resolves the spec.md §9
// open question: ORP IDs are assigned over the full [0, a.Len())
// range, shard-partitioned across num_threads, rather than the
// source's conflicting length=0 call pattern.
func AssignORPIDs(p *pool.Pool, a *elem.Array, src rng.Source) error {
	args := &orpidArgs{a: a, src: src}
	item := pool.NewIterItem(assignORPID, args, a.Len())
	p.Push(item)
	p.RunUntilEmpty(item)
	return args.Err()
}

func assignORPID(rawArg interface{}, i int) {
	args := rawArg.(*orpidArgs)
	var buf [8]byte
	args.mu.Lock()
	err := args.src.Bytes(buf[:])
	args.mu.Unlock()
	if err != nil {
		args.SetOnce(fmt.Errorf("%w: orp-id assignment: %v", orerr.ErrRNG, err))
		return
	}
	args.a.SetORPID(i, binary.BigEndian.Uint64(buf[:]))
}
