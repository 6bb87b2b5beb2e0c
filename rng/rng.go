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

// Package rng supplies the randomness primitives spec.md §4.2 (C2)
// requires: a strong byte/bit source for marking and ORP-ID
// assignment, and a constant-time conditional swap for the oblivious
// compaction engine.
package rng

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	mrand "math/rand"
)

// Source produces the randomness consumed by the marking step and by
// ORP-ID assignment. A failure here is always propagated as
// orerr.ErrRNG by the caller; Source itself returns the underlying
// error unwrapped so callers can decide how to annotate it.
type Source interface {
	// Bytes fills buf entirely or returns an error; it never
	// returns a short read.
	Bytes(buf []byte) error
	// Uint32 returns one uniform 32-bit word.
	Uint32() (uint32, error)
	// Bit returns one uniform bit.
	Bit() (bool, error)
}

type cryptoSource struct{}

// Crypto returns a Source backed by crypto/rand, the default for
// production jobs.
func Crypto() Source { return cryptoSource{} }

func (cryptoSource) Bytes(buf []byte) error {
	_, err := io.ReadFull(rand.Reader, buf)
	return err
}

func (cryptoSource) Uint32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (cryptoSource) Bit() (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return false, err
	}
	return b[0]&1 == 1, nil
}

// Deterministic is a Source backed by math/rand with a fixed seed.
// It exists so tests can pin the exact sequence of marks the shuffle
// driver produces (spec.md S2), which crypto/rand cannot offer.
// Production callers must use Crypto.
type Deterministic struct {
	r *mrand.Rand
}

// NewDeterministic builds a Deterministic source seeded with seed.
func NewDeterministic(seed int64) *Deterministic {
	return &Deterministic{r: mrand.New(mrand.NewSource(seed))}
}

func (d *Deterministic) Bytes(buf []byte) error {
	// math/rand.Rand.Read never returns a short read or an error.
	_, _ = d.r.Read(buf)
	return nil
}

func (d *Deterministic) Uint32() (uint32, error) {
	return d.r.Uint32(), nil
}

func (d *Deterministic) Bit() (bool, error) {
	return d.r.Int63()&1 == 1, nil
}
