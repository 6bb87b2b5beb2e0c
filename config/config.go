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

// Package config carries the compile-time tunables of spec.md §6 as a
// runtime value, so a benchmark harness can sweep them without
// recompiling.
package config

import (
	"os"

	"sigs.k8s.io/yaml"
)

// Tunables holds the knobs named in spec.md §6, plus pool/transport
// sizing that is environment-specific rather than algorithmic.
type Tunables struct {
	// SwapChunkSize is carried and loaded like the other tunables,
	// but no component reads it: the oblivious swap primitive swaps
	// in place with no staging buffer.
	SwapChunkSize int `json:"swapChunkSize"`
	// MarkCoins bounds the number of 32-bit draws batched per
	// reservoir-sampling chunk during marking.
	MarkCoins int `json:"markCoins"`
	// MergeFanout is B, the external merge sort's run length and
	// fan-in width.
	MergeFanout int `json:"mergeFanout"`
	// SamplePartitionBuf bounds in-flight elements per peer during
	// sample partitioning.
	SamplePartitionBuf int `json:"samplePartitionBuf"`
	// Threads is the number of workers joined to the thread pool.
	Threads int `json:"threads"`
	// QuickselectTag and SamplePartitionTag are the reserved wire
	// tags spec.md §6 requires the core to own.
	QuickselectTag     uint16 `json:"quickselectTag"`
	SamplePartitionTag uint16 `json:"samplePartitionTag"`
}

// Default returns spec.md's default tunables.
func Default() Tunables {
	return Tunables{
		SwapChunkSize:      4096,
		MarkCoins:          2048,
		MergeFanout:        1024,
		SamplePartitionBuf: 512,
		Threads:            1,
		QuickselectTag:     0xBEEF,
		SamplePartitionTag: 0xCAFE,
	}
}

// Option overrides a single field of a Tunables value, in the
// functional-options idiom.
type Option func(*Tunables)

// WithThreads overrides the worker count.
func WithThreads(n int) Option {
	return func(t *Tunables) { t.Threads = n }
}

// WithMergeFanout overrides B.
func WithMergeFanout(b int) Option {
	return func(t *Tunables) { t.MergeFanout = b }
}

// WithSamplePartitionBuf overrides the per-peer in-flight element
// bound used by sample partitioning.
func WithSamplePartitionBuf(n int) Option {
	return func(t *Tunables) { t.SamplePartitionBuf = n }
}

// New builds Tunables starting from Default and applying opts in
// order.
func New(opts ...Option) Tunables {
	t := Default()
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// Load reads Tunables from a YAML file, starting from Default for any
// field the file omits.
func Load(path string) (Tunables, error) {
	t := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tunables{}, err
	}
	return t, nil
}
