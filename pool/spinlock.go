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

package pool

import "sync/atomic"

// spinlock is the lock spec.md §5 calls for around the thread-work
// queue: contention is expected to be brief (push/pop touch a small
// slice), so spinning with a scheduler yield beats parking a
// goroutine on a mutex's semaphore.
type spinlock struct {
	state atomic.Bool
}

func (s *spinlock) Lock() {
	for !s.state.CompareAndSwap(false, true) {
		yield()
	}
}

func (s *spinlock) Unlock() {
	s.state.Store(false)
}
