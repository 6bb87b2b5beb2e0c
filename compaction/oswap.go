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

package compaction

import (
	"github.com/oblivsort/orsort/elem"
	"github.com/oblivsort/orsort/rng"
)

// oswapRecords conditionally swaps records i and j of a using the
// constant-time primitive, so that compact/swapLocalRange never
// branch on data-dependent conditions when deciding whether a swap
// happens -- only on cond, which is itself always evaluated.
func oswapRecords(a *elem.Array, i, j int, cond bool) {
	rng.OSwap(a.Bytes(i), a.Bytes(j), cond)
}
