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

// Package partition implements sample partitioning, spec.md §4.7 (C7):
// given the splitter cut-points quickselect produced, each rank ships
// every element that belongs to another rank's bucket over the
// transport and receives its own bucket back from everyone else.
package partition

import (
	"fmt"

	"github.com/oblivsort/orsort/elem"
	"github.com/oblivsort/orsort/orerr"
	"github.com/oblivsort/orsort/transport"
)

// Run redistributes a's elements among the ranks of fab according to
// cutPoints: cutPoints must have length fab.Size()+1, with
// cutPoints[0] == 0 and cutPoints[fab.Size()] == a.Len(), as produced
// by prepending 0 and appending a.Len() to the local indices
// quickselect returned. Rank p's bucket is a[cutPoints[p]:cutPoints[p+1]).
// outLen is the caller's local_dst_length, ⌈L·(r+1)/N⌉ − ⌈L·r/N⌉, and
// bufSize bounds the number of elements in flight per peer in either
// direction.
//
// Run is a collective operation like quickselect.Select: every rank
// must call it, or the others block in transport I/O.
func Run(fab transport.Fabric, a *elem.Array, cutPoints []int, outLen, bufSize int, tag uint16) (*elem.Array, error) {
	n := fab.Size()
	if len(cutPoints) != n+1 {
		return nil, fmt.Errorf("%w: partition: cutPoints has length %d, want %d", orerr.ErrLogic, len(cutPoints), n+1)
	}
	if cutPoints[0] != 0 || cutPoints[n] != a.Len() {
		return nil, fmt.Errorf("%w: partition: cutPoints must span [0, %d)", orerr.ErrLogic, a.Len())
	}

	out := elem.New(outLen, a.PayloadSize())
	r := fab.Rank()

	if n == 1 {
		for i := 0; i < a.Len(); i++ {
			a.CopyInto(i, out, i)
		}
		return out, nil
	}

	own := a.Slice(cutPoints[r], cutPoints[r+1])
	if own.Len() > outLen {
		return nil, fmt.Errorf("%w: partition: own bucket (%d) exceeds local_dst_length (%d)", orerr.ErrLogic, own.Len(), outLen)
	}
	for i := 0; i < own.Len(); i++ {
		own.CopyInto(i, out, i)
	}
	recvCursor := own.Len()

	peers := make([]int, 0, n-1)
	for p := 0; p < n; p++ {
		if p != r {
			peers = append(peers, p)
		}
	}
	sendCursor := make([]int, len(peers))
	for i, p := range peers {
		sendCursor[i] = cutPoints[p]
	}

	recvSlot := len(peers)
	reqs := make([]*transport.Request, len(peers)+1)
	recvBuf := make([]byte, bufSize*a.Stride())

	postSend := func(i int) error {
		p := peers[i]
		hi := cutPoints[p+1]
		if sendCursor[i] >= hi {
			return nil
		}
		chunk := hi - sendCursor[i]
		if chunk > bufSize {
			chunk = bufSize
		}
		req, err := fab.ISend(a.Slice(sendCursor[i], sendCursor[i]+chunk).Raw(), p, tag)
		if err != nil {
			return fmt.Errorf("%w: partition send to rank %d: %v", orerr.ErrTransport, p, err)
		}
		reqs[i] = req
		sendCursor[i] += chunk
		return nil
	}

	postRecv := func() error {
		if recvCursor >= outLen {
			return nil
		}
		cap := outLen - recvCursor
		if cap > bufSize {
			cap = bufSize
		}
		req, err := fab.IRecv(recvBuf[:cap*a.Stride()], transport.AnyPeer, tag)
		if err != nil {
			return fmt.Errorf("%w: partition recv: %v", orerr.ErrTransport, err)
		}
		reqs[recvSlot] = req
		return nil
	}

	for i := range peers {
		if err := postSend(i); err != nil {
			return nil, err
		}
	}
	if err := postRecv(); err != nil {
		return nil, err
	}

	for pendingRequests(reqs) {
		idx, status, err := fab.WaitAny(reqs)
		if err != nil {
			return nil, fmt.Errorf("%w: partition waitany: %v", orerr.ErrTransport, err)
		}

		if idx == recvSlot {
			if status.Count%a.Stride() != 0 {
				return nil, fmt.Errorf("%w: partition: received %d bytes, not a multiple of stride %d", orerr.ErrProtocol, status.Count, a.Stride())
			}
			count := status.Count / a.Stride()
			if recvCursor+count > outLen {
				return nil, fmt.Errorf("%w: partition: received more elements than local_dst_length allows", orerr.ErrLogic)
			}
			copy(out.Raw()[recvCursor*a.Stride():], recvBuf[:status.Count])
			recvCursor += count
			if err := postRecv(); err != nil {
				return nil, err
			}
			continue
		}

		if err := postSend(idx); err != nil {
			return nil, err
		}
	}

	if recvCursor != outLen {
		return nil, fmt.Errorf("%w: partition: received %d elements, want %d", orerr.ErrLogic, recvCursor, outLen)
	}
	return out, nil
}

func pendingRequests(reqs []*transport.Request) bool {
	for _, r := range reqs {
		if r != nil {
			return true
		}
	}
	return false
}

// LocalLength computes ⌈total·(rank+1)/n⌉ − ⌈total·rank/n⌉, the
// number of elements rank owns once the total is split as evenly as
// possible across n ranks, per spec.md §6.
func LocalLength(total, n, rank int) int {
	return ceilDiv(total*(rank+1), n) - ceilDiv(total*rank, n)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// CutPoints assembles the cutPoints Run expects from the local cut
// indices quickselect returned for the N-1 splitters, bookended by 0
// and length.
func CutPoints(localIdx []int, length int) []int {
	cp := make([]int, len(localIdx)+2)
	cp[0] = 0
	copy(cp[1:], localIdx)
	cp[len(cp)-1] = length
	return cp
}
