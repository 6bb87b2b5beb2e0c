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

package quickselect

import (
	"encoding/binary"
	"fmt"

	"github.com/oblivsort/orsort/elem"
	"github.com/oblivsort/orsort/orerr"
	"github.com/oblivsort/orsort/transport"
)

// drain waits for every still-pending request in reqs to complete,
// tolerating the nils WaitAny leaves behind as it consumes requests.
func drain(fab transport.Fabric, reqs []*transport.Request) error {
	remaining := 0
	for _, r := range reqs {
		if r != nil {
			remaining++
		}
	}
	for remaining > 0 {
		if _, _, err := fab.WaitAny(reqs); err != nil {
			return err
		}
		remaining--
	}
	return nil
}

// broadcastReadiness runs master election (spec.md §4.6 step 1): every
// rank learns every other rank's left<right flag, and the lowest
// numbered ready rank becomes master. Returns -1 if no rank is ready.
func broadcastReadiness(fab transport.Fabric, ready bool, tag uint16) (int, error) {
	n, r := fab.Size(), fab.Rank()
	flag := byte(0)
	if ready {
		flag = 1
	}

	reqs := make([]*transport.Request, 0, n-1)
	for p := 0; p < n; p++ {
		if p == r {
			continue
		}
		req, err := fab.ISend([]byte{flag}, p, tag)
		if err != nil {
			return -1, fmt.Errorf("%w: broadcast readiness: %v", orerr.ErrTransport, err)
		}
		reqs = append(reqs, req)
	}

	readiness := make([]bool, n)
	readiness[r] = ready
	var buf [1]byte
	for p := 0; p < n; p++ {
		if p == r {
			continue
		}
		if _, err := fab.Recv(buf[:], p, tag); err != nil {
			return -1, fmt.Errorf("%w: broadcast readiness: %v", orerr.ErrTransport, err)
		}
		readiness[p] = buf[0] == 1
	}

	if err := drain(fab, reqs); err != nil {
		return -1, fmt.Errorf("%w: broadcast readiness: %v", orerr.ErrTransport, err)
	}

	for p := 0; p < n; p++ {
		if readiness[p] {
			return p, nil
		}
	}
	return -1, nil
}

func encodeSplitter(s elem.Splitter) []byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], s.Key)
	binary.BigEndian.PutUint64(buf[8:16], s.ORPID)
	return buf[:]
}

func decodeSplitter(buf []byte) elem.Splitter {
	return elem.Splitter{
		Key:   binary.BigEndian.Uint64(buf[0:8]),
		ORPID: binary.BigEndian.Uint64(buf[8:16]),
	}
}

// broadcastPivot runs spec.md §4.6 step 2: the master sends arr[left]
// to every peer as the (key, orp_id) pivot pair.
func broadcastPivot(fab transport.Fabric, master int, pivot elem.Splitter, tag uint16) (elem.Splitter, error) {
	n, r := fab.Size(), fab.Rank()
	if r == master {
		wire := encodeSplitter(pivot)
		reqs := make([]*transport.Request, 0, n-1)
		for p := 0; p < n; p++ {
			if p == master {
				continue
			}
			req, err := fab.ISend(wire, p, tag)
			if err != nil {
				return elem.Splitter{}, fmt.Errorf("%w: broadcast pivot: %v", orerr.ErrTransport, err)
			}
			reqs = append(reqs, req)
		}
		if err := drain(fab, reqs); err != nil {
			return elem.Splitter{}, fmt.Errorf("%w: broadcast pivot: %v", orerr.ErrTransport, err)
		}
		return pivot, nil
	}

	var buf [16]byte
	status, err := fab.Recv(buf[:], master, tag)
	if err != nil {
		return elem.Splitter{}, fmt.Errorf("%w: broadcast pivot: %v", orerr.ErrTransport, err)
	}
	if status.Count != 16 {
		return elem.Splitter{}, fmt.Errorf("%w: pivot message was %d bytes, want 16", orerr.ErrProtocol, status.Count)
	}
	return decodeSplitter(buf[:]), nil
}

// reduceSumAndBroadcast runs spec.md §4.6 step 4: the master sums
// base plus every rank's local partition count into cur_pivot, then
// broadcasts cur_pivot back to everyone.
func reduceSumAndBroadcast(fab transport.Fabric, master int, localCount, base int, tag uint16) (int, error) {
	n, r := fab.Size(), fab.Rank()

	if r != master {
		var out [8]byte
		binary.BigEndian.PutUint64(out[:], uint64(localCount))
		if err := fab.Send(out[:], master, tag); err != nil {
			return 0, fmt.Errorf("%w: reduce pivot rank: %v", orerr.ErrTransport, err)
		}
		var in [8]byte
		status, err := fab.Recv(in[:], master, tag)
		if err != nil {
			return 0, fmt.Errorf("%w: reduce pivot rank: %v", orerr.ErrTransport, err)
		}
		if status.Count != 8 {
			return 0, fmt.Errorf("%w: cur_pivot message was %d bytes, want 8", orerr.ErrProtocol, status.Count)
		}
		return int(binary.BigEndian.Uint64(in[:])), nil
	}

	sum := base + localCount
	for p := 0; p < n; p++ {
		if p == master {
			continue
		}
		var in [8]byte
		status, err := fab.Recv(in[:], p, tag)
		if err != nil {
			return 0, fmt.Errorf("%w: reduce pivot rank: %v", orerr.ErrTransport, err)
		}
		if status.Count != 8 {
			return 0, fmt.Errorf("%w: partition count message was %d bytes, want 8", orerr.ErrProtocol, status.Count)
		}
		sum += int(binary.BigEndian.Uint64(in[:]))
	}

	var out [8]byte
	binary.BigEndian.PutUint64(out[:], uint64(sum))
	reqs := make([]*transport.Request, 0, n-1)
	for p := 0; p < n; p++ {
		if p == master {
			continue
		}
		req, err := fab.ISend(out[:], p, tag)
		if err != nil {
			return 0, fmt.Errorf("%w: reduce pivot rank: %v", orerr.ErrTransport, err)
		}
		reqs = append(reqs, req)
	}
	if err := drain(fab, reqs); err != nil {
		return 0, fmt.Errorf("%w: reduce pivot rank: %v", orerr.ErrTransport, err)
	}
	return sum, nil
}
