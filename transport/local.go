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

package transport

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"reflect"
	"sync"
	"time"

	"github.com/dchest/siphash"
	"github.com/google/uuid"
	"github.com/klauspost/compress/s2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/oblivsort/orsort/orerr"
)

// compressThreshold is the smallest payload Local bothers to run
// through s2 before sealing; below it the framing overhead isn't
// worth paying.
const compressThreshold = 256

// wildcardPollInterval bounds how often a wildcard Recv/IRecv rescans
// the hub's mailbox registry for newly opened channels. Sample
// partition's receives use AnyPeer and so take this path; quickselect
// always names the sending rank.
const wildcardPollInterval = 200 * time.Microsecond

type mailKey struct {
	src, dst int
	tag      uint16
}

// envelope is what actually travels down a Local mailbox channel: an
// AEAD-sealed, optionally s2-compressed copy of the message body,
// plus a correlation ID used only for diagnostics.
type envelope struct {
	id     uuid.UUID
	nonce  []byte
	cipher []byte
}

// hub is the shared state behind every rank's *Local handle for one
// job: a single AEAD key and siphash routing-digest key, and a set of
// lazily created per-(src,dst,tag) mailboxes.
type hub struct {
	size    int
	bufSize int

	aead         cipher.AEAD
	sipK0, sipK1 uint64

	mu       sync.Mutex
	boxes    map[mailKey]chan envelope
	registry map[int][]mailKey
}

func newHub(size, bufSize int) (*hub, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var seed [16]byte
	if _, err := io.ReadFull(rand.Reader, seed[:]); err != nil {
		return nil, err
	}
	return &hub{
		size:     size,
		bufSize:  bufSize,
		aead:     aead,
		sipK0:    binary.BigEndian.Uint64(seed[0:8]),
		sipK1:    binary.BigEndian.Uint64(seed[8:16]),
		boxes:    make(map[mailKey]chan envelope),
		registry: make(map[int][]mailKey),
	}, nil
}

func (h *hub) boxFor(src, dst int, tag uint16) chan envelope {
	k := mailKey{src, dst, tag}
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.boxes[k]
	if !ok {
		ch = make(chan envelope, h.bufSize)
		h.boxes[k] = ch
		h.registry[dst] = append(h.registry[dst], k)
	}
	return ch
}

// matching returns the mailboxes currently registered for dst whose
// (src, tag) satisfy the wildcard constraints, alongside the keys so
// a caller can report which one actually delivered.
func (h *hub) matching(dst, peer int, tag uint16) ([]mailKey, []chan envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var keys []mailKey
	var chans []chan envelope
	for _, k := range h.registry[dst] {
		if (peer == AnyPeer || k.src == peer) && (tag == AnyTag || k.tag == tag) {
			keys = append(keys, k)
			chans = append(chans, h.boxes[k])
		}
	}
	return keys, chans
}

// routingAAD derives the AEAD's additional authenticated data from
// the message's routing triple, as a siphash digest of a small
// header. It binds each ciphertext to the (src, dst, tag) it was
// sealed for.
func (h *hub) routingAAD(src, dst int, tag uint16) []byte {
	var hdr [10]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(src))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(dst))
	binary.BigEndian.PutUint16(hdr[8:10], tag)
	digest := siphash.Hash(h.sipK0, h.sipK1, hdr[:])
	var aad [8]byte
	binary.BigEndian.PutUint64(aad[:], digest)
	return aad[:]
}

func (h *hub) seal(src, dst int, tag uint16, buf []byte) (envelope, error) {
	flag := byte(0)
	payload := buf
	if len(buf) >= compressThreshold {
		if c := s2.Encode(nil, buf); len(c) < len(buf) {
			payload, flag = c, 1
		}
	}
	plain := make([]byte, 1+len(payload))
	plain[0] = flag
	copy(plain[1:], payload)

	nonce := make([]byte, h.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return envelope{}, err
	}
	ct := h.aead.Seal(nil, nonce, plain, h.routingAAD(src, dst, tag))
	return envelope{id: uuid.New(), nonce: nonce, cipher: ct}, nil
}

func (h *hub) open(src, dst int, tag uint16, env envelope) ([]byte, error) {
	plain, err := h.aead.Open(nil, env.nonce, env.cipher, h.routingAAD(src, dst, tag))
	if err != nil {
		return nil, fmt.Errorf("unseal message %s: %w", env.id, err)
	}
	if len(plain) == 0 {
		return nil, fmt.Errorf("unseal message %s: empty envelope", env.id)
	}
	flag, payload := plain[0], plain[1:]
	if flag == 0 {
		return payload, nil
	}
	return s2.Decode(nil, payload)
}

// receiveOne blocks until a message addressed to dst matches (peer,
// tag), then returns it along with the (src, tag) it actually carried.
func (h *hub) receiveOne(dst, peer int, tag uint16) (envelope, int, uint16, error) {
	if peer != AnyPeer && tag != AnyTag {
		ch := h.boxFor(peer, dst, tag)
		env := <-ch
		return env, peer, tag, nil
	}
	for {
		keys, chans := h.matching(dst, peer, tag)
		cases := make([]reflect.SelectCase, len(chans)+1)
		for i, ch := range chans {
			cases[i] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)}
		}
		timer := time.NewTimer(wildcardPollInterval)
		cases[len(chans)] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timer.C)}

		chosen, recv, _ := reflect.Select(cases)
		timer.Stop()
		if chosen == len(chans) {
			continue // timed out; rescan for newly opened mailboxes
		}
		env := recv.Interface().(envelope)
		k := keys[chosen]
		return env, k.src, k.tag, nil
	}
}

// Local is the in-process reference Fabric: N ranks in one process
// exchange AEAD-sealed envelopes over buffered Go channels, so the
// rest of the pipeline can be exercised (and tested) without a real
// network transport underneath it.
type Local struct {
	hub  *hub
	rank int
}

// NewLocal builds a fabric of size ranks sharing one hub, with
// bufSize pending envelopes of backpressure per (src,dst,tag) route.
// bufSize counts whole messages; it is separate from the per-message
// element bound that partition.Run takes.
func NewLocal(size, bufSize int) ([]*Local, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: fabric size must be >= 1", orerr.ErrTransport)
	}
	h, err := newHub(size, bufSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", orerr.ErrTransport, err)
	}
	ranks := make([]*Local, size)
	for r := range ranks {
		ranks[r] = &Local{hub: h, rank: r}
	}
	return ranks, nil
}

func (l *Local) Rank() int { return l.rank }
func (l *Local) Size() int { return l.hub.size }

func (l *Local) Send(buf []byte, peer int, tag uint16) error {
	env, err := l.hub.seal(l.rank, peer, tag, buf)
	if err != nil {
		return fmt.Errorf("%w: send: %v", orerr.ErrTransport, err)
	}
	l.hub.boxFor(l.rank, peer, tag) <- env
	return nil
}

func (l *Local) Recv(buf []byte, peer int, tag uint16) (Status, error) {
	env, src, srcTag, err := l.hub.receiveOne(l.rank, peer, tag)
	if err != nil {
		return Status{}, fmt.Errorf("%w: recv: %v", orerr.ErrTransport, err)
	}
	plain, err := l.hub.open(src, l.rank, srcTag, env)
	if err != nil {
		return Status{}, fmt.Errorf("%w: recv: %v", orerr.ErrTransport, err)
	}
	if len(plain) > len(buf) {
		return Status{Peer: src, Tag: srcTag, Count: len(plain)}, fmt.Errorf("%w: %w", orerr.ErrTransport, ErrTruncated)
	}
	n := copy(buf, plain)
	return Status{Peer: src, Tag: srcTag, Count: n}, nil
}

func (l *Local) ISend(buf []byte, peer int, tag uint16) (*Request, error) {
	req := &Request{fabric: l, kind: reqSend, resCh: make(chan opResult, 1)}
	go func() {
		env, err := l.hub.seal(l.rank, peer, tag, buf)
		if err != nil {
			req.resCh <- opResult{err: fmt.Errorf("%w: isend: %v", orerr.ErrTransport, err)}
			return
		}
		// This channel send is where the route's backpressure
		// actually bites: it blocks once bufSize envelopes for this
		// route are already in flight.
		l.hub.boxFor(l.rank, peer, tag) <- env
		req.resCh <- opResult{status: Status{Peer: peer, Tag: tag, Count: len(buf)}}
	}()
	return req, nil
}

func (l *Local) IRecv(buf []byte, peer int, tag uint16) (*Request, error) {
	req := &Request{fabric: l, kind: reqRecv, resCh: make(chan opResult, 1)}
	go func() {
		env, src, srcTag, err := l.hub.receiveOne(l.rank, peer, tag)
		if err != nil {
			req.resCh <- opResult{err: fmt.Errorf("%w: irecv: %v", orerr.ErrTransport, err)}
			return
		}
		plain, err := l.hub.open(src, l.rank, srcTag, env)
		if err != nil {
			req.resCh <- opResult{err: fmt.Errorf("%w: irecv: %v", orerr.ErrTransport, err)}
			return
		}
		if len(plain) > len(buf) {
			req.resCh <- opResult{status: Status{Peer: src, Tag: srcTag, Count: len(plain)}, err: fmt.Errorf("%w: %w", orerr.ErrTransport, ErrTruncated)}
			return
		}
		n := copy(buf, plain)
		req.resCh <- opResult{status: Status{Peer: src, Tag: srcTag, Count: n}}
	}()
	return req, nil
}

// WaitAny blocks until exactly one of reqs completes. It mutates reqs
// in place, setting the completed slot to nil (the null-request
// sentinel) exactly as spec.md §4.3 requires ("requests that complete
// are consumed"). nil entries already present are skipped.
func (l *Local) WaitAny(reqs []*Request) (int, Status, error) {
	cases := make([]reflect.SelectCase, 0, len(reqs))
	idxMap := make([]int, 0, len(reqs))
	for i, r := range reqs {
		if r == nil {
			continue
		}
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(r.resCh)})
		idxMap = append(idxMap, i)
	}
	if len(cases) == 0 {
		return -1, Status{}, fmt.Errorf("%w: waitany: no pending requests", orerr.ErrProtocol)
	}

	chosen, recv, ok := reflect.Select(cases)
	if !ok {
		return -1, Status{}, fmt.Errorf("%w: waitany: request channel closed", orerr.ErrTransport)
	}
	res := recv.Interface().(opResult)
	origIdx := idxMap[chosen]
	reqs[origIdx] = nil

	if res.err != nil {
		return origIdx, res.status, res.err
	}
	return origIdx, res.status, nil
}
