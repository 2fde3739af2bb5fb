/*
   Copyright The SimplePipe Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package simplepipe

// packet is one reassembled frame: its header plus a payload view. The
// payload is valid only until the receiver is fed again.
type packet struct {
	header  packetHeader
	payload []byte
}

type receiverState int

const (
	// stateIdle: the next byte starts a new packet.
	stateIdle receiverState = iota
	// stateAwaitingHeader: the pool holds a partial header.
	stateAwaitingHeader
	// stateAwaitingBody: the pool holds the packet prefix and body bytes
	// are still missing.
	stateAwaitingBody
)

// receiver rebuilds whole packets from a byte stream across arbitrary
// fragmentation. Fed bytes are either sliced into packets in place or
// staged in the pool until the rest of a split packet arrives.
type receiver struct {
	state    receiverState
	pool     []byte
	remain   int // body bytes still missing while awaiting the body
	limit    int
	onPacket func(packet) error
}

func newReceiver(reserve, limit int, onPacket func(packet) error) *receiver {
	return &receiver{
		pool:     make([]byte, 0, reserve),
		limit:    limit,
		onPacket: onPacket,
	}
}

// reset returns the receiver to its start state without discarding pool
// capacity. Used when the endpoint re-arms for the next connection.
func (r *receiver) reset() {
	r.state = stateIdle
	r.pool = r.pool[:0]
	r.remain = 0
}

// feed advances the state machine with the next stretch of stream bytes,
// invoking the packet callback once per completed packet.
func (r *receiver) feed(p []byte) error {
	buf := newBuffer(p)
	for !buf.empty() {
		var err error
		switch r.state {
		case stateIdle:
			err = r.feedIdle(&buf)
		case stateAwaitingHeader:
			err = r.feedAwaitingHeader(&buf)
		case stateAwaitingBody:
			err = r.feedAwaitingBody(&buf)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *receiver) feedIdle(buf *buffer) error {
	if buf.len() < packetHeaderLength {
		// Header split across reads; stage what we have.
		rest, err := buf.consume(buf.len())
		if err != nil {
			return err
		}
		r.pool = append(r.pool[:0], rest.bytes()...)
		r.state = stateAwaitingHeader
		return nil
	}
	h := parsePacketHeader(buf.bytes())
	if err := h.validate(r.limit); err != nil {
		return err
	}
	if int64(h.Size) > int64(buf.len()) {
		// Body split across reads; stage the prefix and remember how much
		// is still missing.
		rest, err := buf.consume(buf.len())
		if err != nil {
			return err
		}
		r.remain = int(int64(h.Size) - int64(rest.len()))
		r.pool = append(r.pool[:0], rest.bytes()...)
		r.state = stateAwaitingBody
		return nil
	}
	// Whole packet available in place.
	view, err := buf.consume(int(h.Size))
	if err != nil {
		return err
	}
	return r.emit(view.bytes())
}

func (r *receiver) feedAwaitingHeader(buf *buffer) error {
	prior := len(r.pool)
	r.pool = append(r.pool, buf.bytes()...)
	if len(r.pool) < packetHeaderLength {
		_, err := buf.consume(buf.len())
		return err
	}
	h := parsePacketHeader(r.pool)
	if err := h.validate(r.limit); err != nil {
		return err
	}
	remaining := int64(h.Size) - int64(prior)
	if remaining > int64(buf.len()) {
		// The appended bytes still do not complete the packet.
		r.remain = int(remaining - int64(buf.len()))
		r.state = stateAwaitingBody
		_, err := buf.consume(buf.len())
		return err
	}
	// The pool tail beyond this packet duplicates bytes the caller's
	// buffer still holds; only the packet's remainder is consumed here and
	// the rest is reprocessed from the buffer in the idle state.
	if _, err := buf.consume(int(remaining)); err != nil {
		return err
	}
	pkt := r.pool[:int(h.Size)]
	r.pool = r.pool[:0]
	r.state = stateIdle
	return r.emit(pkt)
}

func (r *receiver) feedAwaitingBody(buf *buffer) error {
	n := r.remain
	if n > buf.len() {
		n = buf.len()
	}
	chunk, err := buf.consume(n)
	if err != nil {
		return err
	}
	r.pool = append(r.pool, chunk.bytes()...)
	r.remain -= n
	if r.remain > 0 {
		return nil
	}
	pkt := r.pool
	r.pool = r.pool[:0]
	r.state = stateIdle
	return r.emit(pkt)
}

// emit slices a completed packet region into header and payload and hands
// it to the callback. Validation has already bounded DataOffset and Size.
func (r *receiver) emit(p []byte) error {
	h := parsePacketHeader(p)
	return r.onPacket(packet{
		header:  h,
		payload: p[int(h.DataOffset):int(h.Size)],
	})
}
