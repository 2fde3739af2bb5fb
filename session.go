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

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// aLongTimeAgo is a non-zero past deadline used to abort in-flight writes.
var aLongTimeAgo = time.Unix(1, 0)

// pipeline is the inbound path of one endpoint: a receiver feeding a
// deserializer feeding the user's handler. The pools live on the endpoint
// and survive reconnects; reset clears them for the next client.
type pipeline struct {
	recv *receiver
	des  *deserializer
}

func newPipeline(cfg *config, handler Handler) *pipeline {
	des := newDeserializer(cfg.bufferSize, cfg.limit, func(msg []byte) error {
		return deliverEvent(handler, Event{Type: Received, Data: msg})
	})
	return &pipeline{
		recv: newReceiver(cfg.bufferSize, cfg.limit, func(pkt packet) error {
			_, err := des.feed(pkt)
			return err
		}),
		des: des,
	}
}

func (p *pipeline) feed(b []byte) error {
	return p.recv.feed(b)
}

func (p *pipeline) reset() {
	p.recv.reset()
	p.des.reset()
}

// deliverEvent invokes the user handler, converting a panic into the
// watcher's terminal error.
func deliverEvent(h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("event handler panicked on %s: %v", ev.Type, r)
		}
	}()
	h(ev)
	return nil
}

// session owns one connected pipe and carries the shared endpoint
// machinery: the watcher-driven read path and the serialized, cancellable
// write path.
type session struct {
	conn    net.Conn
	cfg     *config
	log     *logrus.Entry
	handler Handler
	pipe    *pipeline

	// wmu is the writer critical section: all packets of one message are
	// contiguous on the wire.
	wmu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
}

func newSession(conn net.Conn, handler Handler, cfg *config, pipe *pipeline) *session {
	return &session{
		conn:    conn,
		cfg:     cfg,
		log:     cfg.logger,
		handler: handler,
		pipe:    pipe,
		closed:  make(chan struct{}),
	}
}

func (s *session) deliver(ev Event) error {
	return deliverEvent(s.handler, ev)
}

// readLoop drives reads until the peer disconnects, the session closes, or
// a fatal error occurs. A nil return means the connection ended; a
// non-nil return is watcher-fatal.
func (s *session) readLoop() error {
	buf := make([]byte, s.cfg.bufferSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			if ferr := s.pipe.feed(buf[:n]); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			if s.closeRequested() || isDisconnect(err) {
				return nil
			}
			return errors.Wrap(err, "pipe read failed")
		}
	}
}

func (s *session) closeRequested() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// drain waits until no write holds the writer critical section, so bytes
// already accepted reach the pipe before a disconnect drops the client.
func (s *session) drain() {
	s.wmu.Lock()
	//lint:ignore SA2001 acquiring the lock is the flush barrier
	s.wmu.Unlock()
}

// close is idempotent; the handle is shut exactly once.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if err := s.conn.Close(); err != nil && !isDisconnect(err) {
			s.log.WithError(err).Debug("pipe close failed")
		}
	})
}

// write frames and sends one whole message under the writer lock.
//
// Cancellation via ctx is cooperative: before the lock it aborts with no
// bytes written; between packets it stops the stream; an in-flight chunk
// is aborted through the connection's write deadline. Whenever the
// message was cut short a cancel packet voids the peer's partial
// reassembly. A cancel that arrives after the last packet loses the race
// and the write completes successfully.
func (s *session) write(ctx context.Context, p []byte) error {
	if s.closeRequested() {
		return ErrClosed
	}
	if err := MessageTooLargeError(int64(len(p)), s.cfg.limit); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.closeRequested() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		aborted     atomic.Bool
		stop        chan struct{}
		monitorDone chan struct{}
	)
	if ctx.Done() != nil {
		stop = make(chan struct{})
		monitorDone = make(chan struct{})
		go func() {
			defer close(monitorDone)
			select {
			case <-ctx.Done():
				aborted.Store(true)
				s.conn.SetWriteDeadline(aLongTimeAgo)
			case <-stop:
			}
		}()
	}

	complete, err := s.writePackets(p, &aborted)

	if stop != nil {
		close(stop)
		<-monitorDone
		s.conn.SetWriteDeadline(time.Time{})
	}

	if complete {
		// A cancel racing the final packet loses; no cancel packet
		// follows a fully delivered message.
		return nil
	}
	if aborted.Load() {
		var hdr [packetHeaderLength]byte
		putPacketHeader(hdr[:], cancelHeader())
		if werr := s.writeRaw(hdr[:], &aborted); werr != nil && !isDisconnect(werr) {
			s.log.WithError(werr).Debug("failed to send cancel packet")
		}
		return ctx.Err()
	}
	if s.closeRequested() || isDisconnect(err) {
		return ErrClosed
	}
	return errors.Wrap(err, "pipe write failed")
}

// writePackets streams the message as header+fragment packets, honouring
// cancellation between packets. complete reports whether every packet of
// the message reached the pipe.
func (s *session) writePackets(p []byte, aborted *atomic.Bool) (bool, error) {
	sz := newSerializer(newBuffer(p), s.cfg.bufferSize)
	var hdr [packetHeaderLength]byte
	for {
		frag, h, ok := sz.next()
		if !ok {
			return true, nil
		}
		putPacketHeader(hdr[:], h)
		if err := s.writeRaw(hdr[:], aborted); err != nil {
			return false, err
		}
		if err := s.writeRaw(frag.bytes(), aborted); err != nil {
			return false, err
		}
		// The packet just written is whole either way; an abort on the
		// end packet loses the race and the message completes.
		if aborted.Load() && !h.IsEnd() {
			return false, nil
		}
	}
}

// writeRaw submits one region in chunks no larger than the buffer size. A
// chunk cut short by the cancel monitor's deadline is resumed with the
// deadline cleared: the peer's receiver must see whole packets even when
// the message is being abandoned.
func (s *session) writeRaw(p []byte, aborted *atomic.Bool) error {
	for len(p) > 0 {
		n := len(p)
		if n > s.cfg.bufferSize {
			n = s.cfg.bufferSize
		}
		w, err := s.conn.Write(p[:n])
		p = p[w:]
		if err != nil {
			if aborted.Load() && isTimeout(err) {
				s.conn.SetWriteDeadline(time.Time{})
				continue
			}
			return err
		}
	}
	return nil
}

// isTimeout reports a deadline-induced write abort.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isDisconnect classifies errors that mean "the connection ended" rather
// than a watcher-fatal failure.
func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		isPlatformDisconnect(err)
}
