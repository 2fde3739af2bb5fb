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
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Server is the accepting endpoint of a pipe. It admits one client at a
// time: after a client disconnects, the server re-arms and the next
// connect eventually succeeds. All events are delivered through the
// handler passed at construction.
type Server struct {
	name    string
	lis     net.Listener
	handler Handler
	cfg     *config
	log     *logrus.Entry
	pipe    *pipeline

	mu        sync.Mutex
	sess      *session
	connected atomic.Int32

	err       error // set before done is closed
	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// NewServerWithListener runs a server endpoint over an established
// listener. The listener is owned by the server and closed with it. Use
// NewServer to create the endpoint from a pipe name on Windows.
func NewServerWithListener(l net.Listener, handler Handler, opts ...Option) (*Server, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Server{
		lis:     l,
		handler: handler,
		cfg:     cfg,
		log:     cfg.logger,
		pipe:    newPipeline(cfg, handler),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.watch()
	return s, nil
}

// watch is the endpoint's watcher: it admits one client, serves its
// session to disconnection, then re-arms for the next client until the
// server closes or dies on an error.
func (s *Server) watch() {
	defer close(s.done)
	defer s.lis.Close()
	for {
		conn, err := s.lis.Accept()
		if err != nil {
			if s.closing() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.fail(errors.Wrap(err, "pipe accept failed"))
			return
		}
		if s.closing() {
			conn.Close()
			return
		}
		if err := s.serve(conn); err != nil {
			s.fail(err)
			return
		}
		if s.closing() {
			return
		}
		s.log.Debug("re-arming for next client")
	}
}

func (s *Server) serve(conn net.Conn) error {
	sess := newSession(conn, s.handler, s.cfg, s.pipe)
	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
	s.connected.Add(1)
	s.log.Debug("client connected")

	err := sess.deliver(Event{Type: Connected})
	if err == nil {
		err = sess.readLoop()
	}

	s.mu.Lock()
	s.sess = nil
	s.mu.Unlock()
	sess.close()
	// The pools survive the connection; clear them for the next client.
	s.pipe.reset()

	if s.connected.Load() > 0 {
		s.connected.Add(-1)
	}
	if err != nil {
		// Watcher-fatal; surfaces as the terminal Exception event.
		return err
	}
	s.log.Debug("client disconnected")
	return sess.deliver(Event{Type: Disconnected})
}

// fail records the watcher's terminal error and emits the final Exception
// event. A handler panic at this point has nowhere further to go and is
// dropped.
func (s *Server) fail(err error) {
	s.err = err
	s.log.WithError(err).Error("pipe watcher failed")
	func() {
		defer func() { _ = recover() }()
		s.handler(Event{Type: Exception, Err: err})
	}()
	s.shutdown()
}

func (s *Server) closing() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Server) shutdown() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.lis.Close()
		s.mu.Lock()
		sess := s.sess
		s.mu.Unlock()
		if sess != nil {
			sess.close()
		}
	})
}

// Write sends one message to the attached client. It fails with
// ErrNotConnected when no client is attached and ErrClosed after Close.
// Cancellation follows the contract described on session.write.
func (s *Server) Write(ctx context.Context, p []byte) error {
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess == nil {
		if s.closing() {
			return ErrClosed
		}
		return ErrNotConnected
	}
	return sess.write(ctx, p)
}

// Disconnect drops the attached client after draining any in-flight
// write, then re-arms for the next connection. It is a no-op when no
// client is attached.
func (s *Server) Disconnect() error {
	if s.connected.Load() == 0 {
		return nil
	}
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess == nil {
		return nil
	}
	sess.drain()
	sess.close()
	return nil
}

// Close shuts the endpoint down and waits for the watcher to exit. It may
// be called any number of times from any goroutine; the pipe is closed
// exactly once.
func (s *Server) Close() error {
	s.shutdown()
	<-s.done
	return nil
}

// Err returns the watcher's terminal error once the endpoint has stopped.
func (s *Server) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Valid reports whether the endpoint's watcher is still running.
func (s *Server) Valid() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// PipeName returns the name the pipe was created with, when known.
func (s *Server) PipeName() string {
	return s.name
}
