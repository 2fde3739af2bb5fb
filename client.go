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

	"github.com/sirupsen/logrus"
)

// Client is the connecting endpoint of a pipe. Disconnection is terminal:
// once the server side drops, the client delivers Disconnected and all
// further writes fail with ErrClosed.
type Client struct {
	name string
	sess *session
	log  *logrus.Entry
	err  error // set before done is closed
	done chan struct{}
}

// NewClientConn runs a client endpoint over an established connection.
// The connection is owned by the client and closed with it. Use NewClient
// to open the endpoint from a pipe name on Windows.
func NewClientConn(conn net.Conn, handler Handler, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Client{
		sess: newSession(conn, handler, cfg, newPipeline(cfg, handler)),
		log:  cfg.logger,
		done: make(chan struct{}),
	}
	go c.watch()
	return c, nil
}

// watch is the endpoint's watcher: one session, served to its end.
func (c *Client) watch() {
	defer close(c.done)

	err := c.sess.deliver(Event{Type: Connected})
	if err == nil {
		err = c.sess.readLoop()
	}
	c.sess.close()

	if err == nil {
		c.log.Debug("pipe disconnected")
		err = c.sess.deliver(Event{Type: Disconnected})
	}
	if err != nil {
		c.err = err
		c.log.WithError(err).Error("pipe watcher failed")
		func() {
			defer func() { _ = recover() }()
			c.sess.handler(Event{Type: Exception, Err: err})
		}()
	}
}

// Write sends one message to the server. Cancellation follows the
// contract described on session.write.
func (c *Client) Write(ctx context.Context, p []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return c.sess.write(ctx, p)
}

// Close shuts the endpoint down and waits for the watcher to exit. It may
// be called any number of times from any goroutine; the pipe is closed
// exactly once.
func (c *Client) Close() error {
	c.sess.close()
	<-c.done
	return nil
}

// Err returns the watcher's terminal error once the endpoint has stopped.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Valid reports whether the endpoint's watcher is still running.
func (c *Client) Valid() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// PipeName returns the name the pipe was opened with, when known.
func (c *Client) PipeName() string {
	return c.name
}
