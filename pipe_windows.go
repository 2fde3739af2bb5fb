//go:build windows

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
	"time"

	"github.com/Microsoft/go-winio"
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// NewServer creates the named pipe instance (duplex byte-stream,
// overlapped, local clients only) under `\\.\pipe\<name>` naming and
// starts the server endpoint. A name that is already bound fails loudly.
func NewServer(name string, handler Handler, opts ...Option) (*Server, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	l, err := winio.ListenPipe(name, &winio.PipeConfig{
		SecurityDescriptor: cfg.securityDescriptor,
		InputBufferSize:    int32(cfg.bufferSize),
		OutputBufferSize:   int32(cfg.bufferSize),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create pipe %s", name)
	}
	srv, err := NewServerWithListener(l, handler, opts...)
	if err != nil {
		l.Close()
		return nil, err
	}
	srv.name = name
	return srv, nil
}

// NewClient waits for the named pipe to become connectable, with the OS
// default timeout unless WithDialTimeout overrides it, and opens it in
// duplex overlapped mode. Opening a non-existent name fails immediately.
func NewClient(name string, handler Handler, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	var timeout *time.Duration
	if cfg.dialTimeout > 0 {
		t := cfg.dialTimeout
		timeout = &t
	}
	conn, err := winio.DialPipe(name, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "open pipe %s", name)
	}
	c, err := NewClientConn(conn, handler, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.name = name
	return c, nil
}

// isPlatformDisconnect classifies the win32 peer-closed conditions the
// read and write paths can surface.
func isPlatformDisconnect(err error) bool {
	return errors.Is(err, windows.ERROR_BROKEN_PIPE) ||
		errors.Is(err, windows.ERROR_PIPE_NOT_CONNECTED) ||
		errors.Is(err, windows.ERROR_PIPE_LISTENING) ||
		errors.Is(err, windows.ERROR_NO_DATA) ||
		errors.Is(err, winio.ErrFileClosed)
}
