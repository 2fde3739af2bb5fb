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
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBufferSize is the pipe buffer and write split size used when
	// no option overrides it.
	DefaultBufferSize = 64 * 1024

	// MinBufferSize is the smallest allowed buffer: enough for a packet
	// header plus a token of payload.
	MinBufferSize = 40
)

type config struct {
	bufferSize         int
	limit              int
	logger             *logrus.Entry
	securityDescriptor string
	dialTimeout        time.Duration
}

// defaultMessageLimit is MaxDataSize clamped to the platform int.
var defaultMessageLimit = int(min(int64(MaxDataSize), int64(math.MaxInt)))

func defaultConfig() *config {
	return &config{
		bufferSize: DefaultBufferSize,
		limit:      defaultMessageLimit,
		logger:     logrus.NewEntry(logrus.StandardLogger()),
	}
}

func (c *config) validate() error {
	if c.bufferSize < MinBufferSize {
		return errors.Errorf("simplepipe: buffer size %d below minimum %d", c.bufferSize, MinBufferSize)
	}
	if c.limit <= 0 || int64(c.limit) > int64(MaxDataSize) {
		return errors.Errorf("simplepipe: message limit %d out of range", c.limit)
	}
	return nil
}

// Option configures an endpoint.
type Option func(*config)

// WithBufferSize overrides the pipe buffer and write split size. Sizes
// below MinBufferSize are rejected by the endpoint constructor.
func WithBufferSize(n int) Option {
	return func(c *config) {
		c.bufferSize = n
	}
}

// WithMessageLimit caps the size of a deserialized message. The default is
// MaxDataSize.
func WithMessageLimit(n int) Option {
	return func(c *config) {
		c.limit = n
	}
}

// WithLogger routes the endpoint's diagnostics through the given entry.
func WithLogger(l *logrus.Entry) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithSecurityDescriptor applies an SDDL security descriptor to the pipe
// instance. Only meaningful for servers.
func WithSecurityDescriptor(sddl string) Option {
	return func(c *config) {
		c.securityDescriptor = sddl
	}
}

// WithDialTimeout bounds how long a client waits for the pipe to become
// connectable. Only meaningful for clients; zero means the OS default.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) {
		c.dialTimeout = d
	}
}
