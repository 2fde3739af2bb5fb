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
	"io"

	"github.com/pkg/errors"
)

// buffer is a non-owning cursor over a contiguous byte region. It never
// outlives the slice it was built from; callers pass buffers strictly down
// the call stack.
type buffer struct {
	b []byte
}

func newBuffer(b []byte) buffer {
	return buffer{b: b}
}

func (b buffer) len() int {
	return len(b.b)
}

func (b buffer) empty() bool {
	return len(b.b) == 0
}

func (b buffer) bytes() []byte {
	return b.b
}

// consume advances the cursor by n bytes and returns a view of the skipped
// region.
func (b *buffer) consume(n int) (buffer, error) {
	if n > len(b.b) {
		return buffer{}, errors.Wrapf(io.ErrShortBuffer, "consume %d bytes of %d", n, len(b.b))
	}
	skipped := b.b[:n]
	b.b = b.b[n:]
	return buffer{b: skipped}, nil
}
