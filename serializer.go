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

// serializer chops one message into header-prefixed fragments no larger
// than the split size. It is a lazy, finite, non-restartable sequence: a
// fixed split bounded by the per-write buffer lets the write path stream
// messages of arbitrary length without holding a second copy of the
// payload.
type serializer struct {
	buf   buffer
	split int
	first bool
}

// newSerializer requires split > 0.
func newSerializer(buf buffer, split int) *serializer {
	return &serializer{
		buf:   buf,
		split: split,
		first: true,
	}
}

// next returns the next payload fragment and its header. ok is false once
// the message is exhausted; subsequent calls keep returning ok == false.
// An empty message yields no fragments at all.
func (s *serializer) next() (buffer, packetHeader, bool) {
	if s.buf.empty() {
		return buffer{}, packetHeader{}, false
	}
	n := s.split
	if n > s.buf.len() {
		n = s.buf.len()
	}
	frag, err := s.buf.consume(n)
	if err != nil {
		// n is clamped to the remaining length above.
		panic(err)
	}
	h := dataHeader(uint32(n), s.first, s.buf.empty())
	s.first = false
	return frag, h, true
}
