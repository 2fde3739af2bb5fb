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

import "github.com/pkg/errors"

// deserializer concatenates packet payloads across a start..end run into
// one message. Exactly one delivery happens per completed run, in order;
// the delivered buffer is valid for the duration of the callback only.
type deserializer struct {
	expectStart bool
	pool        []byte
	limit       int
	onMessage   func([]byte) error
}

func newDeserializer(reserve, limit int, onMessage func([]byte) error) *deserializer {
	return &deserializer{
		expectStart: true,
		pool:        make([]byte, 0, reserve),
		limit:       limit,
		onMessage:   onMessage,
	}
}

// feed consumes one reassembled packet. It reports false when the packet
// was a cancel marker that voided the in-progress run.
func (d *deserializer) feed(pkt packet) (bool, error) {
	if pkt.header.IsCancel() {
		// The sender abandoned the run; drop whatever accumulated.
		d.pool = d.pool[:0]
		d.expectStart = true
		return false, nil
	}
	if d.expectStart {
		if !pkt.header.IsStart() {
			return false, errors.Wrap(ErrProtocol, "continuation packet while expecting a message start")
		}
		d.pool = d.pool[:0]
		d.expectStart = false
	} else if pkt.header.IsStart() {
		// A fresh start supersedes an unterminated run.
		d.pool = d.pool[:0]
	}
	d.pool = append(d.pool, pkt.payload...)
	if err := MessageTooLargeError(int64(len(d.pool)), d.limit); err != nil {
		return false, err
	}
	if pkt.header.IsEnd() {
		d.expectStart = true
		return true, d.onMessage(d.pool)
	}
	return true, nil
}

// reset discards any partially accumulated run.
func (d *deserializer) reset() {
	d.pool = d.pool[:0]
	d.expectStart = true
}
