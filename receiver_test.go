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
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
)

// wireBytes serializes each message into its packet run and concatenates
// everything, mimicking what one endpoint puts on the pipe.
func wireBytes(t *testing.T, split int, msgs ...[]byte) []byte {
	t.Helper()
	var out bytes.Buffer
	var hdr [packetHeaderLength]byte
	for _, msg := range msgs {
		s := newSerializer(newBuffer(msg), split)
		for {
			frag, h, ok := s.next()
			if !ok {
				break
			}
			putPacketHeader(hdr[:], h)
			out.Write(hdr[:])
			out.Write(frag.bytes())
		}
	}
	return out.Bytes()
}

type capturedPacket struct {
	header  packetHeader
	payload []byte
}

func capturePackets(into *[]capturedPacket) func(packet) error {
	return func(pkt packet) error {
		*into = append(*into, capturedPacket{
			header:  pkt.header,
			payload: append([]byte(nil), pkt.payload...),
		})
		return nil
	}
}

func TestReceiverWholeStream(t *testing.T) {
	msgs := [][]byte{
		[]byte("hello"),
		[]byte("this is a test"),
		[]byte("of packet reassembly"),
	}
	stream := wireBytes(t, 8, msgs...)

	var got []capturedPacket
	r := newReceiver(64, 1024, capturePackets(&got))
	if err := r.feed(stream); err != nil {
		t.Fatal(err)
	}

	var joined [][]byte
	var cur []byte
	for _, pkt := range got {
		if pkt.header.IsStart() {
			cur = nil
		}
		cur = append(cur, pkt.payload...)
		if pkt.header.IsEnd() {
			joined = append(joined, cur)
		}
	}
	if len(joined) != len(msgs) {
		t.Fatalf("reassembled %d messages, expected %d", len(joined), len(msgs))
	}
	for i := range msgs {
		if !bytes.Equal(joined[i], msgs[i]) {
			t.Fatalf("message %d: %q != %q", i, joined[i], msgs[i])
		}
	}
}

// Property: the packet sequence is identical for any partitioning of the
// stream, including chunks that split headers and bodies.
func TestReceiverFragmentationAgnostic(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	msg := make([]byte, 1000)
	rng.Read(msg)
	stream := wireBytes(t, 100, msg, []byte("tail"))

	var reference []capturedPacket
	r := newReceiver(64, 4096, capturePackets(&reference))
	if err := r.feed(stream); err != nil {
		t.Fatal(err)
	}

	feedInChunks := func(t *testing.T, sizes func() int) []capturedPacket {
		var got []capturedPacket
		r := newReceiver(64, 4096, capturePackets(&got))
		rest := stream
		for len(rest) > 0 {
			n := sizes()
			if n > len(rest) {
				n = len(rest)
			}
			if err := r.feed(rest[:n]); err != nil {
				t.Fatal(err)
			}
			rest = rest[n:]
		}
		return got
	}

	samePackets := func(t *testing.T, got []capturedPacket) {
		t.Helper()
		if len(got) != len(reference) {
			t.Fatalf("%d packets, expected %d", len(got), len(reference))
		}
		for i := range got {
			if got[i].header != reference[i].header || !bytes.Equal(got[i].payload, reference[i].payload) {
				t.Fatalf("packet %d differs", i)
			}
		}
	}

	t.Run("byte at a time", func(t *testing.T) {
		samePackets(t, feedInChunks(t, func() int { return 1 }))
	})
	t.Run("header splitting chunks", func(t *testing.T) {
		samePackets(t, feedInChunks(t, func() int { return 3 }))
	})
	t.Run("random chunks", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			samePackets(t, feedInChunks(t, func() int { return 1 + rng.Intn(200) }))
		}
	})
}

func TestReceiverResumesAcrossReset(t *testing.T) {
	var got []capturedPacket
	r := newReceiver(64, 1024, capturePackets(&got))

	// Leave the receiver mid-body, as after a peer disconnect.
	stream := wireBytes(t, 64, []byte("interrupted message"))
	if err := r.feed(stream[:packetHeaderLength+4]); err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatal("no packet should have completed")
	}
	r.reset()

	// A fresh stream parses from a clean slate.
	if err := r.feed(wireBytes(t, 64, []byte("next client"))); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !bytes.Equal(got[0].payload, []byte("next client")) {
		t.Fatalf("unexpected packets after reset: %+v", got)
	}
}

func TestReceiverRejectsBadHeader(t *testing.T) {
	var hdr [packetHeaderLength]byte
	binary.LittleEndian.PutUint32(hdr[:4], packetHeaderLength-1) // size below header length
	binary.LittleEndian.PutUint16(hdr[4:6], packetHeaderLength)

	r := newReceiver(64, 1024, func(packet) error { return nil })
	if err := r.feed(hdr[:]); !errors.Is(err, ErrBadHeader) {
		t.Fatalf("expected ErrBadHeader, got %v", err)
	}
}

func TestReceiverRejectsOversizePacket(t *testing.T) {
	var hdr [packetHeaderLength]byte
	binary.LittleEndian.PutUint32(hdr[:4], packetHeaderLength+2048)
	binary.LittleEndian.PutUint16(hdr[4:6], packetHeaderLength)

	r := newReceiver(64, 1024, func(packet) error { return nil })
	var tooLarge *MessageTooLargeErr
	if err := r.feed(hdr[:]); !errors.As(err, &tooLarge) {
		t.Fatalf("expected MessageTooLargeErr, got %v", err)
	}
}

func TestReceiverRejectsBadHeaderAssembledFromFragments(t *testing.T) {
	var hdr [packetHeaderLength]byte
	binary.LittleEndian.PutUint32(hdr[:4], packetHeaderLength+2048)
	binary.LittleEndian.PutUint16(hdr[4:6], packetHeaderLength)

	r := newReceiver(64, 1024, func(packet) error { return nil })
	// First half of the header alone cannot be validated yet.
	if err := r.feed(hdr[:4]); err != nil {
		t.Fatal(err)
	}
	var tooLarge *MessageTooLargeErr
	if err := r.feed(hdr[4:]); !errors.As(err, &tooLarge) {
		t.Fatalf("expected MessageTooLargeErr, got %v", err)
	}
}
