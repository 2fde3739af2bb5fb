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
	"encoding/binary"
	"math"
)

const (
	// packetHeaderLength is the fixed length of the frame header sent in
	// front of every payload fragment.
	packetHeaderLength = 8

	// MaxDataSize is the largest message a single packet run can carry.
	MaxDataSize = math.MaxUint32 - packetHeaderLength
)

const (
	flagStart  uint16 = 1 << 0
	flagEnd    uint16 = 1 << 1
	flagCancel uint16 = 1 << 2
)

// packetHeader represents the fixed-length packet header of 8 bytes sent
// in front of every fragment. All fields are little-endian on the wire.
type packetHeader struct {
	Size       uint32 // total packet length including this header. b[:4]
	DataOffset uint16 // offset from header start to payload; = 8.  b[4:6]
	Flags      uint16 // bit 0 start, bit 1 end, bit 2 cancel.      b[6:8]
}

// dataHeader builds the header for a payload fragment of dataSize bytes.
func dataHeader(dataSize uint32, start, end bool) packetHeader {
	var flags uint16
	if start {
		flags |= flagStart
	}
	if end {
		flags |= flagEnd
	}
	return packetHeader{
		Size:       packetHeaderLength + dataSize,
		DataOffset: packetHeaderLength,
		Flags:      flags,
	}
}

// cancelHeader builds the header-only packet that voids the peer's
// in-progress reassembly.
func cancelHeader() packetHeader {
	return packetHeader{
		Size:       packetHeaderLength,
		DataOffset: packetHeaderLength,
		Flags:      flagCancel,
	}
}

func parsePacketHeader(p []byte) packetHeader {
	return packetHeader{
		Size:       binary.LittleEndian.Uint32(p[:4]),
		DataOffset: binary.LittleEndian.Uint16(p[4:6]),
		Flags:      binary.LittleEndian.Uint16(p[6:8]),
	}
}

func putPacketHeader(p []byte, h packetHeader) {
	binary.LittleEndian.PutUint32(p[:4], h.Size)
	binary.LittleEndian.PutUint16(p[4:6], h.DataOffset)
	binary.LittleEndian.PutUint16(p[6:8], h.Flags)
}

func (h packetHeader) DataSize() uint32 {
	return h.Size - uint32(h.DataOffset)
}

func (h packetHeader) IsStart() bool {
	return h.Flags&flagStart != 0
}

func (h packetHeader) IsEnd() bool {
	return h.Flags&flagEnd != 0
}

func (h packetHeader) IsCancel() bool {
	return h.Flags&flagCancel != 0
}

// validate performs the structural checks applied to every inbound header
// before its packet is assembled.
func (h packetHeader) validate(limit int) error {
	if h.Size < packetHeaderLength {
		return headerError("declared size %d below header length", h.Size)
	}
	if h.DataOffset < packetHeaderLength {
		return headerError("data offset %d below header length", h.DataOffset)
	}
	if uint64(h.DataSize()) > uint64(limit) {
		return MessageTooLargeError(int64(h.DataSize()), limit)
	}
	if uint32(h.DataOffset) > h.Size {
		return headerError("data offset %d beyond declared size %d", h.DataOffset, h.Size)
	}
	return nil
}
