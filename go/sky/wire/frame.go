/*
Copyright 2026 The SkyServ Authors.

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

// Package wire implements the framed byte stream carried between workers
// and the czar.
//
// A frame is a 4-byte little-endian header length, the header itself, and a
// payload of exactly Header.PayloadLen bytes. The header carries the md5 of
// the payload; a mismatch is result corruption, never a transport error.
// The first frame of a stream carries the row schema, subsequent frames
// carry rows only, and the last frame has the end-of-stream flag set.
package wire

import (
	"crypto/md5"

	"skyserv.io/skyserv/go/sky/skyerrors"
)

// ProtocolVersion is the only frame version this build understands.
const ProtocolVersion = 1

// Header flags.
const (
	// FlagEndOfStream marks the last frame of a sub-job's stream.
	FlagEndOfStream = 0x01
	// FlagSchema marks a frame whose payload starts with a schema
	// descriptor. Only valid on the first frame.
	FlagSchema = 0x02
)

// headerSize is the encoded size of a Header: version, flags, user query id,
// chunk id, attempt, session id, payload length and md5.
const headerSize = 1 + 1 + 8 + 4 + 4 + 8 + 4 + md5.Size

// maxHeaderSize bounds the length prefix so a corrupt stream cannot make us
// allocate arbitrary memory.
const maxHeaderSize = 1024

// Header describes one frame of a sub-job result stream.
type Header struct {
	Version     uint8
	Flags       uint8
	UserQueryID uint64
	ChunkID     uint32
	Attempt     uint32
	SessionID   uint64
	PayloadLen  uint32
	MD5         [md5.Size]byte
}

// EndOfStream reports whether this is the stream's final frame.
func (h *Header) EndOfStream() bool {
	return h.Flags&FlagEndOfStream != 0
}

// HasSchema reports whether the payload starts with a schema descriptor.
func (h *Header) HasSchema() bool {
	return h.Flags&FlagSchema != 0
}

// EncodeFrame assembles a complete frame for the given payload, computing
// the payload length and md5.
func EncodeFrame(h Header, payload []byte) []byte {
	h.Version = ProtocolVersion
	h.PayloadLen = uint32(len(payload))
	h.MD5 = md5.Sum(payload)

	data := make([]byte, 4+headerSize+len(payload))
	pos := writeUint32(data, 0, headerSize)
	data[pos] = h.Version
	data[pos+1] = h.Flags
	pos += 2
	pos = writeUint64(data, pos, h.UserQueryID)
	pos = writeUint32(data, pos, h.ChunkID)
	pos = writeUint32(data, pos, h.Attempt)
	pos = writeUint64(data, pos, h.SessionID)
	pos = writeUint32(data, pos, h.PayloadLen)
	pos += copy(data[pos:], h.MD5[:])
	copy(data[pos:], payload)
	return data
}

// DecodeFrame parses and validates one complete frame. It enforces that the
// size prefix fits the promised header size, that the declared payload
// length matches the remaining bytes, and that the payload md5 equals the
// header's. Validation failures return DataLoss errors.
func DecodeFrame(data []byte) (Header, []byte, error) {
	var h Header
	declared, pos, ok := readUint32(data, 0)
	if !ok {
		return h, nil, skyerrors.New(skyerrors.DataLoss, "frame too short for size prefix")
	}
	if declared != headerSize {
		if declared > maxHeaderSize {
			return h, nil, skyerrors.Errorf(skyerrors.DataLoss, "frame header size %d exceeds limit %d", declared, maxHeaderSize)
		}
		return h, nil, skyerrors.Errorf(skyerrors.DataLoss, "frame header size %d, want %d", declared, headerSize)
	}
	if len(data) < pos+headerSize {
		return h, nil, skyerrors.New(skyerrors.DataLoss, "frame truncated inside header")
	}

	h.Version = data[pos]
	h.Flags = data[pos+1]
	pos += 2
	h.UserQueryID, pos, _ = readUint64(data, pos)
	h.ChunkID, pos, _ = readUint32(data, pos)
	h.Attempt, pos, _ = readUint32(data, pos)
	h.SessionID, pos, _ = readUint64(data, pos)
	h.PayloadLen, pos, _ = readUint32(data, pos)
	pos += copy(h.MD5[:], data[pos:pos+md5.Size])

	if h.Version != ProtocolVersion {
		return h, nil, skyerrors.Errorf(skyerrors.DataLoss, "frame version %d, want %d", h.Version, ProtocolVersion)
	}
	payload := data[pos:]
	if len(payload) != int(h.PayloadLen) {
		return h, nil, skyerrors.Errorf(skyerrors.DataLoss, "frame payload length %d, header declares %d", len(payload), h.PayloadLen)
	}
	if md5.Sum(payload) != h.MD5 {
		return h, nil, skyerrors.New(skyerrors.DataLoss, "frame payload md5 mismatch")
	}
	return h, payload, nil
}
