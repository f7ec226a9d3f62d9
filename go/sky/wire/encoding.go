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

package wire

// This file contains the low-level encoding and decoding functions.
//
// The same assumptions are made for all the encoding functions:
// - there is enough space to write the data in the buffer. If not, we
// will panic with out of bounds.
// - all functions start writing at 'pos' in the buffer, and return the next
// position.

func lenEncIntSize(i uint64) int {
	switch {
	case i < 251:
		return 1
	case i < 1<<16:
		return 3
	case i < 1<<24:
		return 4
	default:
		return 9
	}
}

func writeLenEncInt(data []byte, pos int, i uint64) int {
	// reslice at pos to avoid doing arithmetic below
	data = data[pos:]

	switch {
	case i < 251:
		data[0] = byte(i)
		return pos + 1
	case i < 1<<16:
		_ = data[2] // early bounds check
		data[0] = 0xfc
		data[1] = byte(i)
		data[2] = byte(i >> 8)
		return pos + 3
	case i < 1<<24:
		_ = data[3] // early bounds check
		data[0] = 0xfd
		data[1] = byte(i)
		data[2] = byte(i >> 8)
		data[3] = byte(i >> 16)
		return pos + 4
	default:
		_ = data[8] // early bounds check
		data[0] = 0xfe
		data[1] = byte(i)
		data[2] = byte(i >> 8)
		data[3] = byte(i >> 16)
		data[4] = byte(i >> 24)
		data[5] = byte(i >> 32)
		data[6] = byte(i >> 40)
		data[7] = byte(i >> 48)
		data[8] = byte(i >> 56)
		return pos + 9
	}
}

func readLenEncInt(data []byte, pos int) (uint64, int, bool) {
	if pos >= len(data) {
		return 0, 0, false
	}
	switch data[pos] {
	case 0xfc:
		if pos+2 >= len(data) {
			return 0, 0, false
		}
		return uint64(data[pos+1]) |
			uint64(data[pos+2])<<8, pos + 3, true
	case 0xfd:
		if pos+3 >= len(data) {
			return 0, 0, false
		}
		return uint64(data[pos+1]) |
			uint64(data[pos+2])<<8 |
			uint64(data[pos+3])<<16, pos + 4, true
	case 0xfe:
		if pos+8 >= len(data) {
			return 0, 0, false
		}
		return uint64(data[pos+1]) |
			uint64(data[pos+2])<<8 |
			uint64(data[pos+3])<<16 |
			uint64(data[pos+4])<<24 |
			uint64(data[pos+5])<<32 |
			uint64(data[pos+6])<<40 |
			uint64(data[pos+7])<<48 |
			uint64(data[pos+8])<<56, pos + 9, true
	default:
		return uint64(data[pos]), pos + 1, true
	}
}

func lenEncStringSize(value string) int {
	l := len(value)
	return lenEncIntSize(uint64(l)) + l
}

func writeLenEncString(data []byte, pos int, value string) int {
	pos = writeLenEncInt(data, pos, uint64(len(value)))
	return pos + copy(data[pos:], value)
}

func readLenEncString(data []byte, pos int) (string, int, bool) {
	size, pos, ok := readLenEncInt(data, pos)
	if !ok {
		return "", 0, false
	}
	s := int(size)
	if pos+s > len(data) {
		return "", 0, false
	}
	return string(data[pos : pos+s]), pos + s, true
}

func readLenEncBytes(data []byte, pos int) ([]byte, int, bool) {
	size, pos, ok := readLenEncInt(data, pos)
	if !ok {
		return nil, 0, false
	}
	s := int(size)
	if pos+s > len(data) {
		return nil, 0, false
	}
	out := make([]byte, s)
	copy(out, data[pos:pos+s])
	return out, pos + s, true
}

func writeUint32(data []byte, pos int, value uint32) int {
	_ = data[pos+3] // early bounds check
	data[pos] = byte(value)
	data[pos+1] = byte(value >> 8)
	data[pos+2] = byte(value >> 16)
	data[pos+3] = byte(value >> 24)
	return pos + 4
}

func readUint32(data []byte, pos int) (uint32, int, bool) {
	if pos+3 >= len(data) {
		return 0, 0, false
	}
	return uint32(data[pos]) |
		uint32(data[pos+1])<<8 |
		uint32(data[pos+2])<<16 |
		uint32(data[pos+3])<<24, pos + 4, true
}

func writeUint64(data []byte, pos int, value uint64) int {
	pos = writeUint32(data, pos, uint32(value))
	return writeUint32(data, pos, uint32(value>>32))
}

func readUint64(data []byte, pos int) (uint64, int, bool) {
	low, pos, ok := readUint32(data, pos)
	if !ok {
		return 0, 0, false
	}
	high, pos, ok := readUint32(data, pos)
	if !ok {
		return 0, 0, false
	}
	return uint64(low) | uint64(high)<<32, pos, true
}
