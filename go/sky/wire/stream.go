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

import (
	"io"

	"skyserv.io/skyserv/go/sky/skyerrors"
)

// ReadFrame reads exactly one frame from r and returns its raw bytes,
// suitable for DecodeFrame. It returns io.EOF only on a clean boundary;
// a stream ending mid-frame is io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	declared, _, _ := readUint32(prefix[:], 0)
	if declared != headerSize {
		if declared > maxHeaderSize {
			return nil, skyerrors.Errorf(skyerrors.DataLoss,
				"frame header size %d exceeds limit %d", declared, maxHeaderSize)
		}
		return nil, skyerrors.Errorf(skyerrors.DataLoss,
			"frame header size %d, want %d", declared, headerSize)
	}

	frame := make([]byte, 4+headerSize)
	copy(frame, prefix[:])
	if _, err := io.ReadFull(r, frame[4:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	// PayloadLen sits after version, flags, query id, chunk id, attempt
	// and session id.
	const payloadLenOffset = 4 + 1 + 1 + 8 + 4 + 4 + 8
	payloadLen, _, _ := readUint32(frame, payloadLenOffset)

	frame = append(frame, make([]byte, payloadLen)...)
	if _, err := io.ReadFull(r, frame[4+headerSize:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return frame, nil
}
