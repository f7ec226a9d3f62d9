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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyserv.io/skyserv/go/sky/skyerrors"
)

var testSchema = Schema{
	{Name: "objectId", Type: "BIGINT"},
	{Name: "ra", Type: "DOUBLE"},
	{Name: "decl", Type: "DOUBLE"},
}

func testBatch() *RowBatch {
	return &RowBatch{
		Schema: testSchema,
		Rows: []Row{
			{[]byte("433327840428745"), []byte("1.227424"), []byte("-87.11")},
			{[]byte("433327840428746"), nil, []byte("0")},
		},
	}
}

func TestFrameRoundTrip(t *testing.T) {
	batch := testBatch()
	payload := batch.EncodePayload(true)
	data := EncodeFrame(Header{
		Flags:       FlagSchema | FlagEndOfStream,
		UserQueryID: 42,
		ChunkID:     1234,
		Attempt:     2,
		SessionID:   99,
	}, payload)

	h, got, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.True(t, h.EndOfStream())
	assert.True(t, h.HasSchema())
	assert.EqualValues(t, 42, h.UserQueryID)
	assert.EqualValues(t, 1234, h.ChunkID)
	assert.EqualValues(t, 2, h.Attempt)

	decoded, err := DecodePayload(got, h.HasSchema(), nil)
	require.NoError(t, err)
	assert.Equal(t, batch.Schema, decoded.Schema)
	assert.Equal(t, batch.Rows, decoded.Rows)
	// The NULL cell must survive as nil, not empty.
	assert.Nil(t, decoded.Rows[1][1])
	assert.NotNil(t, decoded.Rows[1][2])
}

func TestRowsOnlyFrameNeedsSchema(t *testing.T) {
	batch := testBatch()
	payload := batch.EncodePayload(false)

	_, err := DecodePayload(payload, false, nil)
	require.Error(t, err)
	assert.Equal(t, skyerrors.DataLoss, skyerrors.CodeOf(err))

	decoded, err := DecodePayload(payload, false, testSchema)
	require.NoError(t, err)
	assert.Equal(t, batch.Rows, decoded.Rows)
}

func TestDecodeFrameCorruption(t *testing.T) {
	payload := testBatch().EncodePayload(true)
	data := EncodeFrame(Header{Flags: FlagSchema, UserQueryID: 1, ChunkID: 2}, payload)

	// Flip one payload byte: md5 check must fire.
	mangled := append([]byte(nil), data...)
	mangled[len(mangled)-1] ^= 0x40
	_, _, err := DecodeFrame(mangled)
	require.Error(t, err)
	assert.Equal(t, skyerrors.DataLoss, skyerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "md5")

	// Truncate the payload: declared length check must fire.
	_, _, err = DecodeFrame(data[:len(data)-3])
	require.Error(t, err)
	assert.Equal(t, skyerrors.DataLoss, skyerrors.CodeOf(err))

	// Oversized header length prefix is rejected outright.
	huge := append([]byte(nil), data...)
	huge[0] = 0xff
	huge[1] = 0xff
	huge[2] = 0xff
	huge[3] = 0x7f
	_, _, err = DecodeFrame(huge)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")

	// Short input.
	_, _, err = DecodeFrame([]byte{1, 2})
	require.Error(t, err)
}

func TestDecodePayloadHugeCounts(t *testing.T) {
	// The md5 only covers transport corruption; a worker writes its own
	// checksum, so declared counts must not drive allocations past the
	// actual payload size.
	huge := make([]byte, 9)
	writeLenEncInt(huge, 0, 1<<62)

	_, err := DecodePayload(huge, false, testSchema)
	require.Error(t, err)
	assert.Equal(t, skyerrors.DataLoss, skyerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "rows")

	_, err = DecodePayload(huge, true, nil)
	require.Error(t, err)
	assert.Equal(t, skyerrors.DataLoss, skyerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "columns")
}

func TestSchemaEqual(t *testing.T) {
	assert.True(t, testSchema.Equal(testSchema))
	assert.False(t, testSchema.Equal(testSchema[:2]))
	other := append(Schema{}, testSchema...)
	other[1].Type = "FLOAT"
	assert.False(t, testSchema.Equal(other))
}

func TestLenEncRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 250, 251, 1 << 15, 1 << 20, 1 << 40} {
		data := make([]byte, 9)
		end := writeLenEncInt(data, 0, v)
		assert.Equal(t, lenEncIntSize(v), end)
		got, next, ok := readLenEncInt(data, 0)
		require.True(t, ok)
		assert.Equal(t, v, got)
		assert.Equal(t, end, next)
	}
}
