package protocol

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeInt(v int32) []byte {
	out := NewScratchOutput()
	EncodeVLQInt(out, v)
	return append([]byte(nil), out.Result()...)
}

func TestVLQEncoding(t *testing.T) {
	tests := []struct {
		name string
		v    int32
		want []byte
	}{
		{"zero", 0, []byte{0x00}},
		{"busy", -1, []byte{0x7F}},
		{"echo timeout", -2, []byte{0x7E}},
		{"no echo start", -3, []byte{0x7D}},
		{"largest one byte", 95, []byte{0x5F}},
		{"smallest two byte", 96, []byte{0x80, 0x60}},
		{"smallest negative one byte", -32, []byte{0x60}},
		{"negative two byte", -33, []byte{0xFF, 0x5F}},
		{"echo of 1900us", 1900, []byte{0x8E, 0x6C}},
		{"echo deadline", 50000, []byte{0x83, 0x86, 0x50}},
		{"max int32", math.MaxInt32, []byte{0x87, 0xFF, 0xFF, 0xFF, 0x7F}},
		{"min int32", math.MinInt32, []byte{0xF8, 0x80, 0x80, 0x80, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := encodeInt(tt.v)
			assert.Equal(t, tt.want, got)

			v, err := DecodeVLQInt(&got)
			require.NoError(t, err)
			assert.Equal(t, tt.v, v)
			assert.Empty(t, got, "all bytes consumed")
		})
	}
}

func TestVLQUintWrapsThroughInt(t *testing.T) {
	// Clock values past 2^31 travel as negative ints
	for _, v := range []uint32{0, 127, 0x7FFFFFFF, 0x80000000, 0xFFFFFF00, math.MaxUint32} {
		out := NewScratchOutput()
		EncodeVLQUint(out, v)
		data := out.Result()

		got, err := DecodeVLQUint(&data)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestVLQResultPayload(t *testing.T) {
	out := NewScratchOutput()
	EncodeVLQUint(out, 4)          // oid
	EncodeVLQInt(out, -2)          // err
	EncodeVLQUint(out, 0)          // delay_us
	EncodeVLQUint(out, 0xFFFFFFF0) // clock
	data := out.Result()

	oid, err := DecodeVLQUint(&data)
	require.NoError(t, err)
	code, err := DecodeVLQInt(&data)
	require.NoError(t, err)
	delay, err := DecodeVLQUint(&data)
	require.NoError(t, err)
	clock, err := DecodeVLQUint(&data)
	require.NoError(t, err)

	assert.Equal(t, []uint32{4, 0, 0xFFFFFFF0}, []uint32{oid, delay, clock})
	assert.Equal(t, int32(-2), code)
	assert.Empty(t, data)
}

func TestVLQBytes(t *testing.T) {
	for _, payload := range [][]byte{{}, {0x78, 0x9C}, make([]byte, 40)} {
		out := NewScratchOutput()
		EncodeVLQUint(out, 120) // identify_response offset
		EncodeVLQBytes(out, payload)
		data := out.Result()

		offset, err := DecodeVLQUint(&data)
		require.NoError(t, err)
		assert.Equal(t, uint32(120), offset)

		got, err := DecodeVLQBytes(&data)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
		assert.Empty(t, data)
	}
}

func TestVLQDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{"empty", nil, ErrBufferTooSmall},
		{"truncated continuation", []byte{0x80}, ErrBufferTooSmall},
		{"six groups", []byte{0x81, 0x81, 0x81, 0x81, 0x81, 0x01}, ErrInvalidVLQ},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data
			_, err := DecodeVLQInt(&data)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.data, data, "input left unchanged on error")
		})
	}

	data := []byte{0x05, 0x01, 0x02}
	_, err := DecodeVLQBytes(&data)
	assert.ErrorIs(t, err, ErrBufferTooSmall)
	assert.Len(t, data, 3)
}
