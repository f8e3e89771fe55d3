package protocol

import "errors"

var (
	ErrInvalidVLQ     = errors.New("invalid VLQ encoding")
	ErrBufferTooSmall = errors.New("buffer too small for VLQ")
)

// vlqMaxLen is the longest encoding of a 32-bit value
const vlqMaxLen = 5

// vlqLen returns the number of 7-bit groups needed for v. The first group
// holds values in [-32, 96); each further group widens the range by 7 bits,
// so small negative error codes stay one byte long.
func vlqLen(v int32) int {
	n := 1
	for shift := 5; shift < 32 && (v < -(int32(1)<<shift) || v >= 3<<shift); shift += 7 {
		n++
	}
	return n
}

// EncodeVLQInt appends v, most significant group first. Every group but the
// last carries the 0x80 continuation bit.
func EncodeVLQInt(output OutputBuffer, v int32) {
	var buf [vlqMaxLen]byte
	n := vlqLen(v)
	for i := 0; i < n; i++ {
		b := byte(v>>(7*(n-1-i))) & 0x7F
		if i < n-1 {
			b |= 0x80
		}
		buf[i] = b
	}
	output.Output(buf[:n])
}

// EncodeVLQUint appends v; values above MaxInt32 use the five byte form
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// DecodeVLQInt reads one value and advances data past it. On error data is
// left unchanged.
func DecodeVLQInt(data *[]byte) (int32, error) {
	buf := *data
	if len(buf) == 0 {
		return 0, ErrBufferTooSmall
	}

	c := buf[0]
	v := uint32(c & 0x7F)
	if c&0x60 == 0x60 {
		// Leading group in [-32, 0): sign extend
		v |= ^uint32(0x1F)
	}

	i := 1
	for c&0x80 != 0 {
		if i == vlqMaxLen {
			return 0, ErrInvalidVLQ
		}
		if i == len(buf) {
			return 0, ErrBufferTooSmall
		}
		c = buf[i]
		i++
		v = v<<7 | uint32(c&0x7F)
	}

	*data = buf[i:]
	return int32(v), nil
}

// DecodeVLQUint reads one unsigned value
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQInt(data)
	return uint32(v), err
}

// EncodeVLQBytes appends a length-prefixed byte string (%*s)
func EncodeVLQBytes(output OutputBuffer, data []byte) {
	EncodeVLQUint(output, uint32(len(data)))
	output.Output(data)
}

// DecodeVLQBytes reads a length-prefixed byte string. The result aliases data.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	rest := *data
	n, err := DecodeVLQUint(&rest)
	if err != nil {
		return nil, err
	}
	if uint32(len(rest)) < n {
		return nil, ErrBufferTooSmall
	}
	*data = rest[n:]
	return rest[:n], nil
}
