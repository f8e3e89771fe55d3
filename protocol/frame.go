package protocol

// frameStatus is the outcome of scanning for one message block
type frameStatus uint8

const (
	frameNeedMore frameStatus = iota // Incomplete, wait for more bytes
	frameValid                       // Complete block with good CRC and sync
	frameInvalid                     // Bad length, sync or CRC: resynchronize
)

// scanFrame checks whether data starts with a complete message block
// (len seq payload crc16 0x7E). data must not start with a sync byte.
// Returns the block length for frameValid.
func scanFrame(data []byte) (int, frameStatus) {
	if len(data) < MessageLengthMin {
		return 0, frameNeedMore
	}

	msgLen := int(data[MessagePositionLen])
	if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
		return 0, frameInvalid
	}

	if len(data) < msgLen {
		return 0, frameNeedMore
	}

	if data[msgLen-MessageTrailerSync] != MessageValueSync {
		return 0, frameInvalid
	}

	frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
		uint16(data[msgLen-MessageTrailerCRC+1])
	if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
		return 0, frameInvalid
	}

	return msgLen, frameValid
}

// skipToSync drops bytes up to and including the next sync byte.
// Returns nil and false if there is none.
func skipToSync(data []byte) ([]byte, bool) {
	for i, b := range data {
		if b == MessageValueSync {
			return data[i+1:], true
		}
	}
	return nil, false
}

// EncodeBlock wraps payload in a message block with the given sequence byte
func EncodeBlock(seq uint8, payload []byte) []byte {
	msgLen := MessageHeaderSize + len(payload) + MessageTrailerSize
	block := make([]byte, 0, msgLen)
	block = append(block, uint8(msgLen), seq)
	block = append(block, payload...)
	crc := CRC16(block)
	return append(block, uint8(crc>>8), uint8(crc), MessageValueSync)
}

// frameReader splits a byte stream into message blocks. After a framing
// error it drops bytes up to the next sync byte.
type frameReader struct {
	lost bool
}

// scan hands each complete block in data to block and returns the bytes
// that must stay buffered. A false return from block counts as a framing
// error. resync, if set, runs each time sync is regained.
func (r *frameReader) scan(data []byte, block func([]byte) bool, resync func()) []byte {
	for len(data) > 0 {
		if r.lost {
			var found bool
			if data, found = skipToSync(data); !found {
				return nil
			}
			r.lost = false
			if resync != nil {
				resync()
			}
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		n, status := scanFrame(data)
		if status == frameNeedMore {
			return data
		}
		if status == frameInvalid || !block(data[:n]) {
			r.lost = true
			continue
		}
		data = data[n:]
	}
	return data
}
