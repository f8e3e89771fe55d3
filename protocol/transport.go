package protocol

import "sync/atomic"

const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
)

// CommandHandler decodes the arguments of one command from data
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the MCU end of the link. It runs host blocks in sequence
// order, acknowledges every block and frames responses.
type Transport struct {
	frames  frameReader
	nextSeq atomic.Uint32 // Next sequence expected from the host, 0x10-0x1F
	output  OutputBuffer
	handler CommandHandler
	onReset func()
	onFlush func()
}

func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{output: output, handler: handler}
	t.nextSeq.Store(MessageDest)
	return t
}

// Receive consumes every complete block in input. A trailing partial
// block stays in input.
func (t *Transport) Receive(input InputBuffer) {
	rest := t.frames.scan(input.Data(), t.receiveBlock, t.sendAck)
	if used := input.Available() - len(rest); used > 0 {
		input.Pop(used)
	}
}

func (t *Transport) receiveBlock(block []byte) bool {
	seq := block[MessagePositionSeq]
	if seq&^MessageSeqMask != MessageDest {
		return false
	}

	expect := uint8(t.nextSeq.Load())
	// The initial sequence mid-stream means the host restarted
	if seq == MessageDest && expect != MessageDest {
		expect = MessageDest
		t.nextSeq.Store(MessageDest)
		if t.onReset != nil {
			t.onReset()
		}
	}

	if seq == expect {
		t.nextSeq.Store(uint32(nextSequence(seq)))
		t.dispatch(block[MessageHeaderSize : len(block)-MessageTrailerSize])
	}
	// Out of order blocks get the same reply, which the host reads as a NAK
	t.sendAck()
	return true
}

// dispatch runs each command in a block. A handler error drops the rest
// of the block.
func (t *Transport) dispatch(payload []byte) {
	defer func() {
		if recover() != nil {
			t.frames.lost = true
		}
	}()

	for len(payload) > 0 && t.handler != nil {
		cmdID, err := DecodeVLQUint(&payload)
		if err != nil {
			t.frames.lost = true
			return
		}
		if t.handler(uint16(cmdID), &payload) != nil {
			return
		}
	}
}

// sendAck emits an empty block carrying the next expected sequence. It is
// flushed at once since the host holds further commands until it arrives.
func (t *Transport) sendAck() {
	t.output.Output(EncodeBlock(uint8(t.nextSeq.Load()), nil))
	if t.onFlush != nil {
		t.onFlush()
	}
}

// SendCommand frames a response in place in the output buffer. Responses
// carry the same sequence as the ACK of the block that caused them.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	start := t.output.CurPosition()
	t.output.Output([]byte{0, uint8(t.nextSeq.Load())})
	EncodeVLQUint(t.output, uint32(cmdID))
	if args != nil {
		args(t.output)
	}

	t.output.Update(start, uint8(len(t.output.DataSince(start))+MessageTrailerSize))
	crc := CRC16(t.output.DataSince(start))
	t.output.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
}

// Reset forgets the link state after a USB reconnect
func (t *Transport) Reset() {
	t.frames.lost = false
	t.nextSeq.Store(MessageDest)
	if t.onReset != nil {
		t.onReset()
	}
}

// SetResetCallback sets the hook run when the host restarts the sequence
func (t *Transport) SetResetCallback(callback func()) {
	t.onReset = callback
}

// SetFlushCallback sets the hook that pushes an ACK out immediately
func (t *Transport) SetFlushCallback(callback func()) {
	t.onFlush = callback
}
