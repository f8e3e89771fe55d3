package protocol

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commandPayload(cmdID uint32, args ...uint32) []byte {
	out := NewScratchOutput()
	EncodeVLQUint(out, cmdID)
	for _, a := range args {
		EncodeVLQUint(out, a)
	}
	return append([]byte(nil), out.Result()...)
}

func TestScanFrame(t *testing.T) {
	block := EncodeBlock(MessageDest, commandPayload(7, 300))

	n, status := scanFrame(block)
	assert.Equal(t, frameValid, status)
	assert.Equal(t, len(block), n)

	_, status = scanFrame(block[:len(block)-1])
	assert.Equal(t, frameNeedMore, status)

	corrupt := append([]byte(nil), block...)
	corrupt[2] ^= 0x01
	_, status = scanFrame(corrupt)
	assert.Equal(t, frameInvalid, status, "payload change must fail the CRC")

	_, status = scanFrame([]byte{0xFF, 0x10, 0, 0, MessageValueSync})
	assert.Equal(t, frameInvalid, status, "length above the maximum")
}

func TestFrameReaderSplitsStream(t *testing.T) {
	first := EncodeBlock(MessageDest, commandPayload(1))
	second := EncodeBlock(MessageDest|1, commandPayload(2, 70))

	stream := []byte{MessageValueSync, MessageValueSync}
	stream = append(stream, first...)
	stream = append(stream, 0x03, 0x99, MessageValueSync) // bad length
	stream = append(stream, second...)
	stream = append(stream, second[:3]...)

	var r frameReader
	var blocks [][]byte
	resyncs := 0
	rest := r.scan(stream, func(b []byte) bool {
		blocks = append(blocks, b)
		return true
	}, func() { resyncs++ })

	require.Len(t, blocks, 2)
	assert.Equal(t, first, blocks[0])
	assert.Equal(t, second, blocks[1])
	assert.Equal(t, 1, resyncs)
	assert.Equal(t, second[:3], rest, "partial block stays buffered")
}

func TestFrameReaderRejectedBlockResyncs(t *testing.T) {
	block := EncodeBlock(MessageDest, commandPayload(1))
	stream := append(append([]byte(nil), block...), block...)

	var r frameReader
	calls := 0
	rest := r.scan(stream, func([]byte) bool {
		calls++
		return calls > 1
	}, nil)

	// The rejected block is skipped up to its own sync byte
	assert.Equal(t, 2, calls)
	assert.Empty(t, rest)
	assert.False(t, r.lost)
}

type recordedCommand struct {
	id   uint16
	args []uint32
}

func newRecordingTransport(nargs int) (*Transport, *ScratchOutput, *[]recordedCommand) {
	out := NewScratchOutput()
	var got []recordedCommand
	tr := NewTransport(out, func(cmdID uint16, data *[]byte) error {
		rc := recordedCommand{id: cmdID}
		for i := 0; i < nargs; i++ {
			v, err := DecodeVLQUint(data)
			if err != nil {
				return err
			}
			rc.args = append(rc.args, v)
		}
		got = append(got, rc)
		return nil
	})
	return tr, out, &got
}

func TestTransportReceiveAcksAndDispatches(t *testing.T) {
	tr, out, got := newRecordingTransport(1)

	input := NewSliceInputBuffer(EncodeBlock(MessageDest, commandPayload(9, 1234)))
	tr.Receive(input)

	require.Len(t, *got, 1)
	assert.Equal(t, recordedCommand{id: 9, args: []uint32{1234}}, (*got)[0])
	assert.Zero(t, input.Available())

	// ACK carries the next expected sequence
	assert.Equal(t, EncodeBlock(MessageDest|1, nil), out.Result())
}

func TestTransportResyncAfterGarbage(t *testing.T) {
	tr, _, got := newRecordingTransport(1)

	stream := []byte{0x01, 0x02, 0x03, MessageValueSync}
	stream = append(stream, EncodeBlock(MessageDest, commandPayload(4, 5))...)
	tr.Receive(NewSliceInputBuffer(stream))

	require.Len(t, *got, 1)
	assert.Equal(t, uint16(4), (*got)[0].id)
}

func TestTransportWaitsForPartialFrame(t *testing.T) {
	tr, out, got := newRecordingTransport(1)
	block := EncodeBlock(MessageDest, commandPayload(4, 5))

	input := NewSliceInputBuffer(block[:4])
	tr.Receive(input)
	assert.Empty(t, *got)
	assert.Equal(t, 4, input.Available(), "partial frame stays buffered")
	assert.Zero(t, out.CurPosition())

	tr.Receive(NewSliceInputBuffer(block))
	assert.Len(t, *got, 1)
}

func TestTransportNaksUnexpectedSequence(t *testing.T) {
	tr, out, got := newRecordingTransport(1)
	block := EncodeBlock(MessageDest, commandPayload(4, 5))

	tr.Receive(NewSliceInputBuffer(block))
	out.Reset()

	// Out-of-order block is dropped and answered with the expected sequence
	tr.Receive(NewSliceInputBuffer(EncodeBlock(MessageDest|2, commandPayload(4, 6))))
	assert.Len(t, *got, 1)
	assert.Equal(t, EncodeBlock(MessageDest|1, nil), out.Result())
}

func TestTransportHandlerPanicResyncs(t *testing.T) {
	out := NewScratchOutput()
	calls := 0
	tr := NewTransport(out, func(cmdID uint16, data *[]byte) error {
		calls++
		if cmdID == 13 {
			panic("bad handler")
		}
		return nil
	})

	tr.Receive(NewSliceInputBuffer(EncodeBlock(MessageDest, commandPayload(13))))
	assert.Equal(t, EncodeBlock(MessageDest|1, nil), out.Result(), "block is still acknowledged")
	assert.True(t, tr.frames.lost)

	out.Reset()
	stream := append([]byte{0x55, MessageValueSync}, EncodeBlock(MessageDest|1, commandPayload(4))...)
	tr.Receive(NewSliceInputBuffer(stream))
	assert.Equal(t, 2, calls)
}

func TestTransportHostRestart(t *testing.T) {
	tr, out, got := newRecordingTransport(1)
	resets := 0
	tr.SetResetCallback(func() { resets++ })

	tr.Receive(NewSliceInputBuffer(EncodeBlock(MessageDest, commandPayload(4, 1))))
	tr.Receive(NewSliceInputBuffer(EncodeBlock(MessageDest|1, commandPayload(4, 2))))
	out.Reset()

	tr.Receive(NewSliceInputBuffer(EncodeBlock(MessageDest, commandPayload(4, 3))))
	assert.Equal(t, 1, resets)
	assert.Len(t, *got, 3)
	assert.Equal(t, EncodeBlock(MessageDest|1, nil), out.Result())
}

func TestTransportFramesResponse(t *testing.T) {
	tr, out, _ := newRecordingTransport(0)

	tr.SendCommand(3, func(o OutputBuffer) {
		EncodeVLQUint(o, 42)
	})

	assert.Equal(t, EncodeBlock(MessageDest, commandPayload(3, 42)), out.Result())
}

// fakeMCU runs an MCU-side Transport on one end of a pipe
func fakeMCU(t *testing.T, conn net.Conn, respond func(tr *Transport, cmdID uint16, data *[]byte) error) {
	t.Helper()
	out := NewScratchOutput()
	var tr *Transport
	tr = NewTransport(out, func(cmdID uint16, data *[]byte) error {
		return respond(tr, cmdID, data)
	})

	go func() {
		buf := make([]byte, 256)
		pending := NewFifoBuffer(512)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			pending.Write(buf[:n])

			input := NewSliceInputBuffer(pending.Data())
			tr.Receive(input)
			pending.Pop(pending.Available() - input.Available())

			if out.CurPosition() > 0 {
				reply := append([]byte(nil), out.Result()...)
				out.Reset()
				if _, err := conn.Write(reply); err != nil {
					return
				}
			}
		}
	}()
}

func TestHostTransportRoundTrip(t *testing.T) {
	hostEnd, mcuEnd := net.Pipe()
	defer mcuEnd.Close()

	fakeMCU(t, mcuEnd, func(tr *Transport, cmdID uint16, data *[]byte) error {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		tr.SendCommand(cmdID+1, func(o OutputBuffer) {
			EncodeVLQUint(o, v*2)
		})
		return nil
	})

	host := NewHostTransport(hostEnd)
	defer host.Close()

	handled := make(chan uint32, 2)
	host.SetResponseHandler(func(cmdID uint16, data *[]byte) error {
		v, err := DecodeVLQUint(data)
		if err == nil && cmdID == 11 {
			handled <- v
		}
		return err
	})

	for i, arg := range []uint32{21, 500} {
		require.NoError(t, host.SendCommand(10, func(o OutputBuffer) {
			EncodeVLQUint(o, arg)
		}), "command %d", i)

		select {
		case v := <-handled:
			assert.Equal(t, arg*2, v)
		case <-time.After(time.Second):
			t.Fatal("response handler not called")
		}
	}
	assert.Equal(t, uint8(MessageDest|2), host.seq)
}

func TestHostTransportAckTimeout(t *testing.T) {
	hostEnd, mcuEnd := net.Pipe()
	defer mcuEnd.Close()

	// Swallow everything without answering
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := mcuEnd.Read(buf); err != nil {
				return
			}
		}
	}()

	host := NewHostTransport(hostEnd)
	defer host.Close()

	err := host.SendCommandWithTimeout(1, nil, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestHostTransportCloseIsIdempotent(t *testing.T) {
	hostEnd, mcuEnd := net.Pipe()
	defer mcuEnd.Close()

	host := NewHostTransport(hostEnd)
	require.NoError(t, host.Close())
	assert.NoError(t, host.Close())

	assert.ErrorIs(t, host.SendCommand(1, nil), ErrStopped)
}
