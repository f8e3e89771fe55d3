package protocol

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ResponseHandler receives one MCU response on the reader goroutine
type ResponseHandler func(cmdID uint16, data *[]byte) error

var (
	ErrTimeout = errors.New("protocol: timeout")
	ErrNak     = errors.New("protocol: sequence mismatch")
	ErrStopped = errors.New("protocol: transport stopped")
)

// DefaultAckTimeout bounds the wait for an ACK in SendCommand
const DefaultAckTimeout = 2 * time.Second

// HostTransport is the host end of the link. One command is in flight at
// a time until its ACK arrives.
type HostTransport struct {
	port io.ReadWriteCloser

	sendMu sync.Mutex
	seq    uint8 // Sequence of the next command, guarded by sendMu
	acks   chan uint8

	handlerMu sync.Mutex
	handler   ResponseHandler

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewHostTransport starts reading from port at once
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port: port,
		seq:  MessageDest,
		acks: make(chan uint8, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, DefaultAckTimeout)
}

// SendCommandWithTimeout writes one command block and waits for the MCU
// to acknowledge it
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	select {
	case <-t.stop:
		return ErrStopped
	default:
	}

	payload := NewScratchOutput()
	EncodeVLQUint(payload, uint32(cmdID))
	if args != nil {
		args(payload)
	}
	body := payload.Result()
	if n := MessageHeaderSize + len(body) + MessageTrailerSize; n > MessageLengthMax {
		return fmt.Errorf("command %d: %d byte block exceeds %d", cmdID, n, MessageLengthMax)
	}

	// An ACK left over from a timed out command is stale
	select {
	case <-t.acks:
	default:
	}
	if _, err := t.port.Write(EncodeBlock(t.seq, body)); err != nil {
		return fmt.Errorf("write command %d: %w", cmdID, err)
	}

	want := nextSequence(t.seq)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case got := <-t.acks:
		if got != want {
			return fmt.Errorf("%w: expected 0x%02x, got 0x%02x", ErrNak, want, got)
		}
		t.seq = want
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: no ACK within %v", ErrTimeout, timeout)
	case <-t.stop:
		return ErrStopped
	}
}

// SetResponseHandler sets the callback for every non-empty block
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handlerMu.Lock()
	t.handler = handler
	t.handlerMu.Unlock()
}

func (t *HostTransport) readLoop() {
	defer close(t.done)

	var frames frameReader
	pending := NewFifoBuffer(MessageMax)
	buf := make([]byte, 256)

	for {
		select {
		case <-t.stop:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if n > 0 {
			pending.Write(buf[:n])
			data := pending.Data()
			rest := frames.scan(data, t.receiveBlock, nil)
			pending.Pop(len(data) - len(rest))
		}
		if err != nil {
			if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
				return
			}
			// tarm/serial reports an expired read timeout as io.EOF
			select {
			case <-t.stop:
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
}

func (t *HostTransport) receiveBlock(block []byte) bool {
	payload := block[MessageHeaderSize : len(block)-MessageTrailerSize]
	if len(payload) == 0 {
		// Only the latest ACK matters
		select {
		case <-t.acks:
		default:
		}
		t.acks <- block[MessagePositionSeq]
		return true
	}

	t.handlerMu.Lock()
	handler := t.handler
	t.handlerMu.Unlock()
	if handler == nil {
		return true
	}

	data := append([]byte(nil), payload...)
	if cmdID, err := DecodeVLQUint(&data); err == nil {
		_ = handler(uint16(cmdID), &data)
	}
	return true
}

// Close stops the reader and closes the port. Later calls return the
// first result.
func (t *HostTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.stop)
		// Closing the port unblocks a pending Read
		t.closeErr = t.port.Close()
		<-t.done
	})
	return t.closeErr
}
