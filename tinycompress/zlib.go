// Package tinycompress writes zlib streams made of stored (uncompressed)
// DEFLATE blocks. The output is readable by any zlib decoder, and writing it
// needs no compression tables, which keeps flash and RAM use small.
package tinycompress

import (
	"errors"
	"hash/adler32"
	"io"
)

const (
	// maxStoredBlock is the largest payload a stored DEFLATE block can carry
	maxStoredBlock = 0xFFFF

	// zlib header: deflate, 32K window, FLEVEL 0 (fastest). 0x7801 % 31 == 0.
	headerCMF = 0x78
	headerFLG = 0x01
)

var ErrClosed = errors.New("tinycompress: write after close")

// Writer buffers input and emits the zlib stream on Close
type Writer struct {
	output   io.Writer
	inputBuf []byte
	closed   bool
}

// NewWriter creates a Writer. sizeHint pre-sizes the input buffer so the
// dictionary build does not reallocate mid-write; pass 0 if unknown.
func NewWriter(w io.Writer, sizeHint int) *Writer {
	return &Writer{
		output:   w,
		inputBuf: make([]byte, 0, sizeHint),
	}
}

// Write implements io.Writer
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	w.inputBuf = append(w.inputBuf, p...)
	return len(p), nil
}

// Close writes the header, the stored blocks and the Adler-32 trailer
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if _, err := w.output.Write([]byte{headerCMF, headerFLG}); err != nil {
		return err
	}

	data := w.inputBuf
	for {
		n := len(data)
		if n > maxStoredBlock {
			n = maxStoredBlock
		}
		final := n == len(data)

		if err := writeStoredBlock(w.output, data[:n], final); err != nil {
			return err
		}
		data = data[n:]
		if final {
			break
		}
	}

	checksum := adler32.Checksum(w.inputBuf)
	_, err := w.output.Write([]byte{
		byte(checksum >> 24),
		byte(checksum >> 16),
		byte(checksum >> 8),
		byte(checksum),
	})
	return err
}

// writeStoredBlock writes BFINAL/BTYPE=00, LEN, NLEN and the raw bytes
func writeStoredBlock(out io.Writer, block []byte, final bool) error {
	var bfinal byte
	if final {
		bfinal = 0x01
	}
	length := uint16(len(block))
	nlength := ^length

	if _, err := out.Write([]byte{
		bfinal,
		byte(length), byte(length >> 8),
		byte(nlength), byte(nlength >> 8),
	}); err != nil {
		return err
	}
	_, err := out.Write(block)
	return err
}

// Compress returns data as a complete zlib stream
func Compress(data []byte) []byte {
	var buf sliceWriter
	buf.b = make([]byte, 0, StoredSize(len(data)))
	w := NewWriter(&buf, 0)
	w.inputBuf = data
	// sliceWriter never fails
	_ = w.Close()
	return buf.b
}

// StoredSize is the zlib stream length for n input bytes
func StoredSize(n int) int {
	blocks := n/maxStoredBlock + 1
	if n > 0 && n%maxStoredBlock == 0 {
		blocks--
	}
	return 2 + blocks*5 + n + 4
}

type sliceWriter struct {
	b []byte
}

func (s *sliceWriter) Write(p []byte) (int, error) {
	s.b = append(s.b, p...)
	return len(p), nil
}
