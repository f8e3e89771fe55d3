package protocol

// InputBuffer is a window over received bytes that the transport consumes
// from the front
type InputBuffer interface {
	Data() []byte
	Available() int
	Pop(n int)
}

// OutputBuffer collects outgoing frames. The transport writes a frame
// header first and patches its length once the payload is known.
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	Update(pos int, val byte)
	DataSince(pos int) []byte
}

// SliceInputBuffer is an InputBuffer over a fixed slice
type SliceInputBuffer struct {
	data []byte
}

func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte   { return s.data }
func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	s.data = s.data[min(n, len(s.data)):]
}

// ScratchOutput is an OutputBuffer holding up to MessageMax bytes.
// Output beyond that is dropped.
type ScratchOutput struct {
	buf [MessageMax]byte
	n   int
}

func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	s.n += copy(s.buf[s.n:], data)
}

func (s *ScratchOutput) CurPosition() int { return s.n }

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos >= 0 && pos < s.n {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos < 0 || pos > s.n {
		return nil
	}
	return s.buf[pos:s.n]
}

// Result returns everything written since the last Reset
func (s *ScratchOutput) Result() []byte { return s.buf[:s.n] }

func (s *ScratchOutput) Reset() { s.n = 0 }

// FifoBuffer queues received bytes until whole frames can be parsed.
// It never allocates after construction.
type FifoBuffer struct {
	buf  []byte
	head int // oldest queued byte
	n    int // queued bytes
}

func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write queues as much of data as fits and returns how much was queued
func (f *FifoBuffer) Write(data []byte) int {
	data = data[:min(len(data), len(f.buf)-f.n)]
	tail := (f.head + f.n) % len(f.buf)
	c := copy(f.buf[tail:], data)
	copy(f.buf, data[c:])
	f.n += len(data)
	return len(data)
}

func (f *FifoBuffer) Available() int { return f.n }

// Data returns the queued bytes as one slice over the buffer. A wrapped
// queue is first rotated to the front. The slice is valid until the next Write.
func (f *FifoBuffer) Data() []byte {
	if f.head+f.n > len(f.buf) {
		rotateLeft(f.buf, f.head)
		f.head = 0
	}
	return f.buf[f.head : f.head+f.n]
}

// Pop drops up to n bytes from the front
func (f *FifoBuffer) Pop(n int) {
	n = min(n, f.n)
	f.n -= n
	if f.n == 0 {
		f.head = 0
		return
	}
	f.head = (f.head + n) % len(f.buf)
}

func (f *FifoBuffer) Reset() {
	f.head, f.n = 0, 0
}

// rotateLeft rotates b in place so b[k] becomes b[0]
func rotateLeft(b []byte, k int) {
	reverse(b[:k])
	reverse(b[k:])
	reverse(b)
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
