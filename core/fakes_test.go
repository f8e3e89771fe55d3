package core

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakePins is an in-memory GPIODriver and EdgeDriver. Edges are injected
// with echo, which delivers them as simulated interrupts.
type fakePins struct {
	mu       sync.Mutex
	levels   map[GPIOPin]bool
	outputs  map[GPIOPin]bool
	rise     map[GPIOPin]func()
	fall     map[GPIOPin]func()
	enabled  map[GPIOPin]bool
	bindErr  error
	setCalls int
}

func newFakePins() *fakePins {
	return &fakePins{
		levels:  make(map[GPIOPin]bool),
		outputs: make(map[GPIOPin]bool),
		rise:    make(map[GPIOPin]func()),
		fall:    make(map[GPIOPin]func()),
		enabled: make(map[GPIOPin]bool),
	}
}

func (f *fakePins) ConfigureOutput(pin GPIOPin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[pin] = true
	return nil
}

func (f *fakePins) ConfigureInput(pin GPIOPin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[pin] = false
	return nil
}

func (f *fakePins) ConfigureInputPullUp(pin GPIOPin) error   { return f.ConfigureInput(pin) }
func (f *fakePins) ConfigureInputPullDown(pin GPIOPin) error { return f.ConfigureInput(pin) }

func (f *fakePins) SetPin(pin GPIOPin, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.outputs[pin] {
		return errors.New("fake: pin " + itoa(int(pin)) + " is not an output")
	}
	f.levels[pin] = value
	f.setCalls++
	return nil
}

func (f *fakePins) GetPin(pin GPIOPin) (bool, error) {
	return f.ReadPin(pin), nil
}

func (f *fakePins) ReadPin(pin GPIOPin) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[pin]
}

func (f *fakePins) BindEdges(pin GPIOPin, rise, fall func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bindErr != nil {
		return f.bindErr
	}
	f.rise[pin] = rise
	f.fall[pin] = fall
	return nil
}

func (f *fakePins) EnableEdgeIRQ(pin GPIOPin) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled[pin] = true
}

func (f *fakePins) DisableEdgeIRQ(pin GPIOPin) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled[pin] = false
}

func (f *fakePins) irqEnabled(pin GPIOPin) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled[pin]
}

// echo drives an input level change and delivers the matching edge handler
// as an interrupt if edge delivery is enabled
func (f *fakePins) echo(pin GPIOPin, level bool) {
	RunInterrupt(func() {
		f.mu.Lock()
		f.levels[pin] = level
		handler := f.fall[pin]
		if level {
			handler = f.rise[pin]
		}
		deliver := f.enabled[pin] && handler != nil
		f.mu.Unlock()

		if deliver {
			handler()
		}
	})
}

// fakePulser records pulses and advances the simulated clock by the pulse width
type fakePulser struct {
	pulses atomic.Int32
	err    error
}

func (p *fakePulser) Pulse(width time.Duration) error {
	if p.err != nil {
		return p.err
	}
	p.pulses.Add(1)
	AdvanceTime(uint32(width / time.Microsecond))
	return nil
}

// resetCore clears scheduler, clock and wake-hold state between tests
func resetCore(t *testing.T, now uint32) {
	t.Helper()

	state := disableInterrupts()
	timerList = nil
	restoreInterrupts(state)

	deepSleepLocks.Store(0)
	SetClockSource(nil)
	SetTime(now)
	ClearTimingRing()
}

const (
	testTrigger GPIOPin = 2
	testEcho    GPIOPin = 3
)

func newTestSensor(t *testing.T, opts ...Option) (*HCSR04, *fakePins, *fakePulser) {
	t.Helper()
	pins := newFakePins()
	pulser := &fakePulser{}
	opts = append([]Option{WithPulser(pulser)}, opts...)
	d, err := NewHCSR04(testTrigger, testEcho, pins, pins, opts...)
	if err != nil {
		t.Fatalf("NewHCSR04: %v", err)
	}
	return d, pins, pulser
}

// resultRecorder collects callback results
type resultRecorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *resultRecorder) callback(result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *resultRecorder) all() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}
