// HC-SR04 ultrasonic ranging
// Interrupt-driven echo timing: the trigger pulse arms a deadline and the
// echo edge interrupt, the rise/fall ISRs timestamp the echo pulse, and
// whichever of echo fall or deadline comes first completes the measurement.
package core

import (
	"sync/atomic"
	"time"
)

// Measurement timing
const (
	HCSR04PulseWidth     = 10 * time.Microsecond // Trigger pulse width
	HCSR04MeasureTimeout = 50 * time.Millisecond // Deadline for echo fall after trigger

	// SpeedOfSound is the nominal speed of sound in air (m/s), no temperature compensation
	SpeedOfSound = 343.0

	// distanceK converts round-trip echo microseconds to metres
	distanceK = SpeedOfSound / (2 * 1000000)
)

// MeasureError is the closed set of measurement outcomes. The zero value is success.
type MeasureError int8

const (
	MeasureOK      MeasureError = 0
	ErrBusy        MeasureError = -1 // Measurement already in flight
	ErrTimeout     MeasureError = -2 // No echo fall before the deadline
	ErrNoEchoStart MeasureError = -3 // Echo fall without a preceding rise
)

func (e MeasureError) Error() string {
	switch e {
	case MeasureOK:
		return "hcsr04: ok"
	case ErrBusy:
		return "hcsr04: measurement in progress"
	case ErrTimeout:
		return "hcsr04: echo timeout"
	case ErrNoEchoStart:
		return "hcsr04: echo fall without rise"
	default:
		return "hcsr04: error " + itoa(int(e))
	}
}

// Err returns nil for MeasureOK and e otherwise
func (e MeasureError) Err() error {
	if e == MeasureOK {
		return nil
	}
	return e
}

// Result is the outcome of one measurement attempt
type Result struct {
	Err   MeasureError
	Delay time.Duration // Echo pulse width, zero unless Err is MeasureOK
}

// ResultCallback receives the result of an asynchronous measurement.
//
// It runs in interrupt context: from the echo-fall ISR or from timer
// dispatch with interrupts masked. It must return quickly, must not block or
// allocate, and must not call MeasureDelay or MeasureDistance. It may start
// a new measurement only after returning, since the driver stays busy until then.
type ResultCallback func(result Result)

// HCSR04 drives one ultrasonic sensor. At most one measurement is in flight
// at a time.
type HCSR04 struct {
	OID uint8

	trigger GPIOPin
	echo    GPIOPin
	gpio    GPIODriver
	edges   EdgeDriver
	pulser  TriggerPulser

	// measuring is the single-measurement lock, taken by callers and
	// released from interrupt context
	measuring atomic.Bool

	// Owned by the attempt holding measuring
	measurementStart uint32
	echoStartRel     uint32 // Valid once riseSeen
	riseSeen         bool
	callback         ResultCallback
	timeout          Timeout

	// MeasureDelay state
	syncBusy     atomic.Bool
	syncResult   Result
	syncDone     wakeSignal
	syncCallback ResultCallback

	lastDistance float32
}

// Option configures an HCSR04
type Option func(*HCSR04)

// WithPulser replaces the GPIO bit-banged trigger pulse
func WithPulser(p TriggerPulser) Option {
	return func(d *HCSR04) {
		d.pulser = p
	}
}

// WithOID tags timing events and reports with an object ID
func WithOID(oid uint8) Option {
	return func(d *HCSR04) {
		d.OID = oid
	}
}

// NewHCSR04 configures the trigger pin as a low output and binds the echo
// pin's edge handlers with delivery disabled.
//
// Power-on noise on an unconfigured trigger line can start a ranging cycle,
// so wait ~50ms after construction before the first measurement.
func NewHCSR04(trigger, echo GPIOPin, gpio GPIODriver, edges EdgeDriver, opts ...Option) (*HCSR04, error) {
	d := &HCSR04{
		trigger: trigger,
		echo:    echo,
		gpio:    gpio,
		edges:   edges,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.pulser == nil {
		d.pulser = gpioPulser{gpio: gpio, pin: trigger}
	}

	if err := gpio.ConfigureOutput(trigger); err != nil {
		return nil, err
	}
	if err := gpio.SetPin(trigger, false); err != nil {
		return nil, err
	}
	if err := gpio.ConfigureInput(echo); err != nil {
		return nil, err
	}

	edges.DisableEdgeIRQ(echo)
	if err := edges.BindEdges(echo, d.echoRise, d.echoFall); err != nil {
		return nil, err
	}

	d.timeout.Init(d.timeoutExpired)
	d.syncDone.init()
	d.syncCallback = d.storeSyncResult

	return d, nil
}

// Busy reports whether a measurement is in flight
func (d *HCSR04) Busy() bool {
	return d.measuring.Load()
}

// MeasureDelayAsync starts a measurement and returns without waiting.
// cb is called exactly once with the result unless an error is returned,
// in which case it is never called. Returns ErrBusy if a measurement is in
// flight, including from inside cb.
//
// It spins for the trigger pulse width. On TinyGo it may be called from
// interrupt context; the regular Go interrupt emulation does not nest masked
// sections, so there only the busy rejection is safe from a handler.
func (d *HCSR04) MeasureDelayAsync(cb ResultCallback) error {
	if !d.measuring.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return d.arm(cb)
}

// MeasureDelay measures the echo pulse width, blocking until the echo falls
// or the deadline passes. The waiting caller expires the deadline itself, so
// it returns within HCSR04MeasureTimeout even when nothing else runs
// ProcessTimers. Must not be called from interrupt context or from a
// ResultCallback.
func (d *HCSR04) MeasureDelay() (time.Duration, error) {
	if !d.syncBusy.CompareAndSwap(false, true) {
		RecordTiming(EvtBusy, d.OID, GetTime(), 0, 0)
		return 0, ErrBusy
	}
	defer d.syncBusy.Store(false)

	if !d.measuring.CompareAndSwap(false, true) {
		RecordTiming(EvtBusy, d.OID, GetTime(), 0, 0)
		return 0, ErrBusy
	}

	d.syncDone.clear()
	if err := d.arm(d.syncCallback); err != nil {
		return 0, err
	}
	d.syncDone.wait(d.pollTimeout)

	result := d.syncResult
	return result.Delay, result.Err.Err()
}

// MeasureDistance measures the distance to the target in metres.
// Same calling rules as MeasureDelay.
func (d *HCSR04) MeasureDistance() (float32, error) {
	delay, err := d.MeasureDelay()
	if err != nil {
		return 0, err
	}
	return DelayToDistance(delay), nil
}

// DelayToDistance converts an echo pulse width to a one-way distance in metres
func DelayToDistance(delay time.Duration) float32 {
	return float32(delay/time.Microsecond) * distanceK
}

// arm fires the trigger pulse and starts timing. Caller holds measuring.
func (d *HCSR04) arm(cb ResultCallback) error {
	d.callback = cb
	d.echoStartRel = 0
	d.riseSeen = false

	if err := d.pulser.Pulse(HCSR04PulseWidth); err != nil {
		d.callback = nil
		RecordTiming(EvtPulseFail, d.OID, GetTime(), 0, 0)
		d.measuring.Store(false)
		return err
	}

	// Start time, deadline and edge delivery become visible to the ISRs together
	state := disableInterrupts()
	d.measurementStart = GetTime()
	d.timeout.armLocked(d.measurementStart, uint32(HCSR04MeasureTimeout/time.Microsecond))
	d.edges.EnableEdgeIRQ(d.echo)
	recordTiming(EvtTrigger, d.OID, d.measurementStart, d.timeout.timer.WakeTime, 0)
	restoreInterrupts(state)

	return nil
}

// echoRise runs in interrupt context on the echo rising edge
func (d *HCSR04) echoRise() {
	if !d.measuring.Load() {
		return
	}
	rel := GetTime() - d.measurementStart
	d.echoStartRel = rel
	d.riseSeen = true
	recordTiming(EvtEchoRise, d.OID, d.measurementStart, rel, 0)
}

// echoFall runs in interrupt context on the echo falling edge
func (d *HCSR04) echoFall() {
	if !d.measuring.Load() {
		return
	}
	endRel := GetTime() - d.measurementStart

	d.edges.DisableEdgeIRQ(d.echo)
	// Must not survive into a later attempt
	d.timeout.cancelLocked()

	var result Result
	if !d.riseSeen {
		result.Err = ErrNoEchoStart
		recordTiming(EvtNoStart, d.OID, d.measurementStart, endRel, 0)
	} else {
		ticks := endRel - d.echoStartRel
		result.Delay = time.Duration(TimerToUS(ticks)) * time.Microsecond
		recordTiming(EvtEchoFall, d.OID, d.measurementStart, endRel, ticks)
	}
	d.complete(result)
}

// pollTimeout fires the deadline from the waiting task once it is due
func (d *HCSR04) pollTimeout() {
	d.timeout.Poll()
}

// timeoutExpired runs from timer dispatch with interrupts masked
func (d *HCSR04) timeoutExpired() {
	d.edges.DisableEdgeIRQ(d.echo)
	recordTiming(EvtTimeout, d.OID, d.measurementStart, GetTime()-d.measurementStart, 0)
	d.complete(Result{Err: ErrTimeout})
}

// abortLocked completes an armed attempt with ErrTimeout ahead of its
// deadline. An attempt that has not finished arming is left alone.
// Caller must have interrupts masked.
func (d *HCSR04) abortLocked() {
	d.edges.DisableEdgeIRQ(d.echo)
	if !timerScheduled(&d.timeout.timer) {
		return
	}
	d.timeout.cancelLocked()
	recordTiming(EvtTimeout, d.OID, d.measurementStart, GetTime()-d.measurementStart, 1)
	d.complete(Result{Err: ErrTimeout})
}

// complete delivers the result, then releases the measurement lock so no
// new attempt can start while the callback is still running
func (d *HCSR04) complete(result Result) {
	cb := d.callback
	d.callback = nil
	if cb != nil {
		cb(result)
	}
	d.measuring.Store(false)
}

func (d *HCSR04) storeSyncResult(result Result) {
	d.syncResult = result
	d.syncDone.set()
}
