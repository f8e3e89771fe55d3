// HC-SR04 host commands
// Exposes the ranging driver over the Klipper protocol: the host configures a
// sensor per OID, requests measurements, and receives hcsr04_result reports.
package core

import (
	"errors"

	"sonar/protocol"
)

// hcsr04ReportDepth bounds queued results per sensor. Only one measurement is
// in flight at a time, so this only fills if the task loop stalls.
const hcsr04ReportDepth = 4

type hcsr04Report struct {
	err     MeasureError
	delayUS uint32
	clock   uint32 // Trigger time
}

// hcsr04Sensor pairs a driver with the reports its ISR-side callback queues
// for HCSR04Task
type hcsr04Sensor struct {
	dev *HCSR04

	// Guarded by interrupt masking
	reports [hcsr04ReportDepth]hcsr04Report
	head    uint8
	count   uint8

	onResult ResultCallback
}

var (
	hcsr04Sensors = make(map[uint8]*hcsr04Sensor)

	// pulserFactory supplies hardware trigger pulsers; nil or a nil result
	// falls back to the GPIO pulse
	pulserFactory func(trigger GPIOPin) (TriggerPulser, error)

	// Wake flag for HCSR04Task, guarded by interrupt masking
	hcsr04Wake bool
)

// InitHCSR04Commands registers HC-SR04 commands with the command registry
func InitHCSR04Commands() {
	RegisterCommand("config_hcsr04", "oid=%c trigger_pin=%u echo_pin=%u", handleConfigHCSR04)
	RegisterCommand("hcsr04_measure", "oid=%c", handleHCSR04Measure)

	// Response message (MCU → Host)
	RegisterResponse("hcsr04_result", "oid=%c err=%i delay_us=%u clock=%u")

	RegisterConstant("HCSR04_TIMEOUT_US", uint32(HCSR04MeasureTimeout.Microseconds()))
	RegisterConstant("HCSR04_PULSE_US", uint32(HCSR04PulseWidth.Microseconds()))
}

// SetTriggerPulserFactory is called by target-specific code to provide
// hardware-timed trigger pulses for sensors configured afterwards
func SetTriggerPulserFactory(factory func(trigger GPIOPin) (TriggerPulser, error)) {
	pulserFactory = factory
}

// handleConfigHCSR04 creates a sensor
// Format: config_hcsr04 oid=%c trigger_pin=%u echo_pin=%u
func handleConfigHCSR04(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	triggerPin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	echoPin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	if _, exists := hcsr04Sensors[uint8(oid)]; exists {
		return errors.New("hcsr04: oid " + itoa(int(oid)) + " already configured")
	}

	dev, err := NewHCSR04(GPIOPin(triggerPin), GPIOPin(echoPin), MustGPIO(), MustEdges(), WithOID(uint8(oid)))
	if err != nil {
		return err
	}

	// Hardware pulsers are claimed only for sensors that were created
	if pulserFactory != nil {
		p, err := pulserFactory(GPIOPin(triggerPin))
		if err != nil {
			return err
		}
		if p != nil {
			dev.pulser = p
		}
	}

	s := &hcsr04Sensor{dev: dev}
	s.onResult = s.queueResult
	hcsr04Sensors[uint8(oid)] = s

	return nil
}

// handleHCSR04Measure starts an asynchronous measurement
// Format: hcsr04_measure oid=%c
func handleHCSR04Measure(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	s, exists := hcsr04Sensors[uint8(oid)]
	if !exists {
		// Invalid OID - sensor not configured
		return nil
	}
	if IsShutdown() {
		return nil
	}

	err = s.dev.MeasureDelayAsync(s.onResult)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBusy) {
		now := GetTime()
		RecordTiming(EvtBusy, uint8(oid), now, 0, 0)
		sendHCSR04Result(uint8(oid), hcsr04Report{err: ErrBusy, clock: now})
		return nil
	}
	return err
}

// queueResult runs in interrupt context when a measurement completes
func (s *hcsr04Sensor) queueResult(result Result) {
	idx := (s.head + s.count) % hcsr04ReportDepth
	if s.count == hcsr04ReportDepth {
		// Overwrite the oldest
		s.head = (s.head + 1) % hcsr04ReportDepth
	} else {
		s.count++
	}
	s.reports[idx] = hcsr04Report{
		err:     result.Err,
		delayUS: uint32(result.Delay.Microseconds()),
		clock:   s.dev.measurementStart,
	}
	hcsr04Wake = true
}

// HCSR04Task sends queued hcsr04_result reports from task context.
// Call it from the main loop.
func HCSR04Task() {
	state := disableInterrupts()
	if !hcsr04Wake {
		restoreInterrupts(state)
		return
	}
	hcsr04Wake = false
	restoreInterrupts(state)

	var pending [hcsr04ReportDepth]hcsr04Report
	for oid, s := range hcsr04Sensors {
		state = disableInterrupts()
		n := s.count
		for i := uint8(0); i < n; i++ {
			pending[i] = s.reports[(s.head+i)%hcsr04ReportDepth]
		}
		s.head = 0
		s.count = 0
		restoreInterrupts(state)

		for i := uint8(0); i < n; i++ {
			sendHCSR04Result(oid, pending[i])
		}
	}
}

func sendHCSR04Result(oid uint8, r hcsr04Report) {
	SendResponse("hcsr04_result", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQInt(output, int32(r.err))
		protocol.EncodeVLQUint(output, r.delayUS)
		protocol.EncodeVLQUint(output, r.clock)
	})
}

// shutdown completes any armed measurement with ErrTimeout, stops echo
// interrupts and drives the trigger low
func (s *hcsr04Sensor) shutdown() {
	state := disableInterrupts()
	s.dev.abortLocked()
	restoreInterrupts(state)

	s.dev.gpio.SetPin(s.dev.trigger, false)
}

// ShutdownAllHCSR04 shuts down every configured sensor
func ShutdownAllHCSR04() {
	for _, s := range hcsr04Sensors {
		s.shutdown()
	}
}

// ResetAllHCSR04 shuts down and forgets every configured sensor
func ResetAllHCSR04() {
	ShutdownAllHCSR04()

	state := disableInterrupts()
	hcsr04Wake = false
	restoreInterrupts(state)

	for oid := range hcsr04Sensors {
		delete(hcsr04Sensors, oid)
	}
}
