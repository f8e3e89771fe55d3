// Digital outputs
// Implements Klipper's digital_out commands without PWM. Boards use them to
// switch sensor supply rails so a latched-up HC-SR04 can be power cycled.
package core

import (
	"errors"

	"sonar/protocol"
)

// digitalOut is a configured output pin
type digitalOut struct {
	pin       GPIOPin
	on        bool
	defaultOn bool

	// Non-default states revert after maxDuration ticks; 0 disables the limit
	maxDuration uint32

	// Pending scheduled state, applied by timer
	pendingOn bool
	timer     Timer
}

var digitalOutputs = make(map[uint8]*digitalOut)

// InitDigitalOutCommands registers the digital_out commands
func InitDigitalOutCommands() {
	RegisterCommand("config_digital_out", "oid=%c pin=%u value=%c default_value=%c max_duration=%u", handleConfigDigitalOut)
	RegisterCommand("queue_digital_out", "oid=%c clock=%u on_ticks=%u", handleQueueDigitalOut)
	RegisterCommand("update_digital_out", "oid=%c value=%c", handleUpdateDigitalOut)
}

func decodeUints(data *[]byte, vals ...*uint32) error {
	for _, v := range vals {
		var err error
		if *v, err = protocol.DecodeVLQUint(data); err != nil {
			return err
		}
	}
	return nil
}

// Format: config_digital_out oid=%c pin=%u value=%c default_value=%c max_duration=%u
func handleConfigDigitalOut(data *[]byte) error {
	var oid, pin, value, defaultValue, maxDuration uint32
	if err := decodeUints(data, &oid, &pin, &value, &defaultValue, &maxDuration); err != nil {
		return err
	}
	if _, exists := digitalOutputs[uint8(oid)]; exists {
		return errors.New("digital_out: oid " + itoa(int(oid)) + " already configured")
	}

	d := &digitalOut{
		pin:         GPIOPin(pin),
		defaultOn:   defaultValue != 0,
		maxDuration: maxDuration,
	}
	d.timer.Handler = d.loadEvent

	gpio := MustGPIO()
	if err := gpio.ConfigureOutput(d.pin); err != nil {
		return err
	}
	if err := d.set(value != 0); err != nil {
		return err
	}

	digitalOutputs[uint8(oid)] = d
	return nil
}

// Format: queue_digital_out oid=%c clock=%u on_ticks=%u
func handleQueueDigitalOut(data *[]byte) error {
	var oid, clock, onTicks uint32
	if err := decodeUints(data, &oid, &clock, &onTicks); err != nil {
		return err
	}

	d, exists := digitalOutputs[uint8(oid)]
	if !exists || IsShutdown() {
		return nil
	}

	DeleteTimer(&d.timer)
	d.pendingOn = onTicks != 0
	d.timer.WakeTime = clock
	d.timer.Handler = d.loadEvent
	ScheduleTimer(&d.timer)
	return nil
}

// Format: update_digital_out oid=%c value=%c
func handleUpdateDigitalOut(data *[]byte) error {
	var oid, value uint32
	if err := decodeUints(data, &oid, &value); err != nil {
		return err
	}

	d, exists := digitalOutputs[uint8(oid)]
	if !exists || IsShutdown() {
		return nil
	}
	if d.maxDuration != 0 {
		return errors.New("digital_out: update_digital_out not valid with max_duration")
	}

	DeleteTimer(&d.timer)
	return d.set(value != 0)
}

func (d *digitalOut) set(on bool) error {
	if err := MustGPIO().SetPin(d.pin, on); err != nil {
		return err
	}
	d.on = on
	return nil
}

// loadEvent applies the queued state and arms the max_duration limit
func (d *digitalOut) loadEvent(t *Timer) uint8 {
	if err := d.set(d.pendingOn); err != nil {
		return SF_DONE
	}
	if d.maxDuration == 0 || d.on == d.defaultOn {
		return SF_DONE
	}
	t.WakeTime += d.maxDuration
	t.Handler = d.endEvent
	return SF_RESCHEDULE
}

// endEvent reverts an output left in its non-default state too long
func (d *digitalOut) endEvent(t *Timer) uint8 {
	_ = d.set(d.defaultOn)
	return SF_DONE
}

// ShutdownAllDigitalOut cancels pending changes and drives every output to
// its default value
func ShutdownAllDigitalOut() {
	for _, d := range digitalOutputs {
		DeleteTimer(&d.timer)
		_ = d.set(d.defaultOn)
	}
}

// ResetAllDigitalOut shuts every output down and forgets them
func ResetAllDigitalOut() {
	ShutdownAllDigitalOut()
	for oid := range digitalOutputs {
		delete(digitalOutputs, oid)
	}
}
