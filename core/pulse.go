package core

import "time"

// TriggerPulser emits a single trigger pulse of the given width. Pulse
// returns only after the line has been driven back low.
type TriggerPulser interface {
	Pulse(width time.Duration) error
}

// gpioPulser bit-bangs the pulse on a GPIO output with a calibrated busy-wait.
// Interrupts stay enabled, so an ISR landing inside the pulse stretches it;
// the sensor only needs a minimum width, and the timeout window absorbs it.
type gpioPulser struct {
	gpio GPIODriver
	pin  GPIOPin
}

func (p gpioPulser) Pulse(width time.Duration) error {
	if err := p.gpio.SetPin(p.pin, true); err != nil {
		return err
	}
	DelayMicroseconds(uint32(width / time.Microsecond))
	return p.gpio.SetPin(p.pin, false)
}
