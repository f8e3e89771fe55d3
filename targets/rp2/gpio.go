//go:build rp2040

package rp2

import (
	"errors"
	"machine"
	"sync/atomic"

	"sonar/core"
)

// GPIOCount is the number of user GPIOs (GPIO0-GPIO29)
const GPIOCount = 30

var errInvalidPin = errors.New("rp2040: invalid gpio")

// edgeBinding holds the handlers for one echo input. Handlers are written
// only while delivery is disabled.
type edgeBinding struct {
	rise, fall func()
	enabled    atomic.Bool
	hooked     bool
}

// RPGPIODriver implements core.GPIODriver and core.EdgeDriver for the RP2040
type RPGPIODriver struct {
	// Track configured pins to prevent conflicts
	configuredPins map[core.GPIOPin]machine.Pin

	// Indexed by GPIO number so the IRQ path does no map lookups
	edges [GPIOCount]edgeBinding
}

// NewRPGPIODriver creates a new RP2040 GPIO driver
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{
		configuredPins: make(map[core.GPIOPin]machine.Pin),
	}
}

func (d *RPGPIODriver) configure(pin core.GPIOPin, mode machine.PinMode) error {
	if pin >= GPIOCount {
		return errInvalidPin
	}
	machinePin := machine.Pin(pin)
	machinePin.Configure(machine.PinConfig{Mode: mode})
	d.configuredPins[pin] = machinePin
	return nil
}

// ConfigureOutput configures a pin as a digital output
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinOutput)
}

// ConfigureInput configures a pin as a floating digital input
func (d *RPGPIODriver) ConfigureInput(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinInput)
}

func (d *RPGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinInputPullup)
}

func (d *RPGPIODriver) ConfigureInputPullDown(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinInputPulldown)
}

// SetPin sets the pin to high (true) or low (false)
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	machinePin, exists := d.configuredPins[pin]
	if !exists {
		// Pin isn't configured - configure it first
		if err := d.ConfigureOutput(pin); err != nil {
			return err
		}
		machinePin = d.configuredPins[pin]
	}

	machinePin.Set(value)
	return nil
}

// GetPin reads the current pin state
func (d *RPGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	machinePin, exists := d.configuredPins[pin]
	if !exists {
		return false, nil
	}
	return machinePin.Get(), nil
}

func (d *RPGPIODriver) ReadPin(pin core.GPIOPin) bool {
	value, _ := d.GetPin(pin)
	return value
}

// BindEdges hooks the pin's bank interrupt once; rebinding after a config
// reset only swaps the handlers
func (d *RPGPIODriver) BindEdges(pin core.GPIOPin, rise, fall func()) error {
	if pin >= GPIOCount {
		return errInvalidPin
	}
	b := &d.edges[pin]
	b.enabled.Store(false)
	b.rise, b.fall = rise, fall

	if b.hooked {
		return nil
	}
	if err := machine.Pin(pin).SetInterrupt(machine.PinToggle, d.handleEdge); err != nil {
		return err
	}
	b.hooked = true
	return nil
}

func (d *RPGPIODriver) EnableEdgeIRQ(pin core.GPIOPin) {
	if pin < GPIOCount {
		d.edges[pin].enabled.Store(true)
	}
}

func (d *RPGPIODriver) DisableEdgeIRQ(pin core.GPIOPin) {
	if pin < GPIOCount {
		d.edges[pin].enabled.Store(false)
	}
}

// handleEdge runs in the IO_IRQ_BANK0 handler. Both edges share one
// callback, so the level read here tells them apart.
func (d *RPGPIODriver) handleEdge(p machine.Pin) {
	if p >= GPIOCount {
		return
	}
	b := &d.edges[p]
	if !b.enabled.Load() {
		return
	}
	if p.Get() {
		b.rise()
	} else {
		b.fall()
	}
}
