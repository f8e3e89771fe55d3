//go:build rp2040 || rp2350

package pio

// PIO trigger pulser: the state machine holds the trigger high for an exact
// number of 1µs cycles, so interrupts on the CPU cannot stretch the pulse.

import (
	"errors"
	"machine"
	"time"

	"sonar/core"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

var errPulseWidth = errors.New("pio: trigger pulse width out of range")

// buildTriggerProgram creates the pulse program using AssemblerV0.
// High time is x+2 cycles for a pulled x.
func buildTriggerProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),          // 0: pull block
		asm.Out(rp2pio.OutDestX, 32).Encode(),   // 1: out x, 32
		asm.Set(rp2pio.SetDestPins, 1).Encode(), // 2: set pins, 1
		// hold:
		asm.Jmp(triggerPIOOrigin+3, rp2pio.JmpXNZeroDec).Encode(), // 3: jmp x--, hold
		asm.Set(rp2pio.SetDestPins, 0).Encode(),                   // 4: set pins, 0
		// .wrap
	}
}

// Jump targets are absolute, so every PIO block loads the program at offset 0
const triggerPIOOrigin = 0

// triggerCycle is one state machine cycle
const triggerCycle = time.Microsecond

// PIOTriggerPulser implements core.TriggerPulser on a PIO state machine
type PIOTriggerPulser struct {
	pio    *rp2pio.PIO
	sm     rp2pio.StateMachine
	pin    machine.Pin
	pioNum uint8
	smNum  uint8
	ready  bool
}

// NewPIOTriggerPulser creates a pulser on the given PIO block and state
// machine, which the caller claims. The pin is taken over from GPIO on the first pulse, after the sensor has
// configured it as a low output.
func NewPIOTriggerPulser(pioNum, smNum uint8, pin core.GPIOPin) *PIOTriggerPulser {
	var pioHW *rp2pio.PIO
	if pioNum == 0 {
		pioHW = rp2pio.PIO0
	} else {
		pioHW = rp2pio.PIO1
	}

	return &PIOTriggerPulser{
		pio:    pioHW,
		sm:     pioHW.StateMachine(smNum),
		pin:    machine.Pin(pin),
		pioNum: pioNum,
		smNum:  smNum,
	}
}

// init loads the program and takes the pin. The state machine must
// already be claimed.
func (p *PIOTriggerPulser) init() error {
	program := buildTriggerProgram()
	offset, err := loadTriggerProgram(p.pioNum, p.pio, program)
	if err != nil {
		return err
	}

	p.pin.Configure(machine.PinConfig{Mode: p.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(p.pin, 1)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	p.sm.Init(offset, cfg)

	whole, frac, err := rp2pio.ClkDivFromPeriod(uint32(triggerCycle), uint32(machine.CPUFrequency()))
	if err != nil {
		return err
	}
	p.sm.SetClkDiv(whole, frac)

	// Pin direction and level must be set after Init
	p.sm.SetPindirsConsecutive(p.pin, 1, true)
	p.sm.SetPinsConsecutive(p.pin, 1, false)
	p.sm.SetEnabled(true)

	p.ready = true
	return nil
}

// Pulse drives the trigger high for width and returns once it is low again
func (p *PIOTriggerPulser) Pulse(width time.Duration) error {
	cycles := uint32(width / triggerCycle)
	if cycles < 2 {
		return errPulseWidth
	}
	if !p.ready {
		if err := p.init(); err != nil {
			return err
		}
	}

	for p.sm.IsTxFIFOFull() {
		// Busy wait, the previous pulse is still being pulled
	}
	p.sm.TxPut(cycles - 2)

	// Pulled once the FIFO drains; the pin falls within cycles+2 after that
	for p.sm.TxFIFOLevel() > 0 {
		// Busy wait
	}
	core.DelayMicroseconds(cycles + 2)
	return nil
}
