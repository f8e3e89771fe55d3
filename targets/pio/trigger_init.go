//go:build rp2040 || rp2350

package pio

import (
	"sonar/core"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

var (
	// PIO allocation tracking
	// RP2040/RP2350 has 2 PIO blocks (PIO0, PIO1) with 4 state machines each
	pioAllocations = [2][4]bool{} // [pioNum][smNum]
	nextPIONum     = uint8(0)
	nextSMNum      = uint8(0)

	// Trigger program offset per PIO block, valid once loaded
	programLoaded [2]bool
	programOffset [2]uint8
)

// InitTriggerPulsers makes sensors configured from now on pulse their
// trigger from a PIO state machine. State machines stay allocated until
// reboot; sensors beyond the eighth fall back to the GPIO pulse.
func InitTriggerPulsers() {
	core.SetTriggerPulserFactory(createPIOPulser)
}

// createPIOPulser returns nil when no state machine is free. Slots claimed
// by other code are skipped and stay marked as allocated.
func createPIOPulser(trigger core.GPIOPin) (core.TriggerPulser, error) {
	for {
		pioNum, smNum, ok := allocatePIO()
		if !ok {
			return nil, nil
		}
		p := NewPIOTriggerPulser(pioNum, smNum, trigger)
		if p.sm.TryClaim() {
			return p, nil
		}
	}
}

// loadTriggerProgram loads the program once per PIO block
func loadTriggerProgram(pioNum uint8, hw *rp2pio.PIO, program []uint16) (uint8, error) {
	if programLoaded[pioNum] {
		return programOffset[pioNum], nil
	}
	offset, err := hw.AddProgram(program, triggerPIOOrigin)
	if err != nil {
		return 0, err
	}
	programLoaded[pioNum] = true
	programOffset[pioNum] = offset
	return offset, nil
}

// allocatePIO allocates a PIO state machine
// Returns (pioNum, smNum, ok)
func allocatePIO() (uint8, uint8, bool) {
	// Round-robin allocation across PIO blocks and state machines
	for i := 0; i < 8; i++ { // 2 PIO × 4 SM = 8 total
		pioNum := nextPIONum
		smNum := nextSMNum

		// Advance to next slot
		nextSMNum++
		if nextSMNum >= 4 {
			nextSMNum = 0
			nextPIONum = (nextPIONum + 1) % 2
		}

		if !pioAllocations[pioNum][smNum] {
			pioAllocations[pioNum][smNum] = true
			return pioNum, smNum, true
		}
	}

	return 0, 0, false
}
