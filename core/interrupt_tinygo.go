//go:build tinygo

package core

import "runtime/interrupt"

// disableInterrupts disables interrupts and returns the previous state
func disableInterrupts() interrupt.State {
	return interrupt.Disable()
}

// restoreInterrupts restores the interrupt state
func restoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}

// RunInterrupt runs fn as interrupt context. Hardware ISRs already run that
// way; this exists for software-raised events such as a polled edge.
func RunInterrupt(fn func()) {
	state := interrupt.Disable()
	fn()
	interrupt.Restore(state)
}
