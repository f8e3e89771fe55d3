//go:build !tinygo

package core

import "sync"

// State is a placeholder for interrupt state on regular Go
type State uintptr

// irqMu stands in for the CPU's interrupt mask when running on regular Go.
// Holding it means "interrupts disabled"; simulated interrupts take it too,
// so they can neither preempt a masked section nor be preempted by one.
// Masked sections do not nest on regular Go.
var irqMu sync.Mutex

// disableInterrupts masks simulated interrupts
func disableInterrupts() State {
	irqMu.Lock()
	return 0
}

// restoreInterrupts unmasks simulated interrupts
func restoreInterrupts(state State) {
	irqMu.Unlock()
}

// RunInterrupt delivers a simulated interrupt: fn runs with interrupts
// masked, exactly as a hardware ISR would on a single-core MCU.
func RunInterrupt(fn func()) {
	irqMu.Lock()
	defer irqMu.Unlock()
	fn()
}
