//go:build !tinygo

package core

import "sync/atomic"

// systemTicks is the simulated counter used on regular Go
var systemTicks atomic.Uint32

// getSystemTicks returns the current system ticks (regular Go implementation)
func getSystemTicks() uint32 {
	if clockSource != nil {
		return clockSource()
	}
	return systemTicks.Load()
}

// setSystemTicks sets the system ticks (regular Go implementation)
func setSystemTicks(ticks uint32) {
	systemTicks.Store(ticks)
}

// AdvanceTime moves the simulated clock forward by us microseconds
func AdvanceTime(us uint32) {
	systemTicks.Add(TimerFromUS(us))
}
