//go:build tinygo

package core

import (
	"sync/atomic"
	"time"
)

var (
	// tickOffset shifts the raw counter so SetTime can rebase the clock
	tickOffset  atomic.Uint32
	bootInstant = time.Now()
)

func rawTicks() uint32 {
	if clockSource != nil {
		return clockSource()
	}
	return uint32(time.Since(bootInstant) / time.Microsecond)
}

// getSystemTicks returns the current system ticks
func getSystemTicks() uint32 {
	return rawTicks() + tickOffset.Load()
}

// setSystemTicks sets the system ticks
func setSystemTicks(ticks uint32) {
	tickOffset.Store(ticks - rawTicks())
}
