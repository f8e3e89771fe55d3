//go:build tinygo

package core

import (
	"time"

	"tinygo.org/x/drivers/delay"
)

// DelayMicroseconds busy-waits for us microseconds using the cycle-counted
// delay from the TinyGo drivers package
func DelayMicroseconds(us uint32) {
	delay.Sleep(time.Duration(us) * time.Microsecond)
}
