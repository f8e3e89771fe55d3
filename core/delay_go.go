//go:build !tinygo

package core

import "time"

// DelayMicroseconds busy-waits for us microseconds of wall time
func DelayMicroseconds(us uint32) {
	deadline := time.Now().Add(time.Duration(us) * time.Microsecond)
	for time.Now().Before(deadline) {
	}
}
