package serial

import (
	"io"
	"time"
)

// Port is an open serial line to the MCU. Tests substitute any
// io.ReadWriteCloser through mcu.Attach instead.
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate. USB CDC ignores it but tarm/serial requires one.
	Baud int

	// Zero blocks reads until data arrives
	ReadTimeout time.Duration
}

const (
	DefaultBaud        = 250000
	DefaultReadTimeout = 100 * time.Millisecond
)

// DefaultConfig returns the default configuration for device
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: DefaultReadTimeout,
	}
}
