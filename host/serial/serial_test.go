package serial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyACM0")
	assert.Equal(t, &Config{Device: "/dev/ttyACM0", Baud: 250000, ReadTimeout: 100 * time.Millisecond}, cfg)
}

func TestOpenRejectsMissingDevice(t *testing.T) {
	_, err := Open(nil)
	assert.ErrorContains(t, err, "no serial device")

	_, err = Open(DefaultConfig(""))
	assert.ErrorContains(t, err, "no serial device")
}
