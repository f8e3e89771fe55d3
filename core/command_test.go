package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonar/protocol"
)

func TestCommandRegistryAssignsDenseIDs(t *testing.T) {
	r := NewCommandRegistry()

	assert.Equal(t, uint16(0), r.Register("identify_response", "offset=%u data=%*s", nil))
	assert.Equal(t, uint16(1), r.Register("identify", "offset=%u count=%c", func(*[]byte) error { return nil }))
	assert.Equal(t, uint16(2), r.Register("hcsr04_measure", "oid=%c", func(*[]byte) error { return nil }))
	assert.Equal(t, uint16(2), r.Register("hcsr04_measure", "ignored", nil), "re-registering keeps the first id")

	cmd, ok := r.GetCommandByName("hcsr04_measure")
	require.True(t, ok)
	assert.Equal(t, "hcsr04_measure oid=%c", cmd.Signature())
	assert.False(t, cmd.IsResponse())

	_, ok = r.GetCommand(3)
	assert.False(t, ok)
	_, ok = r.GetCommandByName("config_hcsr04")
	assert.False(t, ok)
}

func TestCommandRegistryDispatch(t *testing.T) {
	r := NewCommandRegistry()

	var oid uint32
	id := r.Register("hcsr04_measure", "oid=%c", func(data *[]byte) error {
		v, err := protocol.DecodeVLQUint(data)
		oid = v
		return err
	})
	resultID := r.Register("hcsr04_result", "oid=%c err=%i delay_us=%u clock=%u", nil)

	out := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(out, 7)
	data := append([]byte(nil), out.Result()...)
	require.NoError(t, r.Dispatch(id, &data))
	assert.Equal(t, uint32(7), oid)
	assert.Empty(t, data)

	var empty []byte
	assert.ErrorIs(t, r.Dispatch(id, &empty), protocol.ErrBufferTooSmall, "handler errors pass through")

	err := r.Dispatch(resultID, &empty)
	assert.ErrorIs(t, err, ErrNotACommand)
	assert.EqualError(t, err, "response id received as a command 1")

	assert.ErrorIs(t, r.Dispatch(99, &empty), ErrUnknownCommand)
}

func TestCommandRegistryMessages(t *testing.T) {
	r := NewCommandRegistry()
	r.Register("identify_response", "offset=%u data=%*s", nil)
	r.Register("identify", "offset=%u count=%c", func(*[]byte) error { return nil })
	r.Register("emergency_stop", "", func(*[]byte) error { return nil })
	r.Register("hcsr04_result", "oid=%c err=%i delay_us=%u clock=%u", nil)

	commands, responses := r.Messages()
	assert.Equal(t, map[string]int{
		"identify offset=%u count=%c": 1,
		"emergency_stop":              2,
	}, commands)
	assert.Equal(t, map[string]int{
		"identify_response offset=%u data=%*s":             0,
		"hcsr04_result oid=%c err=%i delay_us=%u clock=%u": 3,
	}, responses)
}

func TestSensorMessagesRegistered(t *testing.T) {
	_, out := setupCommandTest(t)

	commands, responses := GetGlobalRegistry().Messages()
	assert.Contains(t, commands, "config_hcsr04 oid=%c trigger_pin=%u echo_pin=%u")
	assert.Contains(t, commands, "hcsr04_measure oid=%c")
	assert.Contains(t, responses, "hcsr04_result oid=%c err=%i delay_us=%u clock=%u")

	identify, ok := GetGlobalRegistry().GetCommandByName("identify")
	require.True(t, ok)
	assert.Equal(t, uint16(1), identify.ID)

	// A measure request dispatched by id reaches the sensor
	require.NoError(t, dispatch(t, "config_hcsr04", 2, int32(testTrigger), int32(testEcho)))
	measure, ok := GetGlobalRegistry().GetCommandByName("hcsr04_measure")
	require.True(t, ok)

	payload := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(payload, 2)
	data := append([]byte(nil), payload.Result()...)
	require.NoError(t, DispatchCommand(measure.ID, &data))
	assert.True(t, hcsr04Sensors[2].dev.Busy())
	assert.Empty(t, drainResponses(t, out), "result is sent once the echo completes")
}
