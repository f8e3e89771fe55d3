package core

import (
	"sync/atomic"

	"sonar/protocol"
)

// commandQueueDepth is reported as move_count. The host refuses MCUs that
// report fewer than 16 slots; this firmware never queues moves.
const commandQueueDepth = 16

var (
	configCRC  atomic.Uint32 // non-zero once finalize_config arrived
	isShutdown atomic.Bool

	// Sending side of every response, set by the target
	globalTransport *protocol.Transport

	// Target reset, run from the main loop once the reset command is ACKed
	globalResetHandler func()
	resetPending       atomic.Bool
)

// InitCoreCommands registers the protocol bootstrap and housekeeping
// messages. It must run before any other registration: the host assumes
// identify_response is id 0 and identify is id 1.
func InitCoreCommands() {
	RegisterResponse("identify_response", "offset=%u data=%*s")
	RegisterCommand("identify", "offset=%u count=%c", handleIdentify)

	RegisterCommand("get_uptime", "", handleGetUptime)
	RegisterCommand("get_clock", "", handleGetClock)
	RegisterCommand("get_config", "", handleGetConfig)
	RegisterCommand("config_reset", "", handleConfigReset)
	RegisterCommand("finalize_config", "crc=%u", handleFinalizeConfig)
	RegisterCommand("allocate_oids", "count=%c", handleAllocateOids)
	RegisterCommand("emergency_stop", "", handleEmergencyStop)
	RegisterCommand("reset", "", handleReset)

	RegisterResponse("clock", "clock=%u")
	RegisterResponse("uptime", "high=%u clock=%u")
	RegisterResponse("config", "is_config=%c crc=%u is_shutdown=%c move_count=%hu")

	// MCU and CLOCK_FREQ come from the target
	RegisterConstant("STATS_SUMSQ_BASE", uint32(256))
}

// handleIdentify serves one chunk of the compressed data dictionary
func handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	chunk := GetGlobalDictionary().GetChunk(offset, uint8(count))
	SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
	return nil
}

func handleGetUptime(_ *[]byte) error {
	uptime := GetUptime()
	sendUints("uptime", uint32(uptime>>32), uint32(uptime))
	return nil
}

func handleGetClock(_ *[]byte) error {
	sendUints("clock", GetTime())
	return nil
}

func handleGetConfig(_ *[]byte) error {
	crc := configCRC.Load()
	sendUints("config", flag(crc != 0), crc, flag(isShutdown.Load()), commandQueueDepth)
	return nil
}

// handleConfigReset forgets every sensor and output so the host can
// configure from scratch
func handleConfigReset(_ *[]byte) error {
	configCRC.Store(0)
	ResetAllHCSR04()
	ResetAllDigitalOut()
	return nil
}

func handleFinalizeConfig(data *[]byte) error {
	crc, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	configCRC.Store(crc)
	return nil
}

// handleAllocateOids accepts any count; objects live in maps keyed by oid
func handleAllocateOids(data *[]byte) error {
	_, err := protocol.DecodeVLQUint(data)
	return err
}

func handleEmergencyStop(_ *[]byte) error {
	TryShutdown("emergency stop")
	return nil
}

// TryShutdown completes in-flight measurements, drives outputs to their
// defaults and ignores further sensor requests until reset
func TryShutdown(reason string) {
	isShutdown.Store(true)
	ShutdownAllHCSR04()
	ShutdownAllDigitalOut()
	DebugPrintln("[SHUTDOWN] " + reason)
	DumpTimingRing()
}

func IsShutdown() bool {
	return isShutdown.Load()
}

// ResetFirmwareState clears the configuration and shutdown flags after a
// host reconnect
func ResetFirmwareState() {
	configCRC.Store(0)
	isShutdown.Store(false)
}

// SendResponse encodes a registered response on the global transport.
// It is a no-op until SetGlobalTransport is called.
func SendResponse(name string, args func(output protocol.OutputBuffer)) {
	if globalTransport == nil {
		return
	}
	cmd, ok := globalRegistry.GetCommandByName(name)
	if !ok {
		// Responses are registered at init
		panic("response not registered: " + name)
	}
	globalTransport.SendCommand(cmd.ID, args)
}

// sendUints sends a response whose arguments are all integers
func sendUints(name string, vals ...uint32) {
	SendResponse(name, func(output protocol.OutputBuffer) {
		for _, v := range vals {
			protocol.EncodeVLQUint(output, v)
		}
	})
}

func flag(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func SetGlobalTransport(transport *protocol.Transport) {
	globalTransport = transport
}

// SetResetHandler installs the target's reset routine
func SetResetHandler(handler func()) {
	globalResetHandler = handler
}

// handleReset defers the reset until the ACK has gone out
func handleReset(_ *[]byte) error {
	resetPending.Store(true)
	return nil
}

// CheckPendingReset runs the reset handler if a reset was requested.
// Call from the main loop after output is flushed.
func CheckPendingReset() {
	if resetPending.Load() && globalResetHandler != nil {
		globalResetHandler()
	}
}
