//go:build js && wasm

// Command wasm exposes sonar's wire codec to a browser page that talks to
// the MCU over WebSerial. The page owns the port; this module frames
// commands and decodes frames and hcsr04_result payloads.
package main

import (
	"encoding/hex"
	"errors"
	"syscall/js"
	"time"

	"sonar/core"
	"sonar/protocol"
)

func main() {
	js.Global().Set("sonarWasm", js.ValueOf(map[string]interface{}{
		"encodeCommand":      js.FuncOf(encodeCommandWrapper),
		"decodeFrame":        js.FuncOf(decodeFrameWrapper),
		"decodeHCSR04Result": js.FuncOf(decodeHCSR04ResultWrapper),
		"crc16":              js.FuncOf(crc16Wrapper),
		"version":            protocol.Version,
	}))

	// Keep the program running
	select {}
}

// encodeCommandWrapper frames one command
// Args: seq (number, low 4 bits used), cmdID (number), args (array of int32)
// Returns: hex string of the complete block
func encodeCommandWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return errorResult("missing arguments")
	}

	payload := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(payload, uint32(args[1].Int()))
	list := args[2]
	for i := 0; i < list.Length(); i++ {
		protocol.EncodeVLQInt(payload, int32(list.Index(i).Int()))
	}

	seq := uint8(args[0].Int())&protocol.MessageSeqMask | protocol.MessageDest
	return js.ValueOf(hex.EncodeToString(protocol.EncodeBlock(seq, payload.Result())))
}

// decodeFrameWrapper decodes one complete block
// Args: hexString
// Returns: {seq, ack, cmdID, payload (hex, after the command id)} or {error}
func decodeFrameWrapper(this js.Value, args []js.Value) interface{} {
	data, err := hexArg(args)
	if err != nil {
		return errorResult(err.Error())
	}

	if len(data) < protocol.MessageLengthMin || int(data[protocol.MessagePositionLen]) != len(data) {
		return errorResult("incomplete frame")
	}
	if data[len(data)-protocol.MessageTrailerSync] != protocol.MessageValueSync {
		return errorResult("missing sync byte")
	}
	crcAt := len(data) - protocol.MessageTrailerCRC
	if protocol.CRC16(data[:crcAt]) != uint16(data[crcAt])<<8|uint16(data[crcAt+1]) {
		return errorResult("bad crc")
	}

	result := map[string]interface{}{
		"seq": int(data[protocol.MessagePositionSeq]),
		"ack": crcAt == protocol.MessageHeaderSize,
	}
	payload := data[protocol.MessageHeaderSize:crcAt]
	if len(payload) > 0 {
		cmdID, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return errorResult(err.Error())
		}
		result["cmdID"] = int(cmdID)
		result["payload"] = hex.EncodeToString(payload)
	}
	return js.ValueOf(result)
}

// decodeHCSR04ResultWrapper decodes "oid=%c err=%i delay_us=%u clock=%u"
// Args: payload hex as returned by decodeFrame
// Returns: {oid, err, errText, delayUS, clock, distance (metres)} or {error}
func decodeHCSR04ResultWrapper(this js.Value, args []js.Value) interface{} {
	data, err := hexArg(args)
	if err != nil {
		return errorResult(err.Error())
	}

	oid, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		return errorResult(err.Error())
	}
	code, err := protocol.DecodeVLQInt(&data)
	if err != nil {
		return errorResult(err.Error())
	}
	delayUS, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		return errorResult(err.Error())
	}
	clock, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		return errorResult(err.Error())
	}

	measErr := core.MeasureError(int8(code))
	distance := 0.0
	if measErr == core.MeasureOK {
		distance = float64(core.DelayToDistance(time.Duration(delayUS) * time.Microsecond))
	}
	return js.ValueOf(map[string]interface{}{
		"oid":      int(oid),
		"err":      int(code),
		"errText":  measErr.Error(),
		"delayUS":  int(delayUS),
		"clock":    int(clock),
		"distance": distance,
	})
}

// crc16Wrapper calculates the frame CRC16
// Args: hexString
// Returns: number (uint16)
func crc16Wrapper(this js.Value, args []js.Value) interface{} {
	data, err := hexArg(args)
	if err != nil {
		return js.ValueOf(0)
	}
	return js.ValueOf(int(protocol.CRC16(data)))
}

func hexArg(args []js.Value) ([]byte, error) {
	if len(args) < 1 {
		return nil, errors.New("missing hex string argument")
	}
	data, err := hex.DecodeString(args[0].String())
	if err != nil {
		return nil, errors.New("invalid hex string: " + err.Error())
	}
	return data, nil
}

func errorResult(msg string) js.Value {
	return js.ValueOf(map[string]interface{}{"error": msg})
}
