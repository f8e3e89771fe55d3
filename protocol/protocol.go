// Package protocol implements the Klipper communication protocol
package protocol

// Version is the wire protocol implementation version
const Version = "0.1.0"

// Protocol constants
const (
	MessageMax = 512 // Maximum output buffer size, several messages per flush

	// Message sequence mask
	MessageSeqMask = 0x0F
)

// nextSequence is the sequence byte that follows seq on the wire
func nextSequence(seq uint8) uint8 {
	return (seq+1)&MessageSeqMask | MessageDest
}
