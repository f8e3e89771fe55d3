package protocol

// crc16Seed starts every frame checksum
const crc16Seed = 0xFFFF

// CRC16 returns the CRC-16/CCITT checksum that closes each frame
// (byte-reflected form, seed 0xFFFF, no final xor)
func CRC16(data []byte) uint16 {
	crc := uint16(crc16Seed)
	for _, b := range data {
		crc = crc16Update(crc, b)
	}
	return crc
}

func crc16Update(crc uint16, b byte) uint16 {
	b ^= byte(crc)
	b ^= b << 4
	x := uint16(b)
	return (x<<8 | crc>>8) ^ x>>4 ^ x<<3
}
