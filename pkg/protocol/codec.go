package protocol

import (
	"encoding/binary"
	"fmt"
)

// crcTable is the reflected CRC-16 table for polynomial 0x8408, built once
// at init time the same way the teacher precomputes its CRC-16/ARC table in
// usock.go — except this one is polynomial 0x8408 (CRC-16/X.25 family), per
// the wire format's required algorithm.
var crcTable [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for j := 0; j < 8; j++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
		crcTable[i] = crc
	}
}

// CRC16 computes the frame CRC over data, seeded with seed. Calling it
// incrementally over successive byte ranges yields the same result as one
// shot over the concatenation: CRC16(b, CRC16(a, seed)) == CRC16(a||b, seed).
func CRC16(data []byte, seed uint16) uint16 {
	crc := seed
	for _, b := range data {
		crc = (crc >> 8) ^ crcTable[byte(crc)^b]
	}
	return crc
}

// ErrTooManyArguments is returned by Serialize when a command's argument
// count would overflow the 16-bit arg_count field.
var ErrTooManyArguments = fmt.Errorf("protocol: argument count exceeds %d", MaxArguments)

// Serialize produces the on-wire byte representation of c: an 8-byte
// header, the big-endian int32 arguments, and a 6-byte footer carrying the
// CRC computed over header+payload. Serialization is infallible for a
// well-formed command; the only failure mode is an oversized argument list.
func Serialize(c Command) ([]byte, error) {
	argCount := len(c.Arguments)
	if argCount > MaxArguments {
		return nil, ErrTooManyArguments
	}

	buf := make([]byte, FrameSize(argCount))

	binary.BigEndian.PutUint16(buf[0:2], StartCode1)
	binary.BigEndian.PutUint16(buf[2:4], StartCode2)
	binary.BigEndian.PutUint16(buf[4:6], c.Code)
	binary.BigEndian.PutUint16(buf[6:8], uint16(argCount))

	off := headerSize
	for _, arg := range c.Arguments {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(arg))
		off += 4
	}

	crc := CRC16(buf[:off], 0)
	binary.BigEndian.PutUint16(buf[off:off+2], crc)
	binary.BigEndian.PutUint16(buf[off+2:off+4], EndCode1)
	binary.BigEndian.PutUint16(buf[off+4:off+6], EndCode2)

	return buf, nil
}
