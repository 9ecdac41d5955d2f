package rcon

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// BattlEye packet types.
const (
	packetLogin   byte = 0x00
	packetCommand byte = 0x01
	packetMessage byte = 0x02
)

var errMalformed = errors.New("malformed packet")

// encode frames payload as 'B' 'E' crc32 0xFF type payload. The checksum
// covers everything from the 0xFF byte on.
func encode(typ byte, payload []byte) []byte {
	body := make([]byte, 0, 2+len(payload))
	body = append(body, 0xFF, typ)
	body = append(body, payload...)

	out := make([]byte, 6, 6+len(body))
	out[0], out[1] = 'B', 'E'
	binary.LittleEndian.PutUint32(out[2:6], crc32.ChecksumIEEE(body))
	return append(out, body...)
}

// decode validates a packet and returns its type and payload.
func decode(packet []byte) (byte, []byte, error) {
	if len(packet) < 8 || packet[0] != 'B' || packet[1] != 'E' || packet[6] != 0xFF {
		return 0, nil, errMalformed
	}
	if binary.LittleEndian.Uint32(packet[2:6]) != crc32.ChecksumIEEE(packet[6:]) {
		return 0, nil, errors.New("packet checksum mismatch")
	}
	return packet[7], packet[8:], nil
}
