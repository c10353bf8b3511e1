package mpegts

import (
	"errors"
	"fmt"
)

// Packet sizes and sync.
const (
	PacketSize = 188
	SyncByte   = 0x47
)

// Packet parsing errors.
var (
	ErrPacketSize = errors.New("mpegts: bad packet size")
	ErrSyncByte   = errors.New("mpegts: invalid sync byte")
)

// ParsePacket parses a 188-byte packet without copying its payload.
func ParsePacket(buf []byte) (Packet, error) {
	if len(buf) != PacketSize {
		return Packet{}, fmt.Errorf("%w: %d, expected %d", ErrPacketSize, len(buf), PacketSize)
	}
	if buf[0] != SyncByte {
		return Packet{}, fmt.Errorf("%w: 0x%02X", ErrSyncByte, buf[0])
	}

	var p Packet
	p.Header.TransportErrorIndicator = buf[1]&0x80 != 0
	p.Header.PayloadUnitStartIndicator = buf[1]&0x40 != 0
	p.Header.PID = uint16(buf[1]&0x1F)<<8 | uint16(buf[2])
	p.Header.HasAdaptationField = buf[3]&0x20 != 0
	p.Header.HasPayload = buf[3]&0x10 != 0
	p.Header.ContinuityCounter = buf[3] & 0x0F

	offset := 4

	if p.Header.HasAdaptationField {
		afLen := int(buf[offset])
		if afLen > 0 {
			p.Header.DiscontinuityIndicator = buf[offset+1]&0x80 != 0
		}
		offset += 1 + afLen
		if offset > PacketSize {
			offset = PacketSize
		}
	}

	if p.Header.HasPayload && offset < PacketSize {
		p.Payload = buf[offset:]
	}

	return p, nil
}

// PeekPID returns the PID of a packet without parsing the rest.
func PeekPID(buf []byte) uint16 {
	return uint16(buf[1]&0x1F)<<8 | uint16(buf[2])
}
