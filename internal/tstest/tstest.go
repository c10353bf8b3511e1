// Package tstest builds SDT sections and MPEG-TS packets for tests and the
// stream generator.
package tstest

import (
	"encoding/binary"

	"github.com/zsiec/siflow/psi"
)

// PacketSize is the fixed size of an MPEG-TS packet.
const PacketSize = 188

// SDT table ids.
const (
	TableSDTActual = 0x42
	TableSDTOther  = 0x46
)

// Service describes one SDT service entry.
type Service struct {
	ID          uint16
	EITSchedule bool
	EITPresent  bool
	Running     uint8
	FreeCA      bool
	Descriptors []byte
}

// Descriptor builds a raw descriptor with its 2-byte header.
func Descriptor(tag uint8, payload ...byte) []byte {
	d := make([]byte, 2, 2+len(payload))
	d[0] = tag
	d[1] = byte(len(payload))
	return append(d, payload...)
}

// ServiceDescriptor builds a 0x48 descriptor from already encoded strings.
func ServiceDescriptor(serviceType uint8, provider, name []byte) []byte {
	p := []byte{serviceType, byte(len(provider))}
	p = append(p, provider...)
	p = append(p, byte(len(name)))
	p = append(p, name...)
	return Descriptor(0x48, p...)
}

// Concat joins descriptors into a loop.
func Concat(descs ...[]byte) []byte {
	var out []byte
	for _, d := range descs {
		out = append(out, d...)
	}
	return out
}

// Section builds a syntax-1 PSI section around payload and appends the
// CRC32.
func Section(tableID uint8, ext uint16, version, num, last uint8, payload []byte) []byte {
	sectionLength := 5 + len(payload) + psi.CRCSize

	data := make([]byte, 3+sectionLength)
	data[0] = tableID
	data[1] = 0xF0 | byte(sectionLength>>8)&0x0F
	data[2] = byte(sectionLength)
	binary.BigEndian.PutUint16(data[3:5], ext)
	data[5] = 0xC1 | (version&0x1F)<<1
	data[6] = num
	data[7] = last
	copy(data[8:], payload)

	crc := psi.CRC32(data[:len(data)-psi.CRCSize])
	binary.BigEndian.PutUint32(data[len(data)-psi.CRCSize:], crc)
	return data
}

// SDTPayload builds the SDT body following the 8-byte PSI header:
// original_network_id, a reserved byte and the service loop.
func SDTPayload(onid uint16, services ...Service) []byte {
	p := []byte{byte(onid >> 8), byte(onid), 0xFF}
	for _, s := range services {
		p = append(p, byte(s.ID>>8), byte(s.ID))
		flags := byte(0xFC)
		if s.EITSchedule {
			flags |= 0x02
		}
		if s.EITPresent {
			flags |= 0x01
		}
		p = append(p, flags)
		dl := len(s.Descriptors)
		b := (s.Running&0x07)<<5 | byte(dl>>8)&0x0F
		if s.FreeCA {
			b |= 0x10
		}
		p = append(p, b, byte(dl))
		p = append(p, s.Descriptors...)
	}
	return p
}

// SDTSection builds a complete SDT section.
func SDTSection(tableID uint8, tsid, onid uint16, version, num, last uint8, services ...Service) []byte {
	return Section(tableID, tsid, version, num, last, SDTPayload(onid, services...))
}

// Resign recomputes the CRC32 of a section modified in place.
func Resign(section []byte) []byte {
	n := len(section) - psi.CRCSize
	binary.BigEndian.PutUint32(section[n:], psi.CRC32(section[:n]))
	return section
}

// Packetize splits a section into TS packets on pid. The first packet
// carries the payload_unit_start_indicator and a zero pointer field; the
// last one is padded with 0xFF stuffing. cc is advanced for each packet.
func Packetize(section []byte, pid uint16, cc *uint8) [][]byte {
	var out [][]byte
	data := append([]byte{0x00}, section...)
	first := true
	for len(data) > 0 {
		pkt := make([]byte, PacketSize)
		pkt[0] = 0x47
		pkt[1] = byte(pid>>8) & 0x1F
		pkt[2] = byte(pid)
		if first {
			pkt[1] |= 0x40
			first = false
		}
		pkt[3] = 0x10 | (*cc & 0x0F)
		*cc = (*cc + 1) & 0x0F

		n := copy(pkt[4:], data)
		for i := 4 + n; i < PacketSize; i++ {
			pkt[i] = 0xFF
		}
		data = data[n:]
		out = append(out, pkt)
	}
	return out
}

// Join concatenates packets into a contiguous stream.
func Join(packets ...[]byte) []byte {
	out := make([]byte, 0, len(packets)*PacketSize)
	for _, p := range packets {
		out = append(out, p...)
	}
	return out
}
