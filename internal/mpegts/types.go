// Package mpegts parses MPEG-TS packet headers and tracks per-PID
// continuity for the section reassembly stages.
package mpegts

// Packet is a parsed transport stream packet. Payload aliases the buffer
// the packet was parsed from.
type Packet struct {
	Header  PacketHeader
	Payload []byte
}

// PacketHeader contains the parsed header fields of a transport stream packet.
type PacketHeader struct {
	PID                       uint16
	ContinuityCounter         uint8
	HasAdaptationField        bool
	HasPayload                bool
	PayloadUnitStartIndicator bool
	TransportErrorIndicator   bool
	DiscontinuityIndicator    bool
}

// Well-known PIDs.
const (
	PIDPAT  = 0x0000
	PIDSDT  = 0x0011
	PIDNull = 0x1FFF
)
