package mpegts

import "testing"

func FuzzParsePacket(f *testing.F) {
	// Seed: PSI packet with payload_unit_start and a zero pointer field
	pkt := make([]byte, PacketSize)
	pkt[0] = SyncByte
	pkt[1] = 0x40
	pkt[2] = 0x11
	pkt[3] = 0x10
	f.Add(pkt)

	// Seed: adaptation field filling the whole packet
	afPkt := make([]byte, PacketSize)
	afPkt[0] = SyncByte
	afPkt[1] = 0x00
	afPkt[2] = 0x11
	afPkt[3] = 0x30
	afPkt[4] = 0xB7
	f.Add(afPkt)

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) != PacketSize {
			return
		}
		p, err := ParsePacket(data) // must not panic
		if err == nil && len(p.Payload) > PacketSize-4 {
			t.Fatalf("payload of %d bytes", len(p.Payload))
		}
	})
}
