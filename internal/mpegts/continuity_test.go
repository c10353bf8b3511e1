package mpegts

import "testing"

func hdr(cc uint8) PacketHeader {
	return PacketHeader{PID: 0x11, HasPayload: true, ContinuityCounter: cc}
}

func TestContinuity_Sequence(t *testing.T) {
	t.Parallel()
	var c ContinuityTracker
	for i, cc := range []uint8{14, 15, 0, 1} {
		if got := c.Check(hdr(cc)); got != Continuous {
			t.Fatalf("packet %d (cc %d) = %v, want Continuous", i, cc, got)
		}
	}
}

func TestContinuity_Duplicate(t *testing.T) {
	t.Parallel()
	var c ContinuityTracker
	c.Check(hdr(3))
	if got := c.Check(hdr(3)); got != Duplicate {
		t.Fatalf("repeated cc = %v, want Duplicate", got)
	}
	if got := c.Check(hdr(4)); got != Continuous {
		t.Fatalf("cc after duplicate = %v, want Continuous", got)
	}
}

func TestContinuity_Jump(t *testing.T) {
	t.Parallel()
	var c ContinuityTracker
	c.Check(hdr(1))
	if got := c.Check(hdr(5)); got != Discontinuity {
		t.Fatalf("cc jump = %v, want Discontinuity", got)
	}
	if got := c.Check(hdr(6)); got != Continuous {
		t.Fatalf("cc after jump = %v, want Continuous", got)
	}
}

func TestContinuity_SignaledAndNoPayload(t *testing.T) {
	t.Parallel()
	var c ContinuityTracker
	c.Check(hdr(1))

	signaled := hdr(9)
	signaled.DiscontinuityIndicator = true
	if got := c.Check(signaled); got != Continuous {
		t.Fatalf("signaled discontinuity = %v, want Continuous", got)
	}

	if got := c.Check(PacketHeader{ContinuityCounter: 2}); got != Continuous {
		t.Fatalf("adaptation-only packet = %v, want Continuous", got)
	}
	if got := c.Check(hdr(10)); got != Continuous {
		t.Fatalf("adaptation-only packet must not advance the counter: %v", got)
	}

	c.Reset()
	if got := c.Check(hdr(0)); got != Continuous {
		t.Fatalf("after reset = %v, want Continuous", got)
	}
}
