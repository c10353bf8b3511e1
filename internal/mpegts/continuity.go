package mpegts

// Continuity classifies a packet against the previous one of its PID.
type Continuity int

const (
	// Continuous packets follow the previous one.
	Continuous Continuity = iota
	// Duplicate packets repeat the previous continuity counter and are
	// dropped.
	Duplicate
	// Discontinuity means packets were lost; buffered data must be dropped.
	Discontinuity
)

// ContinuityTracker follows the continuity counter of one PID.
type ContinuityTracker struct {
	last  uint8
	valid bool
}

// Check classifies h and records its counter. Packets without payload do
// not advance the counter. A signaled discontinuity is accepted as
// continuous.
func (c *ContinuityTracker) Check(h PacketHeader) Continuity {
	if !h.HasPayload {
		return Continuous
	}
	if !c.valid || h.DiscontinuityIndicator {
		c.last, c.valid = h.ContinuityCounter, true
		return Continuous
	}
	expected := (c.last + 1) & 0x0F
	switch h.ContinuityCounter {
	case expected:
		c.last = h.ContinuityCounter
		return Continuous
	case c.last:
		return Duplicate
	default:
		c.last = h.ContinuityCounter
		return Discontinuity
	}
}

// Reset forgets the last counter.
func (c *ContinuityTracker) Reset() {
	c.valid = false
}
