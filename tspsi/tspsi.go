// Package tspsi reassembles PSI sections from transport stream packets of a
// single PID.
package tspsi

import (
	"errors"
	"fmt"
	"slices"

	"github.com/zsiec/siflow/block"
	"github.com/zsiec/siflow/internal/mpegts"
	"github.com/zsiec/siflow/pipe"
	"github.com/zsiec/siflow/psi"
)

// ExpectedFlowDef is the input flow definition prefix.
const ExpectedFlowDef = "block.mpegts."

// DefaultFlowDef is the output definition used when SetPID names none.
const DefaultFlowDef = "block.mpegtspsi."

// Signature identifies section assemblers in local commands.
const Signature uint32 = 0x74707369 // "tpsi"

// noPID marks an assembler with no PID selected.
const noPID = -1

// SetPID is a local command selecting the PID to reassemble. Sections whose
// table id is not in TableIDs are dropped; an empty list keeps all of them.
type SetPID struct {
	PID      uint16
	TableIDs []uint8
	FlowDef  string
}

type manager struct{}

// Manager returns the manager of section assemblers.
func Manager() pipe.Manager { return manager{} }

func (manager) Name() string      { return "ts_psi" }
func (manager) Signature() uint32 { return Signature }

func (m manager) Alloc(probe pipe.Probe, sig uint32, opts ...pipe.Option) (pipe.Pipe, error) {
	if sig != pipe.SignatureVoid {
		return nil, fmt.Errorf("%w: unexpected signature 0x%08x", pipe.ErrAlloc, sig)
	}
	a := &Assembler{
		pid:     noPID,
		outDef:  DefaultFlowDef,
		pool:    block.NewPool(psi.MaxPrivateSectionSize),
		pending: make([]byte, 0, psi.MaxPrivateSectionSize),
	}
	a.Init(a, m, probe, pipe.NewOptions(opts...), a.free)
	a.ThrowReady()
	return a, nil
}

// Assembler is the section reassembly pipe. It outputs one block per
// section, header and CRC included.
type Assembler struct {
	pipe.Base

	pid      int
	tableIDs []uint8
	outDef   string

	cc      mpegts.ContinuityTracker
	synced  bool
	pending []byte
	pool    *block.Pool
}

// Input consumes one 188-byte packet.
func (a *Assembler) Input(ref *block.Ref) {
	defer ref.Release()
	if a.FlowDefInput() == nil {
		a.Warn("received data before flow definition")
		return
	}

	pkt, err := mpegts.ParsePacket(ref.Bytes())
	if err != nil {
		a.Warn("invalid packet", "error", err)
		a.Count("invalid_packet")
		return
	}
	if int(pkt.Header.PID) != a.pid {
		return
	}
	if pkt.Header.TransportErrorIndicator {
		a.Count("transport_error")
		a.cc.Reset()
		a.resync()
		return
	}

	switch a.cc.Check(pkt.Header) {
	case mpegts.Duplicate:
		a.Count("duplicate")
		return
	case mpegts.Discontinuity:
		a.Warn("continuity error", "pid", a.pid)
		a.Count("discontinuity")
		a.resync()
	}

	payload := pkt.Payload
	if len(payload) == 0 {
		return
	}
	if !pkt.Header.PayloadUnitStartIndicator {
		if a.synced {
			a.feed(payload)
		}
		return
	}

	pointer := int(payload[0])
	if 1+pointer > len(payload) {
		a.Warn("pointer field out of range", "pointer", pointer)
		a.resync()
		return
	}
	if a.synced {
		a.feed(payload[1 : 1+pointer])
		if len(a.pending) > 0 {
			a.Warn("dropping truncated section", "size", len(a.pending))
			a.Count("truncated_section")
		}
	}
	a.pending = a.pending[:0]
	a.synced = true
	a.feed(payload[1+pointer:])
}

// feed appends data to the section under assembly and outputs every
// section it completes.
func (a *Assembler) feed(data []byte) {
	a.pending = append(a.pending, data...)
	for len(a.pending) > 0 {
		if a.pending[0] == 0xFF {
			// stuffing until the next unit start
			a.resync()
			return
		}
		if len(a.pending) < 3 {
			return
		}
		size := 3 + (int(a.pending[1]&0x0F)<<8 | int(a.pending[2]))
		if size > psi.MaxPrivateSectionSize {
			a.Warn("section too large", "size", size)
			a.Count("oversized_section")
			a.resync()
			return
		}
		if len(a.pending) < size {
			return
		}
		a.output(a.pending[:size])
		a.pending = append(a.pending[:0], a.pending[size:]...)
	}
}

func (a *Assembler) output(section []byte) {
	if len(a.tableIDs) > 0 && !slices.Contains(a.tableIDs, section[0]) {
		return
	}
	ref, mem := a.pool.Alloc(len(section))
	copy(mem, section)
	a.Count("section")
	a.Forward(ref)
}

func (a *Assembler) resync() {
	a.pending = a.pending[:0]
	a.synced = false
}

// Control handles the output commands, the input flow definition and
// SetPID.
func (a *Assembler) Control(cmd pipe.Command) error {
	if err := a.ControlOutput(cmd); !errors.Is(err, pipe.ErrUnhandled) {
		return err
	}
	switch cmd := cmd.(type) {
	case *pipe.SetFlowDefCmd:
		if cmd.FlowDef == nil {
			return pipe.ErrInvalid
		}
		if err := cmd.FlowDef.MatchDef(ExpectedFlowDef); err != nil {
			return fmt.Errorf("%w: %w", pipe.ErrInvalid, err)
		}
		a.StoreFlowDefInput(cmd.FlowDef.Dup())
		if a.pid == noPID {
			if pid, err := cmd.FlowDef.PID(); err == nil {
				a.pid = int(pid)
			}
		}
		return a.updateFlowDef()
	case *pipe.LocalCmd:
		if cmd.Signature != Signature {
			return pipe.ErrUnhandled
		}
		c, ok := cmd.Command.(*SetPID)
		if !ok {
			return pipe.ErrUnhandled
		}
		return a.setPID(c)
	}
	return pipe.ErrUnhandled
}

func (a *Assembler) setPID(c *SetPID) error {
	if c.PID > mpegts.PIDNull {
		return fmt.Errorf("%w: pid %d", pipe.ErrInvalid, c.PID)
	}
	a.pid = int(c.PID)
	a.tableIDs = slices.Clone(c.TableIDs)
	a.outDef = c.FlowDef
	if a.outDef == "" {
		a.outDef = DefaultFlowDef
	}
	a.cc.Reset()
	a.resync()
	return a.updateFlowDef()
}

func (a *Assembler) updateFlowDef() error {
	if a.FlowDefInput() == nil {
		return nil
	}
	def := a.FlowDefInput().Dup()
	if err := def.SetDef(a.outDef); err != nil {
		return err
	}
	if a.pid != noPID {
		def.SetPID(uint16(a.pid))
	}
	a.StoreFlowDef(def)
	return nil
}

func (a *Assembler) free() {
	a.pending = nil
	a.CleanOutput()
	a.CleanFlowDef()
}

// Select points p, a section assembler, at pid. Sections are output under
// def, or DefaultFlowDef when def is empty.
func Select(p pipe.Pipe, pid uint16, def string, tableIDs ...uint8) error {
	return pipe.Local(p, Signature, &SetPID{PID: pid, TableIDs: tableIDs, FlowDef: def})
}
