// Package tscheck splits a raw byte stream into transport stream packets.
//
// Input blocks may hold any number of packets and may cut packets at
// arbitrary places; the partial tail of a block is carried over to the next
// one. When a packet does not start with the sync byte, the rest of the
// block is dropped and packets are looked for again from the next block.
package tscheck

import (
	"errors"
	"fmt"

	"github.com/zsiec/siflow/block"
	"github.com/zsiec/siflow/internal/mpegts"
	"github.com/zsiec/siflow/pipe"
)

// ExpectedFlowDef is the input flow definition prefix.
const ExpectedFlowDef = "block."

// OutputFlowDef is the definition of the packets output.
const OutputFlowDef = "block.mpegts."

// Signature identifies checker pipes in local commands.
const Signature uint32 = 0x74736368 // "tsch"

// Supported packet sizes: plain TS, TS with a 4-byte timestamp prefix and
// TS with 16 bytes of Reed-Solomon parity.
const (
	SizeTS   = 188
	SizeM2TS = 192
	SizeRS   = 204
)

// SetSize is a local command changing the input packet size.
type SetSize struct{ Size int }

// GetSize is a local command retrieving the input packet size.
type GetSize struct{ Size int }

type manager struct{}

// Manager returns the manager of checker pipes.
func Manager() pipe.Manager { return manager{} }

func (manager) Name() string      { return "ts_check" }
func (manager) Signature() uint32 { return Signature }

func (m manager) Alloc(probe pipe.Probe, sig uint32, opts ...pipe.Option) (pipe.Pipe, error) {
	if sig != pipe.SignatureVoid {
		return nil, fmt.Errorf("%w: unexpected signature 0x%08x", pipe.ErrAlloc, sig)
	}
	c := &Checker{size: SizeTS}
	c.Init(c, m, probe, pipe.NewOptions(opts...), c.free)
	c.ThrowReady()
	return c, nil
}

// Checker is the packet splitting pipe.
type Checker struct {
	pipe.Base

	size int
	tail *block.Ref
}

// syncOffset returns the position of the sync byte within a packet.
func (c *Checker) syncOffset() int {
	if c.size == SizeM2TS {
		return 4
	}
	return 0
}

// Input splits ref into packets and forwards each of them as a 188-byte
// block.
func (c *Checker) Input(ref *block.Ref) {
	if c.FlowDefInput() == nil {
		c.Warn("received data before flow definition")
		ref.Release()
		return
	}
	if c.tail != nil {
		c.tail.Append(ref)
		ref, c.tail = c.tail, nil
	}

	total := ref.Size()
	sync := c.syncOffset()
	var b [1]byte
	off := 0
	for ; off+c.size <= total; off += c.size {
		s, err := ref.Peek(off+sync, 1, b[:])
		if err != nil || s[0] != mpegts.SyncByte {
			c.Warn("invalid TS sync byte, dropping block", "offset", off, "size", total)
			c.Count("sync_loss")
			ref.Release()
			return
		}
		pkt, err := ref.Slice(off+sync, mpegts.PacketSize)
		if err != nil {
			break
		}
		c.Forward(pkt)
	}
	if off < total {
		c.tail, _ = ref.Slice(off, total-off)
	}
	ref.Release()
}

// Control handles the output commands, the input flow definition and the
// packet size.
func (c *Checker) Control(cmd pipe.Command) error {
	if err := c.ControlOutput(cmd); !errors.Is(err, pipe.ErrUnhandled) {
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
		def := c.StoreFlowDefInput(cmd.FlowDef.Dup())
		if def.MatchDef(OutputFlowDef) != nil {
			if err := def.SetDef(OutputFlowDef); err != nil {
				return err
			}
		}
		c.StoreFlowDef(def)
		return nil
	case *pipe.LocalCmd:
		if cmd.Signature != Signature {
			return pipe.ErrUnhandled
		}
		return c.local(cmd.Command)
	}
	return pipe.ErrUnhandled
}

func (c *Checker) local(cmd any) error {
	switch cmd := cmd.(type) {
	case *SetSize:
		switch cmd.Size {
		case SizeTS, SizeM2TS, SizeRS:
		default:
			return fmt.Errorf("%w: packet size %d", pipe.ErrInvalid, cmd.Size)
		}
		c.size = cmd.Size
		c.dropTail()
		return nil
	case *GetSize:
		cmd.Size = c.size
		return nil
	}
	return pipe.ErrUnhandled
}

func (c *Checker) dropTail() {
	if c.tail != nil {
		c.tail.Release()
		c.tail = nil
	}
}

func (c *Checker) free() {
	c.dropTail()
	c.CleanOutput()
	c.CleanFlowDef()
}

// Size sets the packet size of p, a checker pipe.
func Size(p pipe.Pipe, size int) error {
	return pipe.Local(p, Signature, &SetSize{Size: size})
}
